package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingClient 记录每次调用的装饰器
type LoggingClient struct {
	inner    Client
	provider string
	logger   *logrus.Logger
}

// WithLogging 为客户端加上调用日志
func WithLogging(c Client, provider string, logger *logrus.Logger) Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggingClient{inner: c, provider: provider, logger: logger}
}

// GenerateJSON 调用内部客户端并记录耗时、用量与错误
func (l *LoggingClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.GenerateJSON(ctx, messages, options...)

	fields := logrus.Fields{
		"provider":   l.provider,
		"model":      l.inner.Name(),
		"messages":   len(messages),
		"latency_ms": time.Since(start).Milliseconds(),
	}

	if err != nil {
		fields["error"] = err.Error()
		var llmErr *LLMError
		if errors.As(err, &llmErr) {
			fields["code"] = llmErr.Code
			if llmErr.Raw != "" {
				fields["raw"] = llmErr.Raw
			}
		}
		l.logger.WithFields(fields).Error("LLM request failed")
		return nil, err
	}

	fields["prompt_tokens"] = resp.Usage.PromptTokens
	fields["completion_tokens"] = resp.Usage.CompletionTokens
	fields["finish_reason"] = resp.FinishReason
	l.logger.WithFields(fields).Debug("LLM request completed")
	return resp, nil
}

// Name 返回模型名称
func (l *LoggingClient) Name() string {
	return l.inner.Name()
}

// Build 创建提供商客户端，并套上重试与日志装饰器
func Build(provider string, logger *logrus.Logger, retry RetryConfig, opts ...Option) (Client, error) {
	client, err := NewClient(provider, opts...)
	if err != nil {
		return nil, err
	}
	return WithLogging(WithRetry(client, retry), provider, logger), nil
}
