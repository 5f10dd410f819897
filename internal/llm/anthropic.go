package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropic 接口要求显式的 max_tokens 上限
const anthropicMaxTokensCap = 8192

// AnthropicClient 基于 anthropic-sdk-go 的客户端
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewAnthropicClient 创建Anthropic客户端
func NewAnthropicClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewProviderError(ProviderAnthropic, ErrCodeInvalidAPIKey, "anthropic API key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.httpClient()),
		// 重试交给统一的重试装饰器
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(reqOpts...)
	model := cfg.Model
	if model == "" {
		model = ModelClaudeSonnet
	}

	return &AnthropicClient{
		client:      &client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *AnthropicClient) Name() string {
	return c.model
}

// GenerateJSON 系统消息走 system 字段，其余作为对话轮次
func (c *AnthropicClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewProviderError(ProviderAnthropic, ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	p := resolveParams(c.model, c.maxTokens, c.temperature, options)
	maxTokens := p.maxTokens
	if maxTokens > anthropicMaxTokensCap {
		maxTokens = anthropicMaxTokensCap
	}

	system, turns := splitAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Messages:    turns,
		Temperature: anthropic.Float(float64(p.temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, NewProviderError(ProviderAnthropic, ErrCodeEmptyResponse, "no text content in anthropic response")
	}

	return finishJSON(ProviderAnthropic, &Response{
		Content: content.String(),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
	})
}

// splitAnthropicMessages 合并系统消息，其余消息按角色转换
func splitAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(system, "\n\n"), turns
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return WrapError(err, ProviderAnthropic, codeFromStatus(apiErr.StatusCode))
	}
	return WrapError(err, ProviderAnthropic, ErrCodeNetworkError)
}

func init() {
	RegisterClient(ProviderAnthropic, NewAnthropicClient)
}
