package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig 重试参数
type RetryConfig struct {
	MaxAttempts int           // 总尝试次数，含首次
	InitialWait time.Duration // 首次重试等待
	MaxWait     time.Duration // 等待上限
	Multiplier  float64       // 指数倍数
}

// DefaultRetryConfig 三次尝试，等待2s起、上限10s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 2 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2,
	}
}

// RetryClient 对瞬时错误做指数退避重试的装饰器
type RetryClient struct {
	inner  Client
	config RetryConfig
}

// WithRetry 为客户端加上重试
func WithRetry(c Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &RetryClient{inner: c, config: cfg}
}

// GenerateJSON 调用内部客户端，可重试错误按退避等待后重试
func (r *RetryClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		resp, err := r.inner.GenerateJSON(ctx, messages, options...)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == r.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, WrapError(ctx.Err(), "", ErrCodeTimeout)
		case <-time.After(r.backoff(attempt)):
		}
	}
	return nil, lastErr
}

// Name 返回模型名称
func (r *RetryClient) Name() string {
	return r.inner.Name()
}

// backoff 计算第attempt次失败后的等待时间，带±20%抖动
func (r *RetryClient) backoff(attempt int) time.Duration {
	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.MaxWait > 0 && wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
