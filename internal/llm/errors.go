package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code     int    // 错误码
	Message  string // 错误消息
	Provider string // 提供商名称
	Raw      string // 原始响应片段，便于排查
	Err      error  // 底层错误
}

// Error 实现error接口
func (e *LLMError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm error (provider=%s, code=%d): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *LLMError) Unwrap() error {
	return e.Err
}

// Retryable 是否属于可重试的瞬时错误
func (e *LLMError) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeServerError, ErrCodeModelOverload, ErrCodeNetworkError:
		return true
	}
	return false
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey   = 1001 // 无效的API密钥
	ErrCodeInvalidRequest  = 1002 // 无效的请求
	ErrCodeNetworkError    = 1003 // 网络连接错误
	ErrCodeRateLimited     = 1004 // 请求频率超限
	ErrCodeServerError     = 1005 // 服务器错误
	ErrCodeTimeout         = 1006 // 请求超时
	ErrCodeEmptyPrompt     = 1007 // 提示词为空
	ErrCodeContentFilter   = 1008 // 内容安全过滤
	ErrCodeModelOverload   = 1009 // 模型过载
	ErrCodeContextTooLong  = 1010 // 上下文过长
	ErrCodeInvalidJSON     = 1011 // 响应不是合法JSON
	ErrCodeEmptyResponse   = 1012 // 响应为空
	ErrCodeMissingProvider = 1013 // 提供商配置缺失
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyPrompt    = "prompt cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgContentFilter  = "content filtered due to safety concerns"
	ErrMsgModelOverload  = "model is currently overloaded"
	ErrMsgContextTooLong = "context length exceeds model's maximum"
	ErrMsgEmptyResponse  = "empty response from API"
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) *LLMError {
	return &LLMError{
		Code:    code,
		Message: message,
	}
}

// NewProviderError 创建带提供商信息的错误
func NewProviderError(provider string, code int, message string) *LLMError {
	return &LLMError{
		Code:     code,
		Message:  message,
		Provider: provider,
	}
}

// WrapError 包装普通错误为LLM错误
func WrapError(err error, provider string, code int) *LLMError {
	if err == nil {
		return &LLMError{Code: code, Message: "unknown error", Provider: provider}
	}

	// 如果已经是LLMError类型，则补全提供商后直接返回
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		if llmErr.Provider == "" {
			llmErr.Provider = provider
		}
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = ErrCodeTimeout
	}

	return &LLMError{
		Code:     code,
		Message:  err.Error(),
		Provider: provider,
		Err:      err,
	}
}

// codeFromStatus 将HTTP状态码映射为错误码
func codeFromStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusRequestEntityTooLarge:
		return ErrCodeContextTooLong
	case status == http.StatusServiceUnavailable:
		return ErrCodeModelOverload
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable()
	}
	return false
}

// truncateRaw 截取原始响应，避免日志与错误过长
func truncateRaw(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
