package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// 通义千问API端点
	defaultTongyiEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
)

// TongyiClient 通义千问大模型客户端实现
type TongyiClient struct {
	apiKey      string       // API密钥
	baseURL     string       // API端点
	model       string       // 模型名称
	httpClient  *http.Client // HTTP客户端
	maxTokens   int          // 最大生成Token数
	temperature float32      // 温度参数
}

// NewTongyiClient 创建新的通义千问大模型客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	// 验证API密钥
	if cfg.APIKey == "" {
		return nil, NewProviderError(ProviderTongyi, ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTongyiEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = ModelQwenTurbo
	}

	return &TongyiClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		httpClient:  cfg.httpClient(),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// GenerateJSON 以JSON模式进行对话
func (c *TongyiClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewProviderError(ProviderTongyi, ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	p := resolveParams(c.model, c.maxTokens, c.temperature, options)
	req := &TongyiRequest{
		Model: p.model,
		Input: &TongyiRequestInput{
			Messages: messages,
		},
		Parameters: &TongyiParameters{
			Temperature:    &p.temperature,
			MaxTokens:      &p.maxTokens,
			ResultFormat:   "message", // 使用结构化返回格式
			ResponseFormat: &TongyiResponseFormat{Type: "json_object"},
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := c.processResponse(resp, p.model)
	if err != nil {
		return nil, err
	}
	return finishJSON(ProviderTongyi, result)
}

// sendRequest 发送API请求并解析响应
func (c *TongyiClient) sendRequest(ctx context.Context, req *TongyiRequest) (*TongyiResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, NewProviderError(ProviderTongyi, ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, NewProviderError(ProviderTongyi, ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, WrapError(fmt.Errorf("request failed: %w", err), ProviderTongyi, ErrCodeNetworkError)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(fmt.Errorf("failed to read response: %w", err), ProviderTongyi, ErrCodeNetworkError)
	}

	// 检查HTTP状态码
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		llmErr := NewProviderError(ProviderTongyi, codeFromStatus(resp.StatusCode),
			fmt.Sprintf("API error (status %d)", resp.StatusCode))
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message != "" {
			llmErr.Message = fmt.Sprintf("API error: %s (%s)", errResp.Message, errResp.Code)
		}
		llmErr.Raw = truncateRaw(string(body), 500)
		return nil, llmErr
	}

	var tongyiResp TongyiResponse
	if err := json.Unmarshal(body, &tongyiResp); err != nil {
		return nil, &LLMError{
			Code:     ErrCodeServerError,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
			Provider: ProviderTongyi,
			Raw:      truncateRaw(string(body), 500),
			Err:      err,
		}
	}

	// 检查API返回的错误
	if tongyiResp.Code != "" {
		return nil, NewProviderError(ProviderTongyi, ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", tongyiResp.Message, tongyiResp.Code))
	}

	return &tongyiResp, nil
}

// processResponse 处理通义千问的响应
func (c *TongyiClient) processResponse(resp *TongyiResponse, model string) (*Response, error) {
	result := &Response{
		Model: model,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	switch {
	case len(resp.Output.Choices) > 0:
		choice := resp.Output.Choices[0]
		result.Content = choice.Message.Content
		result.FinishReason = choice.FinishReason
	case resp.Output.Text != nil:
		result.Content = *resp.Output.Text
		if resp.Output.FinishReason != nil {
			result.FinishReason = *resp.Output.FinishReason
		}
	default:
		return nil, NewProviderError(ProviderTongyi, ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	return result, nil
}

// 在包初始化时注册通义千问客户端
func init() {
	RegisterClient(ProviderTongyi, NewTongyiClient)
}
