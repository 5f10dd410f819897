package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaClient 调用本地 Ollama /api/chat 接口
type OllamaClient struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	maxTokens   int
	temperature float32
}

// NewOllamaClient 创建Ollama客户端，不需要API密钥
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = ModelLlama
	}

	return &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		httpClient:  cfg.httpClient(),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return c.model
}

// GenerateJSON 以 format=json 调用 /api/chat
func (c *OllamaClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewProviderError(ProviderOllama, ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	p := resolveParams(c.model, c.maxTokens, c.temperature, options)
	payload, err := json.Marshal(ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options: ollamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
		},
	})
	if err != nil {
		return nil, NewProviderError(ProviderOllama, ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError(ProviderOllama, ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, WrapError(fmt.Errorf("request failed: %w", err), ProviderOllama, ErrCodeNetworkError)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(fmt.Errorf("failed to read response: %w", err), ProviderOllama, ErrCodeNetworkError)
	}

	var out ollamaResponse
	jsonErr := json.Unmarshal(body, &out)
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("API error (status %d)", resp.StatusCode)
		if jsonErr == nil && out.Error != "" {
			msg = fmt.Sprintf("API error: %s", out.Error)
		}
		llmErr := NewProviderError(ProviderOllama, codeFromStatus(resp.StatusCode), msg)
		llmErr.Raw = truncateRaw(string(body), 500)
		return nil, llmErr
	}
	if jsonErr != nil {
		return nil, &LLMError{
			Code:     ErrCodeServerError,
			Message:  fmt.Sprintf("failed to parse response: %v", jsonErr),
			Provider: ProviderOllama,
			Raw:      truncateRaw(string(body), 500),
			Err:      jsonErr,
		}
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	finish := "unknown"
	if out.Done {
		finish = "stop"
	}

	return finishJSON(ProviderOllama, &Response{
		Content: out.Message.Content,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
		Model:        model,
		FinishReason: finish,
	})
}

func init() {
	RegisterClient(ProviderOllama, NewOllamaClient)
}
