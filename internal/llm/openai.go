package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient 基于 go-openai 的客户端，也可通过BaseURL访问兼容接口
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewProviderError(ProviderOpenAI, ErrCodeInvalidAPIKey, "openai API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = cfg.httpClient()

	model := cfg.Model
	if model == "" {
		model = ModelGPT4oMini
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// GenerateJSON 使用 json_object 响应格式生成
func (c *OpenAIClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewProviderError(ProviderOpenAI, ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	p := resolveParams(c.model, c.maxTokens, c.temperature, options)
	req := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            buildOpenAIMessages(messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(ProviderOpenAI, ErrCodeEmptyResponse, "no choices in OpenAI response")
	}

	return finishJSON(ProviderOpenAI, &Response{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
	})
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := WrapError(err, ProviderOpenAI, codeFromStatus(apiErr.HTTPStatusCode))
		llmErr.Message = apiErr.Message
		return llmErr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return WrapError(err, ProviderOpenAI, codeFromStatus(reqErr.HTTPStatusCode))
	}
	return WrapError(err, ProviderOpenAI, ErrCodeNetworkError)
}

func init() {
	RegisterClient(ProviderOpenAI, NewOpenAIClient)
}
