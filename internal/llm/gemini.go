package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiJSONInstruction 追加在提示末尾，约束模型只输出JSON
const geminiJSONInstruction = "IMPORTANT: Your response must be valid JSON. Do not include any text outside the JSON object."

// GeminiClient 基于 google.golang.org/genai 的客户端
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGeminiClient 创建Gemini客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewProviderError(ProviderGemini, ErrCodeInvalidAPIKey, "gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, WrapError(fmt.Errorf("create gemini client: %w", err), ProviderGemini, ErrCodeInvalidRequest)
	}

	model := cfg.Model
	if model == "" {
		model = ModelGeminiFlash
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.model
}

// GenerateJSON 将消息拼接为单个提示并要求JSON输出
func (c *GeminiClient) GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewProviderError(ProviderGemini, ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	p := resolveParams(c.model, c.maxTokens, c.temperature, options)
	prompt := messagesToPrompt(messages) + "\n\n" + geminiJSONInstruction

	temp := p.temperature
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(p.maxTokens),
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	result, err := c.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, mapGeminiError(err)
	}

	text := result.Text()
	finish := ""
	if len(result.Candidates) > 0 {
		finish = string(result.Candidates[0].FinishReason)
	}
	if strings.TrimSpace(text) == "" {
		code, msg := ErrCodeEmptyResponse, "no content generated by gemini"
		if finish == "SAFETY" {
			code, msg = ErrCodeContentFilter, "content blocked by gemini safety filters"
		}
		llmErr := NewProviderError(ProviderGemini, code, msg)
		llmErr.Raw = "finish_reason=" + finish
		return nil, llmErr
	}

	resp := &Response{
		Content:      text,
		Model:        p.model,
		FinishReason: finish,
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return finishJSON(ProviderGemini, resp)
}

// messagesToPrompt 将对话拼接为单个提示，助手轮次加前缀
func messagesToPrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			parts = append(parts, "Previous response: "+m.Content)
		default:
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func mapGeminiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return WrapError(err, ProviderGemini, codeFromStatus(apiErr.Code))
	}
	return WrapError(err, ProviderGemini, ErrCodeNetworkError)
}

func init() {
	RegisterClient(ProviderGemini, NewGeminiClient)
}
