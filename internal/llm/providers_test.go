package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessages = []Message{
	SystemMessage("You are a generator."),
	UserMessage("Generate questions."),
}

func TestOpenAIClient(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"questions\": []}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1"))
	require.NoError(t, err)

	resp, err := client.GenerateJSON(context.Background(), testMessages, WithGenerateMaxTokens(2048))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, resp.Usage)
	assert.Contains(t, resp.Parsed, "questions")

	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
	assert.EqualValues(t, 2048, captured["max_completion_tokens"])
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL+"/v1"))
	require.NoError(t, err)

	_, err = client.GenerateJSON(context.Background(), testMessages)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeRateLimited, llmErr.Code)
	assert.Equal(t, ProviderOpenAI, llmErr.Provider)
	assert.True(t, IsRetryable(err))
}

func TestTongyiClient(t *testing.T) {
	var captured TongyiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"request_id": "r-1",
			"output": {"choices": [{"finish_reason": "stop", "message": {"role": "assistant", "content": "` +
			"```json\\n{\\\"is_correct\\\": true, \\\"reason\\\": \\\"ok\\\"}\\n```" + `"}}]},
			"usage": {"input_tokens": 5, "output_tokens": 6, "total_tokens": 11}
		}`))
	}))
	defer server.Close()

	client, err := NewTongyiClient(WithAPIKey("k"), WithBaseURL(server.URL), WithModel(ModelQwenPlus))
	require.NoError(t, err)

	resp, err := client.GenerateJSON(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Parsed["is_correct"])
	assert.Equal(t, 11, resp.Usage.TotalTokens)
	assert.Equal(t, ModelQwenPlus, resp.Model)

	assert.Equal(t, ModelQwenPlus, captured.Model)
	require.NotNil(t, captured.Parameters)
	assert.Equal(t, "json_object", captured.Parameters.ResponseFormat.Type)
	assert.Equal(t, "message", captured.Parameters.ResultFormat)
	assert.Len(t, captured.Input.Messages, 2)
}

func TestTongyiClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code": "InvalidApiKey", "message": "bad key"}`))
	}))
	defer server.Close()

	client, err := NewTongyiClient(WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.GenerateJSON(context.Background(), testMessages)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
	assert.Contains(t, llmErr.Message, "bad key")
	assert.False(t, IsRetryable(err))
}

func TestOllamaClient(t *testing.T) {
	var captured ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"model": "llama3.1", "message": {"role": "assistant", "content": "{\"questions\": [{\"question\": \"Q\"}]}"}, "done": true, "prompt_eval_count": 7, "eval_count": 3}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(WithBaseURL(server.URL+"/"), WithTimeout(5*time.Second))
	require.NoError(t, err)

	resp, err := client.GenerateJSON(context.Background(), testMessages, WithGenerateMaxTokens(512), WithGenerateTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
	assert.Len(t, resp.Parsed["questions"], 1)

	assert.Equal(t, "json", captured.Format)
	assert.False(t, captured.Stream)
	assert.Equal(t, 512, captured.Options.NumPredict)
	assert.Equal(t, float32(0.2), captured.Options.Temperature)
}

func TestOllamaClientInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model": "llama3.1", "message": {"role": "assistant", "content": "sorry, no json"}, "done": true}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.GenerateJSON(context.Background(), testMessages)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidJSON, llmErr.Code)
	assert.Equal(t, ProviderOllama, llmErr.Provider)
	assert.Equal(t, "sorry, no json", llmErr.Raw)
}

func TestMessageConversion(t *testing.T) {
	msgs := []Message{
		SystemMessage("sys"),
		UserMessage("u1"),
		{Role: RoleAssistant, Content: "a1"},
	}

	assert.Equal(t, "sys\n\nu1\n\nPrevious response: a1", messagesToPrompt(msgs))

	system, turns := splitAnthropicMessages(msgs)
	assert.Equal(t, "sys", system)
	assert.Len(t, turns, 2)

	openaiMsgs := buildOpenAIMessages(msgs)
	require.Len(t, openaiMsgs, 3)
	assert.Equal(t, "assistant", openaiMsgs[2].Role)
}

func TestEmptyMessagesRejected(t *testing.T) {
	client, err := NewOllamaClient()
	require.NoError(t, err)
	_, err = client.GenerateJSON(context.Background(), nil)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}
