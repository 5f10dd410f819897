package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"truncated array", `{"questions":[{"question":"Q","related_chunk_ids":["c0001"`, `{"questions":[{"question":"Q","related_chunk_ids":["c0001"]}]}`},
		{"truncated string", `{"a":"unterminated`, `{"a":"unterminated"}`},
		{"trailing comma", `{"a":[1,2,`, `{"a":[1,2]}`},
		{"brace inside string", `{"a":"x}y"`, `{"a":"x}y"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairJSON(tt.input)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)))
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	parsed, err := ParseJSONObject("```json\n{\"questions\": []}\n```")
	require.NoError(t, err)
	assert.Contains(t, parsed, "questions")

	_, err = ParseJSONObject("   ")
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyResponse, llmErr.Code)

	_, err = ParseJSONObject("not json at all")
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidJSON, llmErr.Code)
	assert.Equal(t, "not json at all", llmErr.Raw)
	assert.False(t, IsRetryable(err))
}
