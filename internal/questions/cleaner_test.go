package questions

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

func TestValidChunkID(t *testing.T) {
	valid := []string{"c0001", "C0001", "art_c0001", "my_article_12ab34cd_c12345"}
	for _, id := range valid {
		assert.True(t, ValidChunkID(id), id)
	}
	invalid := []string{"", "bogus_id", "c001", "art-c0001", "the answer is c0001", "c0001 "}
	for _, id := range invalid {
		assert.False(t, ValidChunkID(id), id)
	}
}

func TestCleanerClean(t *testing.T) {
	logger, hook := test.NewNullLogger()
	items := []QuestionItem{
		{Question: "keep", RelatedChunkIDs: []string{"art_c0001", " art_c0002", "art_c0001", "Paris is the capital"}},
		{Question: "drop", RelatedChunkIDs: []string{"bogus_id"}},
		{Question: "empty", RelatedChunkIDs: nil},
		{Question: "format only", RelatedChunkIDs: []string{"other_c0009"}},
	}

	t.Run("format only", func(t *testing.T) {
		out := NewCleaner(nil, logger).Clean(items)
		require.Len(t, out, 2)
		assert.Equal(t, []string{"art_c0001", "art_c0002"}, out[0].RelatedChunkIDs)
		assert.Equal(t, "format only", out[1].Question)
		assert.NotEmpty(t, hook.AllEntries())
	})

	t.Run("known chunks", func(t *testing.T) {
		known := []document.Chunk{{ID: "art_c0001"}, {ID: "art_c0002"}}
		out := NewCleaner(known, logger).Clean(items)
		require.Len(t, out, 1)
		assert.Equal(t, "keep", out[0].Question)
	})

	// 入参不被修改
	assert.Len(t, items[0].RelatedChunkIDs, 4)
}

func TestCleanerIdempotent(t *testing.T) {
	items := []QuestionItem{
		{Question: "a", RelatedChunkIDs: []string{"c0003", "c0001", "c0003", "nope"}},
		{Question: "b", RelatedChunkIDs: []string{"x"}},
		FallbackItem(Unit{Chunks: []document.Chunk{{ID: "c0002", Section: "History"}}, Count: 1}),
	}
	c := NewCleaner(nil, nil)
	once := c.Clean(items)
	twice := c.Clean(once)
	assert.Equal(t, once, twice)
	require.Len(t, once, 2)
	assert.True(t, once[1].IsFallback)
}

func TestFallbackItem(t *testing.T) {
	unit := Unit{Chunks: []document.Chunk{{ID: "a_c0001", Section: "Design"}, {ID: "a_c0002", Section: "Use"}}, Count: 1}
	item := FallbackItem(unit)
	assert.Equal(t, "What information is provided about Design?", item.Question)
	assert.Equal(t, CategoryLongAnswer, item.Category)
	assert.Equal(t, []string{"a_c0001", "a_c0002"}, item.RelatedChunkIDs)
	assert.True(t, item.IsFallback)
	assert.Equal(t, "a_c0001, a_c0002", item.ChunkIDsString())

	item = FallbackItem(Unit{Chunks: []document.Chunk{{ID: "c0001"}}})
	assert.Contains(t, item.Question, "this topic")
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" long_answer ")
	require.NoError(t, err)
	assert.Equal(t, CategoryLongAnswer, c)

	_, err = ParseCategory("OPINION")
	assert.Error(t, err)
	assert.False(t, Category("").Valid())
}

func TestDecodeQuestions(t *testing.T) {
	parsed := map[string]any{
		"questions": []any{
			map[string]any{"question": "Q", "answer": "A", "related_chunk_ids": []any{"c0001"}, "category": "FACTUAL", "is_fallback": true},
			map[string]any{"question": "Q2", "answer": "", "related_chunk_ids": []any{}, "category": "LONG_ANSWER"},
		},
	}
	items, err := DecodeQuestions(parsed, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, CategoryFactual, items[0].Category)
	assert.False(t, items[0].IsFallback)
	assert.Equal(t, "", items[1].Answer)
	assert.Empty(t, items[1].RelatedChunkIDs)

	bad := []map[string]any{
		nil,
		{},
		{"questions": "nope"},
		{"questions": []any{map[string]any{"question": "Q", "category": "FACTUAL"}}},
		{"questions": []any{map[string]any{"question": "Q", "answer": "A", "category": "FACTUAL"}}},
		{"questions": []any{map[string]any{"question": "Q", "answer": "A", "related_chunk_ids": []any{"c0001"}, "category": "factual"}}},
		{"questions": []any{map[string]any{"question": "Q", "answer": "A", "related_chunk_ids": []any{"c0001"}, "category": "OPINION"}}},
		{"questions": []any{map[string]any{"question": "Q", "related_chunk_ids": []any{"c0001"}, "category": "FACTUAL"}}},
		{"questions": []any{map[string]any{"question": "Q", "answer": "A", "category": "FACTUAL", "related_chunk_ids": "c0001"}}},
	}
	for i, p := range bad {
		_, err := DecodeQuestions(p, "raw")
		var vErr *ValidationError
		assert.True(t, errors.As(err, &vErr), "case %d", i)
	}
}

func TestDecodeVerdict(t *testing.T) {
	v, err := DecodeVerdict(map[string]any{"is_correct": false, "reason": " unsupported claim "}, "")
	require.NoError(t, err)
	assert.False(t, v.IsCorrect)
	assert.Equal(t, "unsupported claim", v.Reason)

	_, err = DecodeVerdict(map[string]any{"is_correct": "yes"}, "")
	assert.Error(t, err)
	_, err = DecodeVerdict(nil, "")
	assert.Error(t, err)
}

func TestPrompts(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	system := p.System()
	assert.Contains(t, system, "1. **FACTUAL**: Questions that test direct recall")
	assert.Contains(t, system, "3. **LONG_ANSWER**")
	assert.NotContains(t, system, "{{")

	chunk := document.Chunk{ID: "art_c0004", Content: "Body text.", Section: "History", HeadingPath: "History > Early"}
	single, err := p.SingleChunk(chunk, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(single, "Generate exactly 1 question-answer pair(s)"))
	assert.Contains(t, single, "Chunk ID: art_c0004\n\nContext: This text is from the section 'History' under 'History > Early'.")
	assert.Contains(t, single, "Text:\nBody text.")

	chunk.Section, chunk.HeadingPath = "", ""
	single, err = p.SingleChunk(chunk, 1)
	require.NoError(t, err)
	assert.Contains(t, single, "Chunk ID: art_c0004\n\nText:")

	multi, err := p.MultiChunk([]document.Chunk{
		{ID: "c0001", Content: "One.", Section: "B"},
		{ID: "c0002", Content: "Two.", Section: "A"},
		{ID: "c0003", Content: "Three.", Section: "B"},
	}, 2)
	require.NoError(t, err)
	assert.Contains(t, multi, "Context: These chunks are from sections: B, A")
	assert.Contains(t, multi, "--- Chunk c0001 ---\nOne.\n")
	assert.Contains(t, multi, "--- Chunk c0003 ---\nThree.\n")
	assert.Contains(t, multi, `chunk IDs ["c0001","c0002","c0003"] in related_chunk_ids`)

	sys, user, err := p.ValidationMessages("Q?", "A.", "\n\n--- Chunk c0001 ---\nOne.")
	require.NoError(t, err)
	assert.Contains(t, sys, "is_correct")
	assert.Contains(t, user, "Question:\nQ?")
	assert.Contains(t, user, "Chunks:\n\n--- Chunk c0001 ---\nOne.")
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts(strings.NewReader(`
system_prompt: "Categories:\n{{.Categories}}"
single_chunk_prompt: "{{.Count}} for {{.ChunkID}}"
multi_chunk_prompt: "{{.Count}} for {{.ChunkIDs}}"
`))
	require.NoError(t, err)
	assert.Equal(t, "Categories:\n1. **FACTUAL**: \n2. **INTERPRETATION**: \n3. **LONG_ANSWER**: ", p.System())

	out, err := p.UnitPrompt(Unit{Chunks: []document.Chunk{{ID: "c0001"}}, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, "3 for c0001", out)

	_, _, err = p.ValidationMessages("q", "a", "c")
	assert.Error(t, err)

	_, err = LoadPrompts(strings.NewReader("system_prompt: x\n"))
	assert.Error(t, err)
	_, err = LoadPrompts(strings.NewReader("system_prompt: \"{{.Broken\"\nsingle_chunk_prompt: a\nmulti_chunk_prompt: b\n"))
	assert.Error(t, err)
	_, err = LoadPromptsFile("/nonexistent/prompts.yaml")
	assert.Error(t, err)
}
