package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
)

func testChunks(articleID string) []document.Chunk {
	contents := []string{
		"Go is a statically typed language. It was designed at Google.",
		"The language was announced in 2009.",
		"Goroutines are lightweight threads | managed by the runtime.",
	}
	var chunks []document.Chunk
	offset := 0
	for i, c := range contents {
		section := "History"
		if i == 2 {
			section = "Concurrency"
		}
		chunks = append(chunks, document.Chunk{
			ID:            document.ChunkID(i, articleID),
			Content:       c,
			StartChar:     offset,
			EndChar:       offset + len(c),
			Section:       section,
			HeadingPath:   "Go > " + section,
			CharCount:     len(c),
			TokenEstimate: document.TokenEstimate(c),
		})
		offset += len(c) + 2
	}
	return chunks
}

func TestArticleRoundTrip(t *testing.T) {
	off := false
	meta := ArticleMeta{
		ID:        "go_1a2b3c4d",
		URL:       "https://en.wikipedia.org/wiki/Go",
		Title:     "Go",
		Lang:      "en",
		CreatedAt: "2024-05-01T12:00:00Z",
		Checksum:  models.URLChecksum("https://en.wikipedia.org/wiki/Go"),
		Options: models.IngestOptions{
			ChunkSize: 800, ChunkOverlap: 100, SplitStrategy: "recursive",
			TotalQuestions: 5, Reingest: true, StripSections: &off,
		},
		Stats: models.ArticleStats{WordCount: 120, NumChunks: 3, OriginalChunks: 4, FilteredOut: 1},
	}

	content, err := RenderArticle(meta, "# Go\n\nBody.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "---\nid: go_1a2b3c4d\n"))
	assert.Contains(t, content, "chunk_size: 800")
	assert.NotContains(t, content, "reingest")
	assert.True(t, strings.HasSuffix(content, "---\n# Go\n\nBody."))

	parsed, body, err := ParseArticle(content)
	require.NoError(t, err)
	assert.Equal(t, "# Go\n\nBody.", body)
	assert.Equal(t, meta.Checksum, parsed.Checksum)
	assert.Equal(t, meta.Stats, parsed.Stats)
	assert.Equal(t, 800, parsed.Options.ChunkSize)
	assert.False(t, parsed.Options.ShouldStripSections())
	assert.False(t, parsed.Options.Reingest)
}

func TestChunkRoundTrip(t *testing.T) {
	chunk := testChunks("go_1a2b3c4d")[0]
	content, err := RenderChunk("go_1a2b3c4d", chunk)
	require.NoError(t, err)
	assert.Contains(t, content, "article_id: go_1a2b3c4d")
	assert.Contains(t, content, "token_estimate: ")

	parsed, err := ParseChunk(content, "ignored")
	require.NoError(t, err)
	assert.Equal(t, chunk.ID, parsed.ID)
	assert.Equal(t, chunk.Content, parsed.Content)
	assert.Equal(t, chunk.StartChar, parsed.StartChar)
	assert.Equal(t, chunk.EndChar, parsed.EndChar)
	assert.Equal(t, chunk.HeadingPath, parsed.HeadingPath)
	assert.Equal(t, chunk.CharCount, parsed.CharCount)

	// 没有头信息时使用文件名作为ID
	parsed, err = ParseChunk("plain text", "c0007")
	require.NoError(t, err)
	assert.Equal(t, "c0007", parsed.ID)
	assert.Equal(t, document.LeadSection, parsed.HeadingPath)
}

func TestRenderChunksIndex(t *testing.T) {
	out := RenderChunksIndex(testChunks("go"))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "# Chunks Index", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "| ID"))
	assert.Contains(t, lines[2], "| Heading Path")
	assert.Contains(t, lines[4], "| 0-61 ")
	// 竖线被转义
	assert.Contains(t, lines[6], `threads \| managed`)

	assert.Equal(t, "# Chunks Index\n", RenderChunksIndex(nil))
}

func TestDatasetRoundTrip(t *testing.T) {
	items := []questions.QuestionItem{
		{Question: "When was Go announced?", Answer: "2009", Category: questions.CategoryFactual, RelatedChunkIDs: []string{"go_c0001"}},
		{Question: "Why goroutines?", Answer: "They are cheap | light.\nManaged by runtime.", Category: questions.CategoryInterpretation, RelatedChunkIDs: []string{"go_c0002", "go_c0000"}},
	}
	generated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	content := RenderDataset("Go", items, generated)
	assert.True(t, strings.HasPrefix(content, "# Dataset: Go\n\nGenerated on: 2024-05-01T12:00:00Z\nTotal questions: 2\n\n| #"))
	assert.Contains(t, content, "go_c0000, go_c0002")

	ds := ParseDataset(content)
	assert.Equal(t, "Go", ds.Title)
	assert.Equal(t, "2024-05-01T12:00:00Z", ds.CreatedAt)
	require.Equal(t, 2, ds.TotalQuestions)
	assert.Equal(t, items[0], ds.Items[0])
	assert.Equal(t, "They are cheap | light.\nManaged by runtime.", ds.Items[1].Answer)
	assert.Equal(t, []string{"go_c0000", "go_c0002"}, ds.Items[1].RelatedChunkIDs)

	empty := ParseDataset(RenderDataset("Empty", nil, generated))
	assert.Equal(t, 0, empty.TotalQuestions)
	assert.NotNil(t, empty.Items)
}

func TestParseDatasetLegacyFormats(t *testing.T) {
	fourColumns := `# Dataset: Old

| # | Question | Answer | Related_Chunk_IDs |
| - | -------- | ------ | ----------------- |
| 1 | Q1       | A1     | c0001, c0002      |
| 2 | Q2       |        | c0003             |
`
	ds := ParseDataset(fourColumns)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, questions.CategoryFactual, ds.Items[0].Category)
	assert.Equal(t, []string{"c0001", "c0002"}, ds.Items[0].RelatedChunkIDs)

	threeColumns := `| # | Question | Related_Chunk_IDs |
|---|---|---|
| 1 | Only question | c0004 |
| 2 | No ids |  |
`
	ds = ParseDataset(threeColumns)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, "Only question", ds.Items[0].Question)
	assert.Empty(t, ds.Items[0].Answer)
	assert.Equal(t, questions.CategoryFactual, ds.Items[0].Category)

	unknownCategory := `| # | Question | Answer | Category | Related_Chunk_IDs |
|---|---|---|---|---|
| 1 | Q | A | OPINION | c0001 |
`
	ds = ParseDataset(unknownCategory)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, questions.CategoryFactual, ds.Items[0].Category)
}

func newTestStore(t *testing.T) *Store {
	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return NewStore(local, logger)
}

func TestStoreWriteAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	articleID := "go_1a2b3c4d"

	chunks := testChunks(articleID)
	// 序号超过四位时仍按数值排序
	extra := chunks[0]
	extra.ID = document.ChunkID(10000, articleID)
	chunks = append([]document.Chunk{extra}, chunks...)

	require.NoError(t, store.WriteRawHTML(ctx, articleID, "<p>raw</p>"))
	require.NoError(t, store.WriteArticle(ctx, ArticleMeta{ID: articleID, Title: "Go"}, "Body"))
	require.NoError(t, store.WriteChunks(ctx, articleID, chunks))
	require.NoError(t, store.WriteDataset(ctx, articleID, "Go", []questions.QuestionItem{
		{Question: "Q", Answer: "A", Category: questions.CategoryLongAnswer, RelatedChunkIDs: []string{chunks[1].ID}},
	}, time.Now()))
	require.NoError(t, store.AppendLog(ctx, LogEntry{RunID: "run_1", ArticleID: articleID, Status: "completed", Message: "one"}))
	require.NoError(t, store.AppendLog(ctx, LogEntry{RunID: "run_2", ArticleID: articleID, Status: "completed", Message: "two"}))

	exists, err := store.Exists(ctx, articleID)
	require.NoError(t, err)
	assert.True(t, exists)

	meta, body, err := store.ReadArticle(ctx, articleID)
	require.NoError(t, err)
	assert.Equal(t, "Go", meta.Title)
	assert.Equal(t, "Body", body)

	read, err := store.ReadChunks(ctx, articleID)
	require.NoError(t, err)
	require.Len(t, read, 4)
	assert.Equal(t, chunks[1].ID, read[0].ID)
	assert.Equal(t, extra.ID, read[3].ID)

	ds, err := store.ReadDataset(ctx, articleID)
	require.NoError(t, err)
	assert.Equal(t, articleID, ds.ArticleID)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, questions.CategoryLongAnswer, ds.Items[0].Category)

	logs, err := store.ReadLogs(ctx, articleID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "two", logs[1].Message)
	assert.NotEmpty(t, logs[0].Timestamp)

	require.NoError(t, store.Delete(ctx, articleID))
	_, _, err = store.ReadArticle(ctx, articleID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	read, err = store.ReadChunks(ctx, articleID)
	require.NoError(t, err)
	assert.Empty(t, read)
	logs, err = store.ReadLogs(ctx, articleID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMetaFromArticle(t *testing.T) {
	a := &models.Article{
		ID: "go_1a2b3c4d", URL: "u", Title: "Go", Lang: "en", Checksum: "x",
		Source:    models.SourceUpload,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	meta := MetaFromArticle(a)
	assert.Equal(t, "2024-05-01T12:00:00Z", meta.CreatedAt)
	assert.Equal(t, "upload", meta.Source)
}
