package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewArticleID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := NewArticleID("https://en.wikipedia.org/wiki/Go_(programming_language)", "Go (programming language)", now)
	assert.Regexp(t, regexp.MustCompile(`^goprogramminglanguag_[0-9a-f]{8}$`), id)

	// 同一时刻同一输入得到相同ID
	assert.Equal(t, id, NewArticleID("https://en.wikipedia.org/wiki/Go_(programming_language)", "Go (programming language)", now))
	assert.NotEqual(t, id, NewArticleID("https://en.wikipedia.org/wiki/Go_(programming_language)", "Go (programming language)", now.Add(time.Second)))
	// 同一秒内的重复导入也得到不同ID
	assert.NotEqual(t, id, NewArticleID("https://en.wikipedia.org/wiki/Go_(programming_language)", "Go (programming language)", now.Add(time.Millisecond)))

	assert.Regexp(t, `^article_[0-9a-f]{8}$`, NewArticleID("u", "東京 ---", now))
	assert.Regexp(t, `^caf_[0-9a-f]{8}$`, NewArticleID("u", "Café", now))
}

func TestURLChecksum(t *testing.T) {
	sum := URLChecksum("https://en.wikipedia.org/wiki/Go")
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, URLChecksum("https://en.wikipedia.org/wiki/Go"))
	assert.NotEqual(t, sum, URLChecksum("https://en.wikipedia.org/wiki/Rust"))
}

func TestIngestOptionsWithDefaults(t *testing.T) {
	opts := IngestOptions{ChunkSize: 800, Reingest: true}.WithDefaults(DefaultIngestOptions())
	assert.Equal(t, 800, opts.ChunkSize)
	assert.Equal(t, 200, opts.ChunkOverlap)
	assert.Equal(t, "header_aware", opts.SplitStrategy)
	assert.Equal(t, 10, opts.TotalQuestions)
	assert.True(t, opts.Reingest)
	assert.True(t, opts.ShouldStripSections())

	off := false
	opts.StripSections = &off
	assert.False(t, opts.ShouldStripSections())
}

func TestStageAndRunID(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageQuestionGen.Terminal())

	id := NewRunID()
	assert.Regexp(t, `^run_[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, NewRunID())
}
