package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterChunks(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 35))
	chunks := []Chunk{
		newChunk(0, "", long, 0, len(long), "History", "History"),
		newChunk(1, "", "too short to keep", 0, 17, "History", "History"),
		newChunk(2, "", long, 0, len(long), "External links", "External links"),
		newChunk(3, "", long, 0, len(long), "Works", "Legacy > Notes"),
		newChunk(4, "", long, 0, len(long), "Legacy", "Legacy"),
	}

	t.Run("default config", func(t *testing.T) {
		kept, dropped := FilterChunks(chunks, DefaultFilterConfig())
		require.Len(t, kept, 2)
		assert.Equal(t, "c0000", kept[0].ID)
		assert.Equal(t, "c0004", kept[1].ID)

		require.Len(t, dropped, 3)
		assert.Equal(t, "c0001", dropped[0].ChunkID)
		assert.Contains(t, dropped[0].Reason, "short content")
		assert.Contains(t, dropped[1].Reason, "unwanted section")
		assert.Contains(t, dropped[2].Reason, "unwanted heading path")
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.Enabled = false
		kept, dropped := FilterChunks(chunks, cfg)
		assert.Len(t, kept, len(chunks))
		assert.Empty(t, dropped)
	})

	t.Run("sections filter off", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.FilterSections = false
		kept, _ := FilterChunks(chunks, cfg)
		assert.Len(t, kept, 4)
	})

	t.Run("exempt top heading", func(t *testing.T) {
		notes := []Chunk{
			newChunk(0, "", long, 0, len(long), "Notes", "Notes"),
			newChunk(1, "", long, 0, len(long), "Details", "Notes > Details"),
			newChunk(2, "", long, 0, len(long), "Sources", "Notes > Sources"),
		}
		cfg := DefaultFilterConfig().ExemptHeadings(TopHeadings([]Section{
			{Level: 1, Title: "Notes"},
			{Level: 2, Title: "Details", StartPos: 10},
		})...)
		kept, dropped := FilterChunks(notes, cfg)
		require.Len(t, kept, 2)
		assert.Equal(t, "c0001", kept[1].ID)
		require.Len(t, dropped, 1)
		assert.Equal(t, "c0002", dropped[0].ChunkID)

		kept, _ = FilterChunks(notes, DefaultFilterConfig())
		assert.Empty(t, kept)
	})

	t.Run("custom min words", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.MinWords = 3
		drop, _ := cfg.ShouldFilter(chunks[1])
		assert.False(t, drop)
	})
}
