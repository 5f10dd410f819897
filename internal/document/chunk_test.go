package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIDs(t *testing.T) {
	assert.Equal(t, "c0007", ChunkID(7, ""))
	assert.Equal(t, "abc_12345678_c0007", ChunkID(7, "abc_12345678"))
	assert.Equal(t, "c12345", ChunkID(12345, ""))

	idx, err := ChunkIndex("abc_c0012")
	require.NoError(t, err)
	assert.Equal(t, 12, idx)

	idx, err = ChunkIndex("c12345")
	require.NoError(t, err)
	assert.Equal(t, 12345, idx)

	_, err = ChunkIndex("bogus_id")
	assert.Error(t, err)

	sorted := SortChunkIDs([]string{"c0010", "c0002", "x", "a_c0001"})
	assert.Equal(t, []string{"a_c0001", "c0002", "c0010", "x"}, sorted)

	assert.Equal(t, "c0001, c0003", FormatChunkIDs([]string{"c0003", "c0001"}))
	assert.Equal(t, []string{"c0001", "c0003"}, ParseChunkIDs(" c0001, ,c0003 "))
	assert.Empty(t, ParseChunkIDs(""))
}

func TestPreview(t *testing.T) {
	t.Run("short text collapsed", func(t *testing.T) {
		assert.Equal(t, "a b c", Preview("a  b\n c", 200))
	})

	t.Run("first sentence", func(t *testing.T) {
		text := "First sentence. " + strings.Repeat("filler ", 60)
		assert.Equal(t, "First sentence.", Preview(text, 200))
	})

	t.Run("word boundary truncation", func(t *testing.T) {
		p := Preview(strings.Repeat("word ", 100), 200)
		assert.True(t, strings.HasSuffix(p, "word..."))
		assert.LessOrEqual(t, len(p), 203)
	})

	t.Run("multibyte truncation", func(t *testing.T) {
		p := TruncateText(strings.Repeat("中", 50), 10)
		assert.Equal(t, strings.Repeat("中", 10)+"...", p)
	})
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("Hello world. How are you?  Fine!")
	require.Len(t, sentences, 3)
	assert.Equal(t, Sentence{Text: "Hello world.", Start: 0, End: 12}, sentences[0])
	assert.Equal(t, Sentence{Text: "How are you?", Start: 13, End: 25}, sentences[1])
	assert.Equal(t, Sentence{Text: "Fine!", Start: 27, End: 32}, sentences[2])

	assert.Len(t, SplitSentences("no punctuation here"), 1)
	assert.Len(t, SplitSentences("e.g.x stays together"), 1)
	assert.Empty(t, SplitSentences("   "))
}

func TestNewChunkDefaults(t *testing.T) {
	c := newChunk(3, "", "  ", 10, 5, "", "")
	assert.Equal(t, "c0003", c.ID)
	assert.Equal(t, LeadSection, c.Section)
	assert.Equal(t, LeadSection, c.HeadingPath)
	assert.Equal(t, 10, c.EndChar)

	c = newChunk(0, "a", strings.Repeat("x", 41), 0, 41, "S", "P > S")
	assert.Equal(t, 41, c.CharCount)
	assert.Equal(t, 10, c.TokenEstimate)
	assert.Equal(t, "a_c0000", c.ID)
}
