package document

import (
	"errors"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArticle = `Alan Turing was an English mathematician. He is widely considered to be the father of computer science.

== Early life ==
Turing was born in Maida Vale, London. His father was a member of the Indian Civil Service.

=== Education ===
He attended Sherborne School. He later studied at King's College, Cambridge.

== Empty ==

== Legacy ==
The Turing Award is named after him! Is it the most prestigious award in computing? Many believe so.`

// assertChunkInvariants 检查所有策略共有的不变量
func assertChunkInvariants(t *testing.T, chunks []Chunk, articleID string) {
	t.Helper()
	for i, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Content), "chunk %d should not be empty", i)
		assert.Equal(t, ChunkID(i, articleID), c.ID)
		assert.GreaterOrEqual(t, c.EndChar, c.StartChar)
		assert.Equal(t, len(c.Content), c.CharCount)
		assert.Equal(t, c.CharCount/4, c.TokenEstimate)
		assert.NotEmpty(t, c.Section)
		assert.NotEmpty(t, c.HeadingPath)
		if i > 0 {
			assert.LessOrEqual(t, chunks[i-1].StartChar, c.StartChar, "start offsets must be non-decreasing")
		}
	}
}

func nonSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isSubsequence(sub, s string) bool {
	i := 0
	for _, r := range s {
		if i < len(sub) {
			sr, w := utf8.DecodeRuneInString(sub[i:])
			if sr == r {
				i += w
			}
		}
	}
	return i == len(sub)
}

// TestHeaderAwareSplitter 测试按标题分段
func TestHeaderAwareSplitter(t *testing.T) {
	t.Run("lead and two sections", func(t *testing.T) {
		text := "Intro text.\n\n== Section A ==\nContent A.\n\n== Section B ==\nContent B."
		chunks, err := SplitContent(text, nil, "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		assert.Equal(t, "Intro text.", chunks[0].Content)
		assert.Equal(t, LeadSection, chunks[0].Section)
		assert.Equal(t, LeadSection, chunks[0].HeadingPath)
		assert.Equal(t, "Content A.", chunks[1].Content)
		assert.Equal(t, "Section A", chunks[1].Section)
		assert.Equal(t, "Content B.", chunks[2].Content)
		assert.Equal(t, "Section B", chunks[2].Section)

		assert.Less(t, chunks[0].StartChar, chunks[1].StartChar)
		assert.Less(t, chunks[1].StartChar, chunks[2].StartChar)
		for _, c := range chunks {
			assert.Equal(t, c.Content, text[c.StartChar:c.EndChar])
		}
		assertChunkInvariants(t, chunks, "")
	})

	t.Run("empty sections are dropped", func(t *testing.T) {
		text := "== Empty ==\n\n== Full ==\nBody here."
		chunks, err := SplitContent(text, nil, "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Body here.", chunks[0].Content)
		assert.Equal(t, "Full", chunks[0].Section)
		assert.Equal(t, "c0000", chunks[0].ID)
	})

	t.Run("inline heading marker", func(t *testing.T) {
		text := "Some lead. == Inline == inline body"
		chunks, err := SplitContent(text, nil, "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "Some lead.", chunks[0].Content)
		assert.Equal(t, "inline body", chunks[1].Content)
		assert.Equal(t, "Inline", chunks[1].Section)
	})

	t.Run("markdown headings build heading paths", func(t *testing.T) {
		text := "# Title\n\nLead para.\n\n## History\n\nOld stuff."
		chunks, err := SplitContent(text, SectionsFromText(text), "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "Title", chunks[0].Section)
		assert.Equal(t, "Title", chunks[0].HeadingPath)
		assert.Equal(t, "History", chunks[1].Section)
		assert.Equal(t, "Title > History", chunks[1].HeadingPath)
	})

	t.Run("trailing hashes need whitespace to close a heading", func(t *testing.T) {
		text := "## C#\n\nA language.\n\n## Closed ##\n\nBody."
		chunks, err := SplitContent(text, nil, "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "C#", chunks[0].Section)
		assert.Equal(t, "A language.", strings.TrimSpace(chunks[0].Content))
		assert.Equal(t, "Closed", chunks[1].Section)
	})

	t.Run("metadata sections take precedence", func(t *testing.T) {
		text := "Intro.\n\n== X ==\nBody."
		sections := []Section{{Level: 2, Title: "Custom", HeadingPath: "Root > Custom", StartPos: 0}}
		chunks, err := SplitContent(text, sections, "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		for _, c := range chunks {
			assert.Equal(t, "Custom", c.Section)
			assert.Equal(t, "Root > Custom", c.HeadingPath)
		}
	})

	t.Run("large sections are never re-split", func(t *testing.T) {
		body := strings.Repeat("A very long sentence about one topic. ", 200)
		text := "== Big ==\n" + body
		chunks, err := SplitContent(text, nil, "header_aware", 100, 10, "")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, strings.TrimSpace(body), chunks[0].Content)
	})

	t.Run("article prefix in ids", func(t *testing.T) {
		chunks, err := SplitContent(sampleArticle, nil, "header_aware", 1200, 200, "alanturing_1a2b3c4d")
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "alanturing_1a2b3c4d_c0000", chunks[0].ID)
		assertChunkInvariants(t, chunks, "alanturing_1a2b3c4d")
	})

	t.Run("content is never fabricated", func(t *testing.T) {
		chunks, err := SplitContent(sampleArticle, SectionsFromText(sampleArticle), "header_aware", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 4)

		var joined strings.Builder
		for _, c := range chunks {
			joined.WriteString(c.Content)
		}
		assert.True(t, isSubsequence(nonSpace(joined.String()), nonSpace(sampleArticle)))
		assert.Equal(t, "Early life > Education", chunks[2].HeadingPath)
		assert.Equal(t, "Legacy", chunks[3].Section)
	})
}

// TestRecursiveSplitter 测试递归分隔符分段
func TestRecursiveSplitter(t *testing.T) {
	t.Run("bounded chunks with overlap", func(t *testing.T) {
		text := strings.Repeat("abcd efgh. ", 18) + "xy"
		require.Len(t, text, 200)

		chunks, err := SplitContent(text, nil, "recursive", 50, 10, "")
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)

		for i, c := range chunks {
			t.Logf("chunk %d [%d:%d] %q", i, c.StartChar, c.EndChar, c.Content)
			assert.LessOrEqual(t, len(c.Content), 50)
			assert.Equal(t, c.Content, text[c.StartChar:c.EndChar])
			if i > 0 {
				prev := chunks[i-1]
				assert.LessOrEqual(t, c.StartChar, prev.EndChar, "consecutive chunks should overlap")
				assert.LessOrEqual(t, prev.EndChar-c.StartChar, 10, "overlap should not exceed chunk_overlap")
			}
		}
		assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
		assertChunkInvariants(t, chunks, "")
	})

	t.Run("character fallback", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 10)
		chunks, err := SplitContent(text, nil, "recursive", 30, 5, "")
		require.NoError(t, err)
		require.Greater(t, len(chunks), 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c.Content), 30)
		}
		assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
	})

	t.Run("multibyte text stays valid utf8", func(t *testing.T) {
		text := strings.Repeat("这是测试文本需要按长度进行分割", 10)
		chunks, err := SplitContent(text, nil, "recursive", 50, 10, "")
		require.NoError(t, err)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c.Content))
			assert.LessOrEqual(t, len(c.Content), 50)
		}
	})

	t.Run("short text yields one chunk", func(t *testing.T) {
		chunks, err := SplitContent("  Just one line.  ", nil, "recursive", 1200, 200, "")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Just one line.", chunks[0].Content)
		assert.Equal(t, 2, chunks[0].StartChar)
	})

	t.Run("whitespace only text yields nothing", func(t *testing.T) {
		chunks, err := SplitContent("   \n\n  \n", nil, "recursive", 1200, 200, "")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("sections resolved by start offset", func(t *testing.T) {
		text := strings.Repeat("Paragraph text goes here.\n\n", 10)
		late := []Section{{Level: 2, Title: "Later", HeadingPath: "Later", StartPos: 10000}}
		chunks, err := SplitContent(text, late, "recursive", 60, 0, "")
		require.NoError(t, err)
		for _, c := range chunks {
			assert.Equal(t, LeadSection, c.Section)
		}

		first := []Section{{Level: 2, Title: "First", HeadingPath: "Top > First", StartPos: 0}}
		chunks, err = SplitContent(text, first, "recursive", 60, 0, "")
		require.NoError(t, err)
		for _, c := range chunks {
			assert.Equal(t, "First", c.Section)
			assert.Equal(t, "Top > First", c.HeadingPath)
		}
	})
}

// TestSentenceSplitter 测试按句子分段
func TestSentenceSplitter(t *testing.T) {
	text := "One is short. Two is short. Three is short. Four is short."

	t.Run("overlap carries whole sentences", func(t *testing.T) {
		chunks, err := SplitContent(text, nil, "sentence", 30, 15, "")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "One is short. Two is short.", chunks[0].Content)
		assert.Equal(t, "Two is short. Three is short.", chunks[1].Content)
		assert.Equal(t, "Three is short. Four is short.", chunks[2].Content)
		assert.Equal(t, 0, chunks[0].StartChar)
		assert.Equal(t, 14, chunks[1].StartChar)
		assert.Equal(t, 28, chunks[2].StartChar)
		assertChunkInvariants(t, chunks, "")
	})

	t.Run("no overlap", func(t *testing.T) {
		chunks, err := SplitContent(text, nil, "sentence", 30, 0, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "One is short. Two is short.", chunks[0].Content)
		assert.Equal(t, "Three is short. Four is short.", chunks[1].Content)
	})

	t.Run("overlap never pushes a chunk past chunk size", func(t *testing.T) {
		var sentences []string
		for _, r := range "abcd" {
			sentences = append(sentences, strings.Repeat(string(r), 69)+".")
		}
		chunks, err := SplitContent(strings.Join(sentences, " "), nil, "sentence", 100, 80, "")
		require.NoError(t, err)
		require.Len(t, chunks, 4)
		for i, c := range chunks {
			assert.Equal(t, sentences[i], c.Content)
		}

		var short []string
		for _, r := range "abcdef" {
			short = append(short, strings.Repeat(string(r), 19)+".")
		}
		chunks, err = SplitContent(strings.Join(short, " "), nil, "sentence", 50, 30, "")
		require.NoError(t, err)
		require.Len(t, chunks, 5)
		assert.Equal(t, short[0]+" "+short[1], chunks[0].Content)
		assert.Equal(t, short[1]+" "+short[2], chunks[1].Content)
		for _, c := range chunks {
			assert.LessOrEqual(t, c.CharCount, 50)
		}
		assertChunkInvariants(t, chunks, "")
	})

	t.Run("oversized sentence accepted alone", func(t *testing.T) {
		long := strings.Repeat("x", 80) + "."
		chunks, err := SplitContent(long+" Tail.", nil, "sentence", 30, 0, "")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, long, chunks[0].Content)
		assert.Equal(t, "Tail.", chunks[1].Content)
	})
}

// TestNewSplitter 测试分段器工厂
func TestNewSplitter(t *testing.T) {
	t.Run("unknown strategy is a splitting error", func(t *testing.T) {
		_, err := SplitContent("text", nil, "semantic", 1200, 200, "")
		require.Error(t, err)

		var splitErr *SplittingError
		require.True(t, errors.As(err, &splitErr))
		assert.Equal(t, "semantic", splitErr.Strategy)
		assert.True(t, errors.Is(err, ErrUnknownStrategy))

		_, err = NewSplitter(SplitterConfig{Strategy: "bogus", ChunkSize: 100})
		assert.True(t, errors.Is(err, ErrUnknownStrategy))
	})

	t.Run("invalid sizes", func(t *testing.T) {
		_, err := NewSplitter(SplitterConfig{Strategy: Recursive, ChunkSize: 0})
		assert.Error(t, err)
		_, err = NewSplitter(SplitterConfig{Strategy: Recursive, ChunkSize: 100, ChunkOverlap: -1})
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultSplitterConfig()
		assert.Equal(t, HeaderAware, cfg.Strategy)
		assert.Equal(t, 1200, cfg.ChunkSize)
		assert.Equal(t, 200, cfg.ChunkOverlap)

		st, err := ParseStrategy("")
		require.NoError(t, err)
		assert.Equal(t, HeaderAware, st)
		st, err = ParseStrategy(" Recursive ")
		require.NoError(t, err)
		assert.Equal(t, Recursive, st)
	})

	t.Run("max chunks", func(t *testing.T) {
		s, err := NewSplitter(SplitterConfig{Strategy: HeaderAware, ChunkSize: 1200, MaxChunks: 2})
		require.NoError(t, err)
		chunks, err := s.Split(sampleArticle, nil)
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})
}

// TestSplitInvariantsAllStrategies 所有策略都保持顺序且不产生空分块
func TestSplitInvariantsAllStrategies(t *testing.T) {
	for _, st := range Strategies {
		t.Run(string(st), func(t *testing.T) {
			chunks, err := SplitContent(sampleArticle, SectionsFromText(sampleArticle), string(st), 120, 30, "")
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			assertChunkInvariants(t, chunks, "")
		})
	}
}
