package document

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LeadSection 首个标题之前内容所属的章节名
const LeadSection = "Lead"

// HeadingPathSeparator 标题路径分隔符
const HeadingPathSeparator = " > "

// DefaultPreviewLength 分块预览的默认最大长度
const DefaultPreviewLength = 200

// Section 清洗阶段产出的章节大纲条目
type Section struct {
	Level       int    `json:"level" yaml:"level"`               // 标题级别 1..6
	Title       string `json:"title" yaml:"title"`               // 标题文本
	HeadingPath string `json:"heading_path" yaml:"heading_path"` // 从根到该标题的路径
	StartPos    int    `json:"start_pos" yaml:"start_pos"`       // 标题在正文中的起始偏移
}

// Chunk 文章中的一个可检索文本块
// 偏移量与长度均以字节计
type Chunk struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	StartChar     int    `json:"start_char"`
	EndChar       int    `json:"end_char"`
	Section       string `json:"section"`
	HeadingPath   string `json:"heading_path"`
	CharCount     int    `json:"char_count"`
	TokenEstimate int    `json:"token_estimate"`
	Preview       string `json:"preview"`
}

// newChunk 根据序号和内容构造分块，派生字段在此计算
func newChunk(index int, articleID, content string, start, end int, section, headingPath string) Chunk {
	if section == "" {
		section = LeadSection
	}
	if headingPath == "" {
		headingPath = LeadSection
	}
	if end < start {
		end = start
	}
	return Chunk{
		ID:            ChunkID(index, articleID),
		Content:       content,
		StartChar:     start,
		EndChar:       end,
		Section:       section,
		HeadingPath:   headingPath,
		CharCount:     len(content),
		TokenEstimate: TokenEstimate(content),
		Preview:       Preview(content, DefaultPreviewLength),
	}
}

// TokenEstimate 粗略估算token数（平均4个字符一个token）
func TokenEstimate(text string) int {
	return len(text) / 4
}

// ChunkID 生成分块ID，带文章前缀时为 <article>_cNNNN
func ChunkID(index int, articleID string) string {
	if articleID == "" {
		return fmt.Sprintf("c%04d", index)
	}
	return fmt.Sprintf("%s_c%04d", articleID, index)
}

var chunkIndexPattern = regexp.MustCompile(`(?:^|_)c(\d+)$`)

// ChunkIndex 从分块ID中解析序号
func ChunkIndex(id string) (int, error) {
	m := chunkIndexPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return 0, fmt.Errorf("invalid chunk id format: %s", id)
	}
	return strconv.Atoi(m[1])
}

// SortChunkIDs 按序号数值排序，无法解析的ID排在最后
func SortChunkIDs(ids []string) []string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, errA := ChunkIndex(sorted[i])
		b, errB := ChunkIndex(sorted[j])
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a < b
		}
	})
	return sorted
}

// FormatChunkIDs 排序后以逗号连接
func FormatChunkIDs(ids []string) string {
	return strings.Join(SortChunkIDs(ids), ", ")
}

// ParseChunkIDs 解析逗号分隔的分块ID列表
func ParseChunkIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CollapseWhitespace 将连续空白压缩为单个空格
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// TruncateText 截断到maxLen个字符，尽量在单词边界处断开
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	truncated := string(runes[:maxLen])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace >= 0 &&
		utf8.RuneCountInString(truncated[:lastSpace]) > maxLen*8/10 {
		return truncated[:lastSpace] + "..."
	}
	return truncated + "..."
}

// Preview 生成分块预览：优先整句，否则按单词边界截断
func Preview(text string, maxLen int) string {
	text = CollapseWhitespace(text)
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if sentences := SplitSentences(text); len(sentences) > 0 {
		if first := sentences[0].Text; utf8.RuneCountInString(first) <= maxLen {
			return first
		}
	}
	return TruncateText(text, maxLen)
}

// Sentence 句子及其在原文中的偏移
type Sentence struct {
	Text  string
	Start int
	End   int
}

// SplitSentences 在 .!? 后接空白处断句，返回去除首尾空白后的非空句子
func SplitSentences(text string) []Sentence {
	var sentences []Sentence
	add := func(start, end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		offset := start + strings.Index(raw, trimmed)
		sentences = append(sentences, Sentence{Text: trimmed, Start: offset, End: offset + len(trimmed)})
	}

	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if !isSpaceByte(text[i+1]) {
			continue
		}
		add(start, i+1)
		j := i + 1
		for j < len(text) && isSpaceByte(text[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(text) {
		add(start, len(text))
	}
	return sentences
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
