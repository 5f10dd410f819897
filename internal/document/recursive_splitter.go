package document

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators 由粗到细的分隔符，空串表示按字符切分
var DefaultSeparators = []string{
	"\n\n\n",
	"\n\n",
	"\n",
	". ",
	"! ",
	"? ",
	"; ",
	", ",
	" ",
	"",
}

// RecursiveSplitter 按分隔符优先级递归切分并贪心累积，相邻分块之间保留重叠
type RecursiveSplitter struct {
	config     SplitterConfig
	separators []string
}

// Split 实现 Splitter 接口
func (s *RecursiveSplitter) Split(text string, sections []Section) ([]Chunk, error) {
	size, overlap := s.config.ChunkSize, s.config.ChunkOverlap
	segments := s.splitRecursive(text, s.separators)

	var chunks []Chunk
	emit := func(start int, buf string) {
		trimmed := strings.TrimSpace(buf)
		if trimmed == "" {
			return
		}
		offset := start + strings.Index(buf, trimmed)
		section, path := resolveSection(sections, offset, LeadSection, LeadSection)
		chunks = append(chunks, newChunk(len(chunks), s.config.ArticleID, trimmed, offset, offset+len(trimmed), section, path))
	}

	// 分段按顺序首尾相接覆盖原文，因此 current 始终等于 text[start:start+len(current)]
	current, start := "", 0
	for _, seg := range segments {
		if len(current)+len(seg) <= size || current == "" {
			current += seg
			continue
		}

		emit(start, current)

		end := start + len(current)
		window := overlap
		if room := size - len(seg); window > room {
			window = room
		}
		if window < 0 {
			window = 0
		}
		overlapStart := alignRuneStart(text, end-window)
		if overlapStart < start {
			overlapStart = start
		}
		current = text[overlapStart:end] + seg
		start = overlapStart
	}
	emit(start, current)

	return limitChunks(chunks, s.config.MaxChunks), nil
}

// splitRecursive 使用能产生多个片段的最粗分隔符切分，超长片段再用更细的分隔符继续切分
func (s *RecursiveSplitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.config.ChunkSize {
		return []string{text}
	}
	for i, sep := range separators {
		if sep == "" {
			return splitRunes(text)
		}
		parts := strings.Split(text, sep)
		if len(parts) <= 1 {
			continue
		}

		pieces := make([]string, 0, len(parts))
		for j, p := range parts {
			if j < len(parts)-1 {
				pieces = append(pieces, p+sep)
			} else if p != "" {
				pieces = append(pieces, p)
			}
		}

		var out []string
		for _, p := range pieces {
			if len(p) > s.config.ChunkSize {
				out = append(out, s.splitRecursive(p, separators[i+1:])...)
			} else {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{text}
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for i, w := 0, 0; i < len(text); i += w {
		_, w = utf8.DecodeRuneInString(text[i:])
		out = append(out, text[i:i+w])
	}
	return out
}

// alignRuneStart 将字节偏移向后调整到合法的 UTF-8 字符起点
func alignRuneStart(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
