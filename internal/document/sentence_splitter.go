package document

import "strings"

// SentenceSplitter 按句子贪心累积分块，重叠部分由完整的尾部句子构成
type SentenceSplitter struct {
	config SplitterConfig
}

// Split 实现 Splitter 接口
func (s *SentenceSplitter) Split(text string, sections []Section) ([]Chunk, error) {
	sentences := SplitSentences(text)

	var chunks []Chunk
	emit := func(group []Sentence) {
		if len(group) == 0 {
			return
		}
		parts := make([]string, len(group))
		for i, sent := range group {
			parts[i] = sent.Text
		}
		content := strings.TrimSpace(strings.Join(parts, " "))
		if content == "" {
			return
		}
		start, end := group[0].Start, group[len(group)-1].End
		section, path := resolveSection(sections, start, LeadSection, LeadSection)
		chunks = append(chunks, newChunk(len(chunks), s.config.ArticleID, content, start, end, section, path))
	}

	var current []Sentence
	currentLen := 0
	for _, sent := range sentences {
		if len(current) == 0 || currentLen+1+len(sent.Text) <= s.config.ChunkSize {
			current = append(current, sent)
			currentLen = joinedLen(current)
			continue
		}

		emit(current)

		// 重叠句子、连接空格与新句子合计不超过 ChunkSize
		window := s.config.ChunkOverlap
		if room := s.config.ChunkSize - len(sent.Text) - 1; window > room {
			window = room
		}
		current = append(overlapSentences(current, window), sent)
		currentLen = joinedLen(current)
	}
	emit(current)

	return limitChunks(chunks, s.config.MaxChunks), nil
}

// overlapSentences 从末尾取连接后长度不超过overlap的完整句子
func overlapSentences(sentences []Sentence, overlap int) []Sentence {
	if overlap <= 0 {
		return nil
	}
	total, i := 0, len(sentences)
	for i > 0 {
		next := total + len(sentences[i-1].Text)
		if total > 0 {
			next++
		}
		if next > overlap {
			break
		}
		total = next
		i--
	}
	out := make([]Sentence, len(sentences)-i)
	copy(out, sentences[i:])
	return out
}

// joinedLen 句子以单个空格连接后的长度
func joinedLen(sentences []Sentence) int {
	if len(sentences) == 0 {
		return 0
	}
	n := len(sentences) - 1
	for _, sent := range sentences {
		n += len(sent.Text)
	}
	return n
}
