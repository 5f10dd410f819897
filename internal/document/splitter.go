package document

import (
	"fmt"
	"strings"
)

// SplitStrategy 文本分段策略
type SplitStrategy string

const (
	// HeaderAware 按标题分段，每个章节一个分块
	HeaderAware SplitStrategy = "header_aware"
	// Recursive 按分隔符优先级递归分段，限制分块大小
	Recursive SplitStrategy = "recursive"
	// BySentence 按句子累积分段
	BySentence SplitStrategy = "sentence"
)

// Strategies 所有支持的分段策略
var Strategies = []SplitStrategy{HeaderAware, Recursive, BySentence}

// ParseStrategy 将字符串解析为分段策略
func ParseStrategy(s string) (SplitStrategy, error) {
	if s == "" {
		return HeaderAware, nil
	}
	for _, st := range Strategies {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", &SplittingError{Strategy: s, Err: ErrUnknownStrategy}
}

// SplitterConfig 分段器配置
type SplitterConfig struct {
	Strategy     SplitStrategy // 分段策略
	ChunkSize    int           // 分块目标最大长度（字符数）
	ChunkOverlap int           // 相邻分块的重叠长度，header_aware 不使用
	ArticleID    string        // 分块ID前缀（可选）
	MaxChunks    int           // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		Strategy:     HeaderAware,
		ChunkSize:    1200,
		ChunkOverlap: 200,
	}
}

// Splitter 文本分段器接口
// 将规范化后的正文与章节大纲转换为有序分块序列
type Splitter interface {
	Split(text string, sections []Section) ([]Chunk, error)
}

// NewSplitter 根据配置中的策略创建分段器
func NewSplitter(config SplitterConfig) (Splitter, error) {
	if config.ChunkSize <= 0 {
		return nil, &SplittingError{
			Strategy: string(config.Strategy),
			Err:      fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize),
		}
	}
	if config.ChunkOverlap < 0 {
		return nil, &SplittingError{
			Strategy: string(config.Strategy),
			Err:      fmt.Errorf("chunk overlap must not be negative, got %d", config.ChunkOverlap),
		}
	}

	switch config.Strategy {
	case HeaderAware, "":
		return &HeaderAwareSplitter{config: config}, nil
	case Recursive:
		return &RecursiveSplitter{config: config, separators: DefaultSeparators}, nil
	case BySentence:
		return &SentenceSplitter{config: config}, nil
	default:
		return nil, &SplittingError{Strategy: string(config.Strategy), Err: ErrUnknownStrategy}
	}
}

// SplitContent 按给定策略切分文本的便捷函数
func SplitContent(content string, sections []Section, strategy string, chunkSize, chunkOverlap int, articleID string) ([]Chunk, error) {
	st, err := ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	splitter, err := NewSplitter(SplitterConfig{
		Strategy:     st,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		ArticleID:    articleID,
	})
	if err != nil {
		return nil, err
	}
	return splitter.Split(content, sections)
}

// resolveSection 取起始位置不晚于pos的最后一个章节；没有命中时使用默认值
func resolveSection(sections []Section, pos int, defSection, defPath string) (string, string) {
	section, path := defSection, defPath
	for _, sec := range sections {
		if sec.StartPos > pos {
			break
		}
		section = sec.Title
		if sec.HeadingPath != "" {
			path = sec.HeadingPath
		} else {
			path = sec.Title
		}
	}
	return section, path
}

// limitChunks 应用最大分块数量限制
func limitChunks(chunks []Chunk, max int) []Chunk {
	if max > 0 && len(chunks) > max {
		return chunks[:max]
	}
	return chunks
}
