package document

import (
	"fmt"
	"strings"
)

// DefaultUnwantedKeywords 章节名包含这些关键字的分块会被过滤
var DefaultUnwantedKeywords = []string{
	"references",
	"external links",
	"see also",
	"further reading",
	"bibliography",
	"notes",
	"footnotes",
	"citations",
	"sources",
	"external",
	"links",
	"related articles",
	"related topics",
	"additional",
	"resources",
	"web links",
	"online",
	"websites",
	"urls",
}

// FilterConfig 分块过滤配置
type FilterConfig struct {
	Enabled          bool     `mapstructure:"enabled"`           // 是否启用过滤
	MinWords         int      `mapstructure:"min_words"`         // 分块最少单词数
	FilterSections   bool     `mapstructure:"filter_sections"`   // 是否按章节关键字过滤
	UnwantedKeywords []string `mapstructure:"unwanted_keywords"` // 章节关键字（小写）

	exempt map[string]struct{} // 不参与关键字匹配的标题（小写）
}

// DefaultFilterConfig 返回默认过滤配置
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Enabled:          true,
		MinWords:         30,
		FilterSections:   true,
		UnwantedKeywords: DefaultUnwantedKeywords,
	}
}

// FilterDecision 单个分块的过滤结果
type FilterDecision struct {
	ChunkID string
	Reason  string
}

// ShouldFilter 判断分块是否应被过滤，返回原因
func (c FilterConfig) ShouldFilter(chunk Chunk) (bool, string) {
	if !c.Enabled {
		return false, ""
	}
	if c.FilterSections {
		if kw := c.unwantedKeyword(chunk.Section); kw != "" {
			return true, fmt.Sprintf("unwanted section %q (keyword %q)", chunk.Section, kw)
		}
		for _, part := range strings.Split(chunk.HeadingPath, HeadingPathSeparator) {
			if kw := c.unwantedKeyword(part); kw != "" {
				return true, fmt.Sprintf("unwanted heading path %q (keyword %q)", chunk.HeadingPath, kw)
			}
		}
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return true, "empty content"
	}
	if words := len(strings.Fields(chunk.Content)); words < c.MinWords {
		return true, fmt.Sprintf("short content: %d words (min: %d)", words, c.MinWords)
	}
	return false, ""
}

// ExemptHeadings 返回对指定标题不做关键字匹配的配置副本，用于文档的一级标题
func (c FilterConfig) ExemptHeadings(titles ...string) FilterConfig {
	exempt := make(map[string]struct{}, len(c.exempt)+len(titles))
	for t := range c.exempt {
		exempt[t] = struct{}{}
	}
	for _, t := range titles {
		exempt[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	c.exempt = exempt
	return c
}

func (c FilterConfig) unwantedKeyword(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return ""
	}
	if _, ok := c.exempt[lower]; ok {
		return ""
	}
	keywords := c.UnwantedKeywords
	if keywords == nil {
		keywords = DefaultUnwantedKeywords
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// FilterChunks 过滤不需要的分块，保留原有顺序和ID
func FilterChunks(chunks []Chunk, cfg FilterConfig) ([]Chunk, []FilterDecision) {
	kept := make([]Chunk, 0, len(chunks))
	var dropped []FilterDecision
	for _, chunk := range chunks {
		if drop, reason := cfg.ShouldFilter(chunk); drop {
			dropped = append(dropped, FilterDecision{ChunkID: chunk.ID, Reason: reason})
			continue
		}
		kept = append(kept, chunk)
	}
	return kept, dropped
}

// TopHeadings 返回一级标题，上传文档的一级标题即文档标题
func TopHeadings(sections []Section) []string {
	var titles []string
	for _, sec := range sections {
		if sec.Level == 1 {
			titles = append(titles, sec.Title)
		}
	}
	return titles
}
