package document

import (
	"fmt"
	"io"
	"strings"
)

// WikitextParser 解析已带 "== 标题 ==" 或 "# 标题" 标记的纯文本
type WikitextParser struct{}

// NewWikitextParser 创建一个新的纯文本解析器
func NewWikitextParser() *WikitextParser {
	return &WikitextParser{}
}

// Parse 实现 Parser 接口，章节大纲由正文中的标题标记推出
func (p *WikitextParser) Parse(r io.Reader, title string) (*ParsedDocument, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Source: "wikitext", Err: fmt.Errorf("failed to read text: %w", err)}
	}

	content := strings.TrimSpace(strings.ReplaceAll(string(raw), "\r\n", "\n"))
	sections := SectionsFromText(content)
	if title == "" {
		for _, sec := range sections {
			if sec.Level == 1 {
				title = sec.Title
				break
			}
		}
	}

	return &ParsedDocument{
		Title:     title,
		Content:   content,
		Sections:  sections,
		WordCount: len(strings.Fields(content)),
		CharCount: len(content),
	}, nil
}

// SectionsFromText 从正文中的标题标记构造章节大纲
func SectionsFromText(text string) []Section {
	headings := findHeadings(text)
	sections := make([]Section, 0, len(headings))
	var tracker headingTracker
	for _, h := range headings {
		sections = append(sections, Section{
			Level:       h.Level,
			Title:       h.Title,
			HeadingPath: tracker.push(h.Level, h.Title),
			StartPos:    h.Start,
		})
	}
	return sections
}
