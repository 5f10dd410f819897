package document

import (
	"regexp"
	"strings"
)

// headingPattern 同时识别 MediaWiki 的 "== 标题 ==" （允许出现在行内）和 Markdown 的 "# 标题"（行首）
// Markdown 的结尾 # 前必须有空白，否则属于标题本身
var headingPattern = regexp.MustCompile(`(?m)(={2,6})[ \t]*([^=\n]+?)[ \t]*(={2,6})|^(#{1,6})[ \t]+([^\n]*?)(?:[ \t]+#+)?[ \t]*$`)

// heading 正文中的一个标题标记
type heading struct {
	Start int
	End   int
	Level int
	Title string
}

// findHeadings 单次正则扫描找出全部标题标记
func findHeadings(text string) []heading {
	var headings []heading
	for _, m := range headingPattern.FindAllStringSubmatchIndex(text, -1) {
		var h heading
		switch {
		case m[2] >= 0:
			open, close := m[3]-m[2], m[7]-m[6]
			if open != close {
				continue
			}
			h = heading{Start: m[0], End: m[1], Level: open, Title: strings.TrimSpace(text[m[4]:m[5]])}
		case m[8] >= 0:
			h = heading{Start: m[0], End: m[1], Level: m[9] - m[8], Title: strings.TrimSpace(text[m[10]:m[11]])}
		default:
			continue
		}
		if h.Title == "" {
			continue
		}
		headings = append(headings, h)
	}
	return headings
}

// headingTracker 维护嵌套标题栈以生成标题路径
type headingTracker struct {
	stack []string
}

func (t *headingTracker) push(level int, title string) string {
	if level < 1 {
		level = 1
	}
	if len(t.stack) >= level {
		t.stack = t.stack[:level-1]
	}
	for len(t.stack) < level-1 {
		t.stack = append(t.stack, "")
	}
	t.stack = append(t.stack, title)

	var parts []string
	for _, s := range t.stack {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, HeadingPathSeparator)
}

// HeaderAwareSplitter 按标题切分，每个非空章节恰好产生一个分块
// 章节不会合并，也不会因为过长而再次切分
type HeaderAwareSplitter struct {
	config SplitterConfig
}

// Split 实现 Splitter 接口
func (s *HeaderAwareSplitter) Split(text string, sections []Section) ([]Chunk, error) {
	headings := findHeadings(text)
	chunks := make([]Chunk, 0, len(headings)+1)

	emit := func(bodyStart, bodyEnd int, title, path string) {
		body := text[bodyStart:bodyEnd]
		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			return
		}
		start := bodyStart + strings.Index(body, trimmed)
		section, headingPath := resolveSection(sections, start, title, path)
		chunks = append(chunks, newChunk(len(chunks), s.config.ArticleID, trimmed, start, start+len(trimmed), section, headingPath))
	}

	leadEnd := len(text)
	if len(headings) > 0 {
		leadEnd = headings[0].Start
	}
	emit(0, leadEnd, LeadSection, LeadSection)

	var tracker headingTracker
	for i, h := range headings {
		next := len(text)
		if i+1 < len(headings) {
			next = headings[i+1].Start
		}
		path := tracker.push(h.Level, h.Title)
		emit(h.End, next, h.Title, path)
	}

	return limitChunks(chunks, s.config.MaxChunks), nil
}
