package document

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultStripSections 清洗时整段移除的章节（小写比较）
var DefaultStripSections = []string{
	"see also",
	"references",
	"external links",
	"further reading",
	"bibliography",
	"notes",
	"citations",
	"sources",
	"footnotes",
}

const (
	maxSimpleTableRows  = 10
	maxSimpleTableCells = 5
)

// unwantedSelectors 清洗前直接删除的元素
const unwantedSelectors = "script, style, noscript, .navbox, .navbar, .navigation, .infobox, " +
	".reference, .citation, .mw-editsection, #toc"

const headingSelectors = "h1, h2, h3, h4, h5, h6"

var (
	citationMarker = regexp.MustCompile(`\[\d+\]`)
	citationNeeded = regexp.MustCompile(`(?i)\[citation needed\]`)
	whenMarker     = regexp.MustCompile(`(?i)\[when\?\]`)
)

// CleanerConfig HTML清洗配置
type CleanerConfig struct {
	StripSections bool     // 是否移除参考文献等章节
	SectionNames  []string // 需要移除的章节名（小写）
}

// DefaultCleanerConfig 返回默认清洗配置
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		StripSections: true,
		SectionNames:  DefaultStripSections,
	}
}

// HTMLCleaner 将 MediaWiki HTML 清洗为带 # 标题的正文，并记录章节大纲
type HTMLCleaner struct {
	config CleanerConfig
}

// NewHTMLCleaner 创建HTML清洗器
func NewHTMLCleaner(config CleanerConfig) *HTMLCleaner {
	return &HTMLCleaner{config: config}
}

// Parse 实现 Parser 接口
func (c *HTMLCleaner) Parse(r io.Reader, title string) (*ParsedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ParseError{Source: "html", Err: err}
	}
	return c.clean(doc, title), nil
}

// Clean 清洗HTML字符串
func (c *HTMLCleaner) Clean(html, title string) (*ParsedDocument, error) {
	return c.Parse(strings.NewReader(html), title)
}

func (c *HTMLCleaner) clean(doc *goquery.Document, title string) *ParsedDocument {
	doc.Find(unwantedSelectors).Remove()
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if !isSimpleTable(t) {
			t.Remove()
		}
	})
	if c.config.StripSections {
		c.stripSections(doc)
	}

	var (
		b        strings.Builder
		sections []Section
		tracker  headingTracker
	)
	write := func(block string) {
		b.WriteString(block)
		b.WriteString("\n\n")
	}

	doc.Find(headingSelectors + ", p, ul, ol, div, blockquote, pre, table").Each(func(_ int, s *goquery.Selection) {
		if detached(s) {
			return
		}
		tag := goquery.NodeName(s)
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if s.ParentsFiltered("p, ul, ol, table").Length() > 0 {
				return
			}
			text := extractText(s)
			if text == "" {
				return
			}
			level, _ := strconv.Atoi(tag[1:])
			if title == "" && level == 1 && len(sections) == 0 {
				title = text
			}
			sections = append(sections, Section{
				Level:       level,
				Title:       text,
				HeadingPath: tracker.push(level, text),
				StartPos:    b.Len(),
			})
			write(strings.Repeat("#", level) + " " + text)
		case "ul", "ol":
			if s.ParentsFiltered("p, ul, ol, table").Length() > 0 {
				return
			}
			prefix := "- "
			if tag == "ol" {
				prefix = "1. "
			}
			var items []string
			s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				if text := extractText(li); text != "" {
					items = append(items, prefix+text)
				}
			})
			if len(items) > 0 {
				write(strings.Join(items, "\n"))
			}
		case "table":
			if s.ParentsFiltered("p, ul, ol, table").Length() > 0 {
				return
			}
			if rows := tableRows(s); rows != "" {
				write(rows)
			}
		case "div":
			// 只输出不包含块级子元素的 div，避免重复输出
			if s.Find(headingSelectors+", p, ul, ol, div, blockquote, pre, table").Length() > 0 {
				return
			}
			fallthrough
		default:
			if s.ParentsFiltered("p, ul, ol, blockquote, pre, table").Length() > 0 {
				return
			}
			if text := extractText(s); text != "" {
				write(text)
			}
		}
	})

	content := strings.TrimRight(b.String(), "\n")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return &ParsedDocument{
		Title:     title,
		Content:   content,
		Sections:  sections,
		WordCount: len(strings.Fields(content)),
		CharCount: len(content),
	}
}

// stripSections 删除指定章节标题及其后直到同级或更高级标题之间的全部兄弟节点
// h1 是文档标题，不参与剔除
func (c *HTMLCleaner) stripSections(doc *goquery.Document) {
	names := make(map[string]struct{}, len(c.config.SectionNames))
	for _, n := range c.config.SectionNames {
		names[strings.ToLower(n)] = struct{}{}
	}

	doc.Find(headingSelectors).Each(func(_ int, h *goquery.Selection) {
		if detached(h) {
			return
		}
		level, _ := strconv.Atoi(goquery.NodeName(h)[1:])
		if level <= 1 {
			return
		}
		if _, ok := names[strings.ToLower(extractText(h))]; !ok {
			return
		}
		for next := h.Next(); next.Length() > 0; {
			if tag := goquery.NodeName(next); len(tag) == 2 && tag[0] == 'h' {
				if l, err := strconv.Atoi(tag[1:]); err == nil && l <= level {
					break
				}
			}
			following := next.Next()
			next.Remove()
			next = following
		}
		h.Remove()
	})
}

func isSimpleTable(t *goquery.Selection) bool {
	rows := t.Find("tr")
	if rows.Length() > maxSimpleTableRows {
		return false
	}
	simple := true
	rows.EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.Find("td, th").Length() > maxSimpleTableCells {
			simple = false
		}
		return simple
	})
	return simple
}

func tableRows(t *goquery.Selection) string {
	var rows []string
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, extractText(cell))
		})
		if line := strings.TrimSpace(strings.Join(cells, " | ")); strings.Trim(line, "| ") != "" {
			rows = append(rows, line)
		}
	})
	return strings.Join(rows, "\n")
}

// extractText 提取元素文本并去除引用标记
func extractText(s *goquery.Selection) string {
	text := CollapseWhitespace(s.Text())
	text = citationMarker.ReplaceAllString(text, "")
	text = citationNeeded.ReplaceAllString(text, "")
	text = whenMarker.ReplaceAllString(text, "")
	return CollapseWhitespace(text)
}

func detached(s *goquery.Selection) bool {
	return len(s.Nodes) == 0 || s.Nodes[0].Parent == nil
}

// CleanWikipediaHTML 使用默认配置清洗 Wikipedia HTML
func CleanWikipediaHTML(html, title string, stripSections bool) (*ParsedDocument, error) {
	cfg := DefaultCleanerConfig()
	cfg.StripSections = stripSections
	parsed, err := NewHTMLCleaner(cfg).Clean(html, title)
	if err != nil {
		return nil, fmt.Errorf("clean wikipedia html: %w", err)
	}
	return parsed, nil
}
