package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
// 先用 gomarkdown 渲染为 HTML，再交给 HTMLCleaner 生成正文和章节大纲
type MarkdownParser struct {
	cleaner *HTMLCleaner
}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser(config CleanerConfig) *MarkdownParser {
	return &MarkdownParser{cleaner: NewHTMLCleaner(config)}
}

// Parse 实现 Parser 接口
func (p *MarkdownParser) Parse(r io.Reader, title string) (*ParsedDocument, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Source: "markdown", Err: fmt.Errorf("failed to read markdown content: %w", err)}
	}

	htmlContent := RenderMarkdown(content)
	return p.cleaner.Parse(bytes.NewReader(htmlContent), title)
}

// RenderMarkdown 将Markdown转换为HTML
func RenderMarkdown(content []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})

	return markdown.Render(doc, renderer)
}
