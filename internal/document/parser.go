package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Parser 文档解析器接口
// 负责将源文档转换为带标题标记的规范化正文及章节大纲
type Parser interface {
	// Parse 从Reader解析文档，title为空时由解析器推断
	Parse(r io.Reader, title string) (*ParsedDocument, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// HTML 文档类型（MediaWiki 导出的 HTML）
	HTML ContentType = "html"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// Wikitext 使用 == 标题 == 标记的纯文本
	Wikitext ContentType = "wikitext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ErrUnsupportedType 不支持的文档类型
var ErrUnsupportedType = errors.New("unsupported document type")

// ParsedDocument 解析后的文档结构
type ParsedDocument struct {
	Title     string    `json:"title"`      // 文档标题
	Content   string    `json:"content"`    // 规范化后的正文
	Sections  []Section `json:"sections"`   // 章节大纲，按起始位置排序
	WordCount int       `json:"word_count"` // 单词数
	CharCount int       `json:"char_count"` // 字符数
}

// ParserFactory 根据文件名创建对应的解析器
func ParserFactory(filename string) (Parser, error) {
	switch DetectContentType(filename) {
	case HTML:
		return NewHTMLCleaner(DefaultCleanerConfig()), nil
	case Markdown:
		return NewMarkdownParser(DefaultCleanerConfig()), nil
	case Wikitext:
		return NewWikitextParser(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filename string) ContentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return HTML
	case ".md", ".markdown":
		return Markdown
	case ".txt", ".wiki":
		return Wikitext
	default:
		return Unknown
	}
}

// titleFromFilename 去掉扩展名后作为标题
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
