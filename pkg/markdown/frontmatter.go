// Package markdown 提供带YAML头信息的Markdown读写与表格渲染
package markdown

import (
	"bytes"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

var frontMatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\r?\n(.*?)\r?\n---[ \t]*\r?\n(.*)$`)

// WithFrontMatter 将头信息序列化为YAML并置于正文之前
// meta为nil时原样返回正文
func WithFrontMatter(meta any, body string) (string, error) {
	if meta == nil {
		return body, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("failed to serialize front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to serialize front matter: %w", err)
	}
	return delimiter + "\n" + buf.String() + delimiter + "\n" + body, nil
}

// SplitFrontMatter 拆分头信息与正文，没有头信息时返回空的头信息
func SplitFrontMatter(content string) (header string, body string, ok bool) {
	m := frontMatterPattern.FindStringSubmatch(content)
	if m == nil {
		return "", content, false
	}
	return m[1], m[2], true
}

// ParseFrontMatter 将头信息解析到out中并返回正文
// 没有头信息时out保持不变，YAML错误时返回错误
func ParseFrontMatter(content string, out any) (string, error) {
	header, body, ok := SplitFrontMatter(content)
	if !ok {
		return content, nil
	}
	if err := yaml.Unmarshal([]byte(header), out); err != nil {
		return content, fmt.Errorf("failed to parse front matter: %w", err)
	}
	return body, nil
}
