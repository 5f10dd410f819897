package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences 去掉模型常包裹在JSON外层的 ``` 代码块标记
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSONObject 截取从第一个 '{' 开始的对象文本
// 末尾有闭合括号时截到最后一个 '}'
func ExtractJSONObject(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return content
	}
	end := strings.LastIndexByte(content, '}')
	if end > start {
		return content[start : end+1]
	}
	return content[start:]
}

// BalanceBrackets 为被截断的JSON补齐未闭合的字符串与括号
func BalanceBrackets(content string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(content)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// RepairJSON 依次尝试去围栏、截取对象、补括号，返回最可能合法的JSON文本
func RepairJSON(content string) string {
	s := StripCodeFences(content)
	if json.Valid([]byte(s)) {
		return s
	}
	if candidate := ExtractJSONObject(s); json.Valid([]byte(candidate)) {
		return candidate
	}
	if start := strings.IndexByte(s, '{'); start > 0 {
		s = s[start:]
	}
	return BalanceBrackets(s)
}

// ParseJSONObject 修复并解析模型输出为JSON对象
func ParseJSONObject(content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	repaired := RepairJSON(content)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, &LLMError{
			Code:    ErrCodeInvalidJSON,
			Message: fmt.Sprintf("failed to parse JSON response: %v", err),
			Raw:     truncateRaw(content, 500),
			Err:     err,
		}
	}
	return parsed, nil
}

// finishJSON 为提供商响应填充解析结果
func finishJSON(provider string, resp *Response) (*Response, error) {
	parsed, err := ParseJSONObject(resp.Content)
	if err != nil {
		return nil, WrapError(err, provider, ErrCodeInvalidJSON)
	}
	resp.Parsed = parsed
	return resp, nil
}
