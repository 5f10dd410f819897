package document

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy 未知的分段策略
var ErrUnknownStrategy = errors.New("unknown split strategy")

// SplittingError 分段配置错误，属于致命错误，调用方不应重试
type SplittingError struct {
	Strategy string
	Err      error
}

func (e *SplittingError) Error() string {
	return fmt.Sprintf("splitting error (strategy=%s): %v", e.Strategy, e.Err)
}

func (e *SplittingError) Unwrap() error {
	return e.Err
}

// ParseError 文档解析错误
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
