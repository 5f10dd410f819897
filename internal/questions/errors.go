package questions

import (
	"errors"
	"fmt"
)

// ErrDataIntegrity 规划结果违反块不变量，属于程序缺陷
var ErrDataIntegrity = errors.New("data integrity violation")

// ValidationError 模型响应结构不符合约定
type ValidationError struct {
	Reason string
	Raw    string
	Err    error
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid question response: %s: %v", e.Reason, e.Err)
	}
	return "invalid question response: " + e.Reason
}

// Unwrap 返回底层错误
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func integrityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}
