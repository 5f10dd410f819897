package wiki

import "fmt"

// FetchError 获取维基百科文章失败
type FetchError struct {
	URL     string
	Message string
	// Temporary 网络错误或服务端错误，可以重试
	Temporary bool
	Err       error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

// Unwrap 返回底层错误
func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(url, message string, err error) *FetchError {
	return &FetchError{URL: url, Message: message, Err: err}
}
