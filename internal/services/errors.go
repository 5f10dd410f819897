package services

import "errors"

var (
	// ErrInvalidURL 不是可抓取的维基百科文章地址
	ErrInvalidURL = errors.New("invalid wikipedia url")

	// ErrUnsupportedFile 上传的文件类型不支持
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrDatasetNotFound 文章没有数据集文件
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrFileNotFound 请求的产物文件不存在
	ErrFileNotFound = errors.New("file not found")
)

// IngestionError 导入流水线在某个阶段失败
type IngestionError struct {
	RunID string
	Stage string
	Err   error
}

// Error 实现error接口
func (e *IngestionError) Error() string {
	return "ingestion failed at " + e.Stage + ": " + e.Err.Error()
}

// Unwrap 返回底层错误
func (e *IngestionError) Unwrap() error {
	return e.Err
}
