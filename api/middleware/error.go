package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/rag-dataset/api/model"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation = "VALIDATION_ERROR" // 输入验证错误
	ErrorTypeNotFound   = "NOT_FOUND_ERROR"  // 资源不存在错误
	ErrorTypeInternal   = "INTERNAL_ERROR"   // 内部服务器错误
	ErrorTypeBusiness   = "BUSINESS_ERROR"   // 业务逻辑错误
	ErrorTypeUpstream   = "UPSTREAM_ERROR"   // 大模型等外部服务错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // 错误代码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUpstreamError 创建外部服务错误
func NewUpstreamError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadGateway,
	}
}

// FromError 把服务层错误映射为应用错误
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var llmErr *llm.LLMError
	var splitErr *document.SplittingError
	switch {
	case errors.Is(err, models.ErrArticleNotFound):
		return NewNotFoundError("Article not found")
	case errors.Is(err, models.ErrRunNotFound):
		return NewNotFoundError("Ingest run not found")
	case errors.Is(err, services.ErrDatasetNotFound):
		return NewNotFoundError("Dataset not found")
	case errors.Is(err, services.ErrFileNotFound):
		return NewNotFoundError("File not found")
	case errors.Is(err, services.ErrInvalidURL):
		return NewValidationError("Invalid Wikipedia URL", err.Error())
	case errors.Is(err, services.ErrUnsupportedFile):
		return NewValidationError("Only Markdown files (.md, .markdown) are supported", err.Error())
	case errors.As(err, &splitErr):
		return NewValidationError("Invalid split strategy", err.Error())
	case errors.As(err, &llmErr):
		return NewUpstreamError("LLM Error: "+llmErr.Message, err.Error())
	}
	return NewInternalError("Internal server error", err.Error())
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error": err,
					"stack": string(debug.Stack()),
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = GetTraceID(c)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 取最后一个错误进行处理
		e := FromError(c.Errors.Last().Err)
		traceID := GetTraceID(c)
		entry := log.WithFields(logrus.Fields{
			"error_type": e.Type,
			"trace_id":   traceID,
			"path":       c.Request.URL.Path,
		})
		if e.Details != "" {
			entry = entry.WithField("details", e.Details)
		}
		if e.Code >= http.StatusInternalServerError {
			entry.Error(e.Message)
		} else {
			entry.Warn(e.Message)
		}

		errResp := model.NewErrorResponse(e.Code, e.Message)
		// 内部错误只在开发环境返回细节
		if e.Details != "" && (e.Code < http.StatusInternalServerError || gin.Mode() == gin.DebugMode) {
			errResp.Message = e.Message + ": " + e.Details
		}
		errResp.TraceID = traceID
		c.AbortWithStatusJSON(e.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
