package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/pkg/taskqueue"
)

// IngestTaskHandler 在worker中执行导入任务
type IngestTaskHandler struct {
	service *IngestService
}

// NewIngestTaskHandler 创建导入任务处理器
func NewIngestTaskHandler(service *IngestService) *IngestTaskHandler {
	return &IngestTaskHandler{service: service}
}

// GetTaskTypes 实现 taskqueue.Handler
func (h *IngestTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskIngestArticle, taskqueue.TaskIngestUpload}
}

// ProcessTask 实现 taskqueue.Handler
// 导入失败已经记录在运行记录里，这里只把结果写回任务
func (h *IngestTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.IngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.RunID == "" {
		payload.RunID = task.RunID
	}

	var opts models.IngestOptions
	if err := taskqueue.UnmarshalPayload(payload.Options, &opts); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}

	var (
		article *models.Article
		err     error
	)
	switch task.Type {
	case taskqueue.TaskIngestArticle:
		if payload.URL == "" {
			return fmt.Errorf("%w: missing url", taskqueue.ErrInvalidPayload)
		}
		article, err = h.service.IngestURL(ctx, payload.RunID, payload.URL, opts)
	case taskqueue.TaskIngestUpload:
		if payload.UploadKey == "" {
			return fmt.Errorf("%w: missing upload key", taskqueue.ErrInvalidPayload)
		}
		article, err = h.service.IngestUpload(ctx, payload.RunID, payload.UploadKey, payload.Filename, opts)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
	if err != nil {
		// 运行已进入FAILED，不再重试
		return fmt.Errorf("%w: %w", taskqueue.ErrSkipRetry, err)
	}

	stats := article.Stats.Data()
	task.Result, err = taskqueue.MarshalPayload(taskqueue.IngestResult{
		ArticleID:    article.ID,
		NumChunks:    stats.NumChunks,
		NumQuestions: stats.NumQuestions,
	})
	return err
}
