package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// HandlerFunc 用函数实现 Handler
type HandlerFunc struct {
	Types []TaskType
	Fn    func(ctx context.Context, task *Task) error
}

// NewHandlerFunc 创建函数处理器
func NewHandlerFunc(fn func(ctx context.Context, task *Task) error, types ...TaskType) *HandlerFunc {
	return &HandlerFunc{Types: types, Fn: fn}
}

// ProcessTask 实现 Handler
func (h *HandlerFunc) ProcessTask(ctx context.Context, task *Task) error {
	return h.Fn(ctx, task)
}

// GetTaskTypes 实现 Handler
func (h *HandlerFunc) GetTaskTypes() []TaskType {
	return h.Types
}

// RegisterAll 按处理器声明的类型注册到工作者
func RegisterAll(w Worker, handlers ...Handler) {
	for _, h := range handlers {
		for _, t := range h.GetTaskTypes() {
			w.RegisterHandler(t, h)
		}
	}
}

// executor 执行任务并维护任务状态
type executor struct {
	queue  Queue
	logger *logrus.Logger
}

// run 执行单个任务
// willRetry 返回true时失败任务回到等待状态，否则标记为失败
func (e *executor) run(ctx context.Context, h Handler, taskID string, willRetry func(error) bool) error {
	task, err := e.queue.GetTask(ctx, taskID)
	if err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task info")
		if errors.Is(err, ErrTaskNotFound) {
			return fmt.Errorf("%w: %w", ErrSkipRetry, err)
		}
		return err
	}

	if err := e.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Error("Failed to update task status to processing")
	}
	e.notify(ctx, taskID)

	fields := logrus.Fields{
		"task_id":   taskID,
		"task_type": task.Type,
		"run_id":    task.RunID,
	}
	err = h.ProcessTask(ctx, task)
	if err != nil {
		status := StatusFailed
		if willRetry != nil && willRetry(err) {
			status = StatusPending
		}
		if updateErr := e.queue.UpdateTaskStatus(ctx, taskID, status, nil, err.Error()); updateErr != nil {
			e.logger.WithError(updateErr).WithFields(fields).Error("Failed to update task status after failure")
		}
		e.notify(ctx, taskID)
		e.logger.WithError(err).WithFields(fields).WithField("status", status).Error("Task failed")
		return err
	}

	var result interface{}
	if len(task.Result) > 0 {
		result = task.Result
	}
	if err := e.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		e.logger.WithError(err).WithFields(fields).Error("Failed to update task status after completion")
	}
	e.notify(ctx, taskID)
	e.logger.WithFields(fields).Info("Task completed")
	return nil
}

func (e *executor) notify(ctx context.Context, taskID string) {
	if err := e.queue.NotifyTaskUpdate(ctx, taskID); err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to notify task update")
	}
}
