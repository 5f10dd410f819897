package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/fyerfyer/rag-dataset/api/model"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 进度流的事件名
const (
	eventProgress  = "progress"
	eventHeartbeat = "heartbeat"
)

// DefaultHeartbeat 进度流心跳间隔
const DefaultHeartbeat = time.Second

// IngestHandler 处理导入相关的API请求
type IngestHandler struct {
	ingest    *services.IngestService // 导入服务
	heartbeat time.Duration           // 心跳间隔
	logger    *logrus.Logger          // 日志记录器
}

// NewIngestHandler 创建导入处理器
func NewIngestHandler(ingest *services.IngestService) *IngestHandler {
	return &IngestHandler{
		ingest:    ingest,
		heartbeat: DefaultHeartbeat,
		logger:    middleware.GetLogger(),
	}
}

// WithHeartbeat 设置心跳间隔
func (h *IngestHandler) WithHeartbeat(d time.Duration) *IngestHandler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// StartIngest 提交维基百科文章导入
// POST /api/ingest
func (h *IngestHandler) StartIngest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid ingest request", err.Error()))
		return
	}

	res, err := h.ingest.StartIngest(c.Request.Context(), req.WikipediaURL, req.Options)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"url":      req.WikipediaURL,
		"status":   res.Status,
		"trace_id": middleware.GetTraceID(c),
	}).Info("Ingestion requested")
	c.JSON(http.StatusOK, model.NewSuccessResponse(res))
}

// Upload 上传Markdown文件并导入
// POST /api/ingest/upload
func (h *IngestHandler) Upload(c *gin.Context) {
	var req model.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid upload request", err.Error()))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to open uploaded file", err.Error()))
		return
	}
	defer file.Close()

	res, err := h.ingest.StartUpload(c.Request.Context(), file, req.File.Filename, req.IngestOptions)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"filename": req.File.Filename,
		"size":     req.File.Size,
	}).Info("Upload ingestion requested")
	c.JSON(http.StatusOK, model.NewSuccessResponse(res))
}

// GetRun 查询运行记录
// GET /api/ingest/runs/:run_id
func (h *IngestHandler) GetRun(c *gin.Context) {
	var uri model.RunURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid run id", err.Error()))
		return
	}

	run, err := h.ingest.GetRun(c.Request.Context(), uri.RunID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(run))
}

// Stream 以SSE推送导入进度，直到运行结束或客户端断开
// GET /api/ingest/stream/:run_id
func (h *IngestHandler) Stream(c *gin.Context) {
	var uri model.RunURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid run id", err.Error()))
		return
	}
	ctx := c.Request.Context()

	run, err := h.ingest.GetRun(ctx, uri.RunID)
	if err != nil && !errors.Is(err, models.ErrRunNotFound) {
		middleware.HandleError(c, err)
		return
	}

	hub := h.ingest.Hub()
	if run == nil && !hub.Active(uri.RunID) {
		middleware.HandleError(c, models.ErrRunNotFound)
		return
	}

	replay, events, cancel := hub.Subscribe(uri.RunID)
	defer cancel()

	// 本进程没有该运行的事件且已结束，用运行记录补一条终止事件
	finished := run != nil && run.Stage.Terminal()
	if len(replay) == 0 && finished {
		replay = []services.ProgressEvent{runEvent(run)}
	}
	if !finished {
		hub.Follow(ctx, uri.RunID)
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for _, ev := range replay {
		c.SSEvent(eventProgress, ev)
		if ev.Stage.Terminal() {
			c.Writer.Flush()
			return
		}
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(eventProgress, ev)
			return !ev.Stage.Terminal()
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"type": "heartbeat"})
			return true
		}
	})
	h.logger.WithField("run_id", uri.RunID).Debug("Progress stream closed")
}

// runEvent 由运行记录构造进度事件
func runEvent(run *models.IngestRun) services.ProgressEvent {
	ev := services.ProgressEvent{
		RunID:     run.ID,
		Seq:       1,
		Stage:     run.Stage,
		Message:   run.Message,
		Timestamp: float64(run.UpdatedAt.UnixNano()) / float64(time.Second),
		ArticleID: run.ArticleID,
	}
	if run.Status == models.RunStatusExisting {
		ev.Details = map[string]any{"existing": true}
	}
	return ev
}
