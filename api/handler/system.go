package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/fyerfyer/rag-dataset/api/model"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/gin-gonic/gin"
)

// HealthCheck 单个依赖的检查函数
type HealthCheck func(ctx context.Context) error

// SystemInfo 健康检查与配置接口需要的信息
type SystemInfo struct {
	Version     string
	Provider    string
	Model       string
	Defaults    models.IngestOptions
	AsyncIngest bool
	Checks      map[string]HealthCheck
}

// SystemHandler 处理健康检查和配置查询
type SystemHandler struct {
	info SystemInfo
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(info SystemInfo) *SystemHandler {
	return &SystemHandler{info: info}
}

// Health 健康检查，任一依赖失败时返回503
// GET /api/health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	resp := model.HealthResponse{
		Status:   "healthy",
		Version:  h.info.Version,
		Provider: h.info.Provider,
		Services: make(map[string]string, len(h.info.Checks)),
		Message:  "Service is running",
	}
	for name, check := range h.info.Checks {
		if err := check(ctx); err != nil {
			middleware.GetLogger().WithError(err).WithField("service", name).Warn("Health check failed")
			resp.Services[name] = "error"
			resp.Status = "unhealthy"
			resp.Message = "Service has issues"
			continue
		}
		resp.Services[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, model.NewSuccessResponse(resp))
}

// Config 返回非敏感的默认配置
// GET /api/config
func (h *SystemHandler) Config(c *gin.Context) {
	strategies := make([]string, 0, len(document.Strategies))
	for _, s := range document.Strategies {
		strategies = append(strategies, string(s))
	}
	d := h.info.Defaults
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConfigResponse{
		LLMProvider:           h.info.Provider,
		LLMModel:              h.info.Model,
		Providers:             llm.Providers(),
		DefaultChunkSize:      d.ChunkSize,
		DefaultChunkOverlap:   d.ChunkOverlap,
		DefaultSplitStrategy:  d.SplitStrategy,
		DefaultTotalQuestions: d.TotalQuestions,
		SplitStrategies:       strategies,
		AsyncIngest:           h.info.AsyncIngest,
	}))
}
