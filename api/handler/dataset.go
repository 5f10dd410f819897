package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/fyerfyer/rag-dataset/api/model"
	"github.com/fyerfyer/rag-dataset/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DatasetHandler 处理数据集查询、下载与校验
type DatasetHandler struct {
	articles   *services.ArticleService
	validation *services.ValidationService
	logger     *logrus.Logger
}

// NewDatasetHandler 创建数据集处理器，validation为空时校验接口不可用
func NewDatasetHandler(articles *services.ArticleService, validation *services.ValidationService) *DatasetHandler {
	return &DatasetHandler{
		articles:   articles,
		validation: validation,
		logger:     middleware.GetLogger(),
	}
}

// Get 获取文章的问答数据集
// GET /api/dataset/:id
func (h *DatasetHandler) Get(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	ds, err := h.articles.Dataset(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(ds))
}

// Download 以JSON附件下载数据集
// GET /api/dataset/:id/download
func (h *DatasetHandler) Download(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	ds, err := h.articles.Dataset(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to encode dataset", err.Error()))
		return
	}
	attachment(c, services.DatasetFilename(id), "application/json", data)
}

// Validate 用大模型校验数据集中的问答
// POST /api/validate/:id
func (h *DatasetHandler) Validate(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	if h.validation == nil {
		middleware.HandleError(c, middleware.NewBusinessError("Validation is not configured"))
		return
	}

	res, err := h.validation.Validate(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"article_id": id,
		"is_correct": res.IsCorrect,
		"validated":  res.ValidatedCount,
	}).Info("Dataset validated")
	c.JSON(http.StatusOK, model.NewSuccessResponse(res))
}
