package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/fyerfyer/rag-dataset/api/model"
	"github.com/fyerfyer/rag-dataset/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ArticleHandler 处理文章相关的API请求
type ArticleHandler struct {
	articles *services.ArticleService // 文章服务
	logger   *logrus.Logger           // 日志记录器
}

// NewArticleHandler 创建文章处理器
func NewArticleHandler(articles *services.ArticleService) *ArticleHandler {
	return &ArticleHandler{
		articles: articles,
		logger:   middleware.GetLogger(),
	}
}

// List 分页列出文章
// GET /api/articles
func (h *ArticleHandler) List(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	list, err := h.articles.List(c.Request.Context(), req.Offset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(list))
}

// Get 获取文章头信息
// GET /api/articles/:id
func (h *ArticleHandler) Get(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	meta, err := h.articles.Get(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(meta))
}

// Chunks 获取文章全部分块
// GET /api/articles/:id/chunks
func (h *ArticleHandler) Chunks(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	chunks, err := h.articles.Chunks(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(chunks))
}

// Export 以附件形式导出单篇文章
// GET /api/articles/:id/export
func (h *ArticleHandler) Export(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	exp, err := h.articles.Export(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to encode export", err.Error()))
		return
	}
	h.logger.WithFields(logrus.Fields{
		"article_id": id,
		"chunks":     len(exp.Chunks),
		"questions":  exp.Questions.TotalQuestions,
	}).Info("Article exported")
	attachment(c, services.ExportFilename(exp.Article.Title), "application/json", data)
}

// ExportAll 把全部文章打包为zip下载
// GET /api/articles/export/all
func (h *ArticleHandler) ExportAll(c *gin.Context) {
	var buf bytes.Buffer
	manifest, err := h.articles.ExportAll(c.Request.Context(), &buf)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	name := services.ExportAllFilename(time.Now(), manifest.SuccessfulExports)
	attachment(c, name, "application/zip", buf.Bytes())
}

// Delete 删除文章
// DELETE /api/articles/:id
func (h *ArticleHandler) Delete(c *gin.Context) {
	id, ok := bindArticleID(c)
	if !ok {
		return
	}
	if err := h.articles.Delete(c.Request.Context(), id); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{
		Success:   true,
		ArticleID: id,
		Message:   "Article deleted successfully",
	}))
}

// File 下载文章目录下的单个产物
// GET /api/files/:id/:filename
func (h *ArticleHandler) File(c *gin.Context) {
	var uri model.FileURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid file path", err.Error()))
		return
	}
	f, err := h.articles.File(c.Request.Context(), uri.ID, uri.Filename)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	attachment(c, f.Name, f.ContentType, f.Data)
}

func bindArticleID(c *gin.Context) (string, bool) {
	var uri model.ArticleURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid article id", err.Error()))
		return "", false
	}
	return uri.ID, true
}

// attachment 以下载附件返回数据
func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
