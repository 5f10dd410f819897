package model

import (
	"mime/multipart"

	"github.com/fyerfyer/rag-dataset/internal/models"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为20，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// IngestRequest 维基百科导入请求
type IngestRequest struct {
	WikipediaURL string               `json:"wikipedia_url" binding:"required,url"` // 文章链接
	Options      models.IngestOptions `json:"options"`                              // 导入参数，缺省使用服务端默认值
}

// UploadRequest Markdown上传请求，导入参数以表单字段提交
type UploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
	models.IngestOptions
}

// ArticleURI 路径中的文章ID
type ArticleURI struct {
	ID string `uri:"id" binding:"required"`
}

// RunURI 路径中的运行ID
type RunURI struct {
	RunID string `uri:"run_id" binding:"required"`
}

// FileURI 产物下载路径
type FileURI struct {
	ID       string `uri:"id" binding:"required"`
	Filename string `uri:"filename" binding:"required"`
}
