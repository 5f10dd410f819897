package repository

import (
	"context"

	"github.com/fyerfyer/rag-dataset/internal/models"
)

// ArticleRepository 文章索引仓储接口
// 只保存元数据，正文与分块文件在对象存储中
type ArticleRepository interface {
	// Create 创建文章记录，ID重复时返回 models.ErrArticleExists
	Create(ctx context.Context, article *models.Article) error

	// Update 更新文章记录
	Update(ctx context.Context, article *models.Article) error

	// Get 根据ID获取文章
	Get(ctx context.Context, id string) (*models.Article, error)

	// FindByChecksum 根据URL摘要查找文章
	FindByChecksum(ctx context.Context, checksum string) (*models.Article, error)

	// List 按创建时间倒序分页列出文章，limit<=0时不分页
	List(ctx context.Context, offset, limit int) ([]*models.Article, int64, error)

	// Delete 删除文章记录
	Delete(ctx context.Context, id string) error
}

// RunRepository 导入运行记录仓储接口
type RunRepository interface {
	// Create 创建运行记录
	Create(ctx context.Context, run *models.IngestRun) error

	// Get 根据ID获取运行记录
	Get(ctx context.Context, id string) (*models.IngestRun, error)

	// UpdateStage 更新阶段、状态与消息
	UpdateStage(ctx context.Context, id string, update StageUpdate) error

	// ListByArticle 列出文章的全部运行记录，最新的在前
	ListByArticle(ctx context.Context, articleID string) ([]*models.IngestRun, error)

	// DeleteByArticle 删除文章的运行记录
	DeleteByArticle(ctx context.Context, articleID string) error
}

// StageUpdate 阶段更新内容，空字段不更新
type StageUpdate struct {
	Stage     models.Stage
	Status    models.RunStatus
	Message   string
	Error     string
	ArticleID string
}
