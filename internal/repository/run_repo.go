package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/models"
)

// runRepository 运行记录仓储实现
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储，db为nil时使用全局连接
func NewRunRepository(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建运行记录
func (r *runRepository) Create(ctx context.Context, run *models.IngestRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Get 根据ID获取运行记录
func (r *runRepository) Get(ctx context.Context, id string) (*models.IngestRun, error) {
	var run models.IngestRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// UpdateStage 更新运行阶段，进入终止阶段时记录结束时间
func (r *runRepository) UpdateStage(ctx context.Context, id string, update StageUpdate) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if update.Stage != "" {
		updates["stage"] = update.Stage
		if update.Stage.Terminal() {
			now := time.Now().UTC()
			updates["finished_at"] = &now
		}
	}
	if update.Status != "" {
		updates["status"] = update.Status
	}
	if update.Message != "" {
		updates["message"] = update.Message
	}
	if update.Error != "" {
		updates["error"] = update.Error
	}
	if update.ArticleID != "" {
		updates["article_id"] = update.ArticleID
	}

	result := r.db.WithContext(ctx).Model(&models.IngestRun{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}

// ListByArticle 列出文章的运行记录
func (r *runRepository) ListByArticle(ctx context.Context, articleID string) ([]*models.IngestRun, error) {
	var runs []*models.IngestRun
	err := r.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

// DeleteByArticle 删除文章的运行记录
func (r *runRepository) DeleteByArticle(ctx context.Context, articleID string) error {
	return r.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.IngestRun{}).Error
}
