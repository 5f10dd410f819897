package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/models"
)

// articleRepository 文章仓储实现
type articleRepository struct {
	db *gorm.DB
}

// NewArticleRepository 使用指定的数据库连接创建文章仓储，db为nil时使用全局连接
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &articleRepository{db: db}
}

// Create 创建文章记录
func (r *articleRepository) Create(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		return errors.New("article ID cannot be empty")
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Article{}).Where("id = ?", article.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", models.ErrArticleExists, article.ID)
	}
	return r.db.WithContext(ctx).Create(article).Error
}

// Update 更新文章记录
func (r *articleRepository) Update(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		return errors.New("article ID cannot be empty")
	}
	return r.db.WithContext(ctx).Save(article).Error
}

// Get 根据ID获取文章
func (r *articleRepository) Get(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
		}
		return nil, err
	}
	return &article, nil
}

// FindByChecksum 根据URL摘要查找文章，有多条时取最新的一条
func (r *articleRepository) FindByChecksum(ctx context.Context, checksum string) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).
		Where("checksum = ?", checksum).
		Order("created_at DESC").
		First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: checksum %s", models.ErrArticleNotFound, checksum)
		}
		return nil, err
	}
	return &article, nil
}

// List 列出文章列表
func (r *articleRepository) List(ctx context.Context, offset, limit int) ([]*models.Article, int64, error) {
	var articles []*models.Article
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Article{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC").Order("id ASC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// Delete 删除文章记录及其运行记录
func (r *articleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", id).Delete(&models.IngestRun{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Article{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
		}
		return nil
	})
}
