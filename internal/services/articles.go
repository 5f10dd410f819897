package services

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/internal/repository"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
)

// 导出文件中的固定说明
const (
	exportDescription    = "Complete export of article content, chunks, and generated questions"
	exportAllDescription = "Bulk export of all articles with their chunks and questions"
	exportContentFormat  = "markdown"
	manifestFile         = "_manifest.json"
	exportPageSize       = 100
	safeTitleMaxLength   = 50
)

// ArticleSummary 文章列表中的一项
type ArticleSummary struct {
	ID        string               `json:"id"`
	URL       string               `json:"url"`
	Title     string               `json:"title"`
	Lang      string               `json:"lang"`
	Source    models.ArticleSource `json:"source"`
	CreatedAt string               `json:"created_at"`
	NumChunks int                  `json:"num_chunks"`
	Questions int                  `json:"num_questions"`
}

// ArticleList 分页的文章列表
type ArticleList struct {
	Articles []ArticleSummary `json:"articles"`
	Total    int64            `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
}

// ChunkDetail 带文章ID的分块
type ChunkDetail struct {
	ArticleID string `json:"article_id"`
	document.Chunk
}

// ArticleExport 单篇文章的完整导出
type ArticleExport struct {
	Article   ExportedArticle   `json:"article"`
	Chunks    []ChunkDetail     `json:"chunks"`
	Questions ExportedQuestions `json:"questions"`
	Metadata  ExportMetadata    `json:"metadata"`
}

// ExportedArticle 导出中的文章部分
type ExportedArticle struct {
	dataset.ArticleMeta
	Content string `json:"content"`
}

// ExportedQuestions 导出中的问答部分
type ExportedQuestions struct {
	TotalQuestions int                      `json:"total_questions"`
	Items          []questions.QuestionItem `json:"items"`
}

// ExportMetadata 导出说明
type ExportMetadata struct {
	ExportDate    string   `json:"export_date"`
	TotalChunks   int      `json:"total_chunks"`
	Warnings      []string `json:"warnings,omitempty"`
	Description   string   `json:"description"`
	ContentFormat string   `json:"content_format"`
}

// ExportManifest 批量导出包中的清单
type ExportManifest struct {
	ExportDate        string   `json:"export_date"`
	TotalArticles     int      `json:"total_articles"`
	SuccessfulExports int      `json:"successful_exports"`
	FailedExports     []string `json:"failed_exports"`
	Description       string   `json:"description"`
}

// ArticleFile 一个可下载的产物文件
type ArticleFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ArticleService 文章查询、导出与删除
type ArticleService struct {
	articles repository.ArticleRepository
	store    *dataset.Store
	logger   *logrus.Logger
	now      func() time.Time
}

// ArticleOption 文章服务配置选项
type ArticleOption func(*ArticleService)

// WithArticleLogger 设置日志记录器
func WithArticleLogger(logger *logrus.Logger) ArticleOption {
	return func(s *ArticleService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithArticleClock 设置时钟，测试时注入
func WithArticleClock(now func() time.Time) ArticleOption {
	return func(s *ArticleService) {
		s.now = now
	}
}

// NewArticleService 创建文章服务
func NewArticleService(articles repository.ArticleRepository, store *dataset.Store, opts ...ArticleOption) *ArticleService {
	srv := &ArticleService{
		articles: articles,
		store:    store,
		logger:   logrus.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// List 按创建时间倒序列出文章
func (s *ArticleService) List(ctx context.Context, offset, limit int) (*ArticleList, error) {
	if offset < 0 {
		offset = 0
	}
	articles, total, err := s.articles.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	list := &ArticleList{
		Articles: make([]ArticleSummary, 0, len(articles)),
		Total:    total,
		Offset:   offset,
		Limit:    limit,
	}
	for _, a := range articles {
		stats := a.Stats.Data()
		list.Articles = append(list.Articles, ArticleSummary{
			ID:        a.ID,
			URL:       a.URL,
			Title:     a.Title,
			Lang:      a.Lang,
			Source:    a.Source,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			NumChunks: stats.NumChunks,
			Questions: stats.NumQuestions,
		})
	}
	return list, nil
}

// Get 返回文章头信息
// article.md 缺失时退回到索引记录
func (s *ArticleService) Get(ctx context.Context, id string) (*dataset.ArticleMeta, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, _, err := s.store.ReadArticle(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to read article file: %w", err)
		}
		s.logger.WithField("article_id", id).Warn("article.md missing, using index record")
		meta = dataset.MetaFromArticle(article)
	}
	return &meta, nil
}

// Chunks 返回文章的全部分块
func (s *ArticleService) Chunks(ctx context.Context, id string) ([]ChunkDetail, error) {
	if _, err := s.articles.Get(ctx, id); err != nil {
		return nil, err
	}
	chunks, err := s.store.ReadChunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunkDetails(id, chunks), nil
}

// Dataset 返回文章的问答数据集
func (s *ArticleService) Dataset(ctx context.Context, id string) (*dataset.Dataset, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ds, err := s.store.ReadDataset(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if ds.Title == "" {
		ds.Title = article.Title
	}
	if ds.CreatedAt == "" {
		ds.CreatedAt = article.CreatedAt.UTC().Format(time.RFC3339)
	}
	return &ds, nil
}

// DatasetFilename 数据集下载文件名
func DatasetFilename(id string) string {
	return id + "_dataset.json"
}

// Export 导出文章、分块与问答
// 分块或数据集缺失时仍然导出，并在warnings中说明
func (s *ArticleService) Export(ctx context.Context, id string) (*ArticleExport, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var warnings []string
	meta, body, err := s.store.ReadArticle(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to read article file: %w", err)
		}
		meta = dataset.MetaFromArticle(article)
		warnings = append(warnings, "Article content not found")
	}

	chunks, err := s.store.ReadChunks(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("article_id", id).Warn("Failed to read chunks for export")
		warnings = append(warnings, fmt.Sprintf("Could not load chunks: %v", err))
	} else if len(chunks) == 0 {
		warnings = append(warnings, "No chunks found")
	}

	items := []questions.QuestionItem{}
	ds, err := s.store.ReadDataset(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		warnings = append(warnings, "Dataset not found")
	case err != nil:
		s.logger.WithError(err).WithField("article_id", id).Warn("Failed to read dataset for export")
		warnings = append(warnings, fmt.Sprintf("Could not load dataset: %v", err))
	default:
		items = ds.Items
	}

	return &ArticleExport{
		Article: ExportedArticle{ArticleMeta: meta, Content: body},
		Chunks:  chunkDetails(id, chunks),
		Questions: ExportedQuestions{
			TotalQuestions: len(items),
			Items:          items,
		},
		Metadata: ExportMetadata{
			ExportDate:    s.now().UTC().Format(time.RFC3339),
			TotalChunks:   len(chunks),
			Warnings:      warnings,
			Description:   exportDescription,
			ContentFormat: exportContentFormat,
		},
	}, nil
}

// ExportFilename 单篇导出的文件名，标题只保留ASCII字母数字、空格、-和_
func ExportFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	safe := strings.TrimRight(b.String(), "_")
	if len(safe) > safeTitleMaxLength {
		safe = safe[:safeTitleMaxLength]
	}
	if safe == "" {
		safe = "article"
	}
	return safe + "_export.json"
}

// ExportAllFilename 批量导出压缩包的文件名
func ExportAllFilename(at time.Time, count int) string {
	return fmt.Sprintf("all_articles_export_%s_%d_files.zip", at.UTC().Format("20060102_150405"), count)
}

// ExportAll 把全部文章导出为zip写入w
// 单篇失败记入清单，不中断整体导出
func (s *ArticleService) ExportAll(ctx context.Context, w io.Writer) (*ExportManifest, error) {
	var all []*models.Article
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.articles.List(ctx, offset, exportPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list articles: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			break
		}
	}

	manifest := &ExportManifest{
		ExportDate:    s.now().UTC().Format(time.RFC3339),
		TotalArticles: len(all),
		FailedExports: []string{},
		Description:   exportAllDescription,
	}

	zw := zip.NewWriter(w)
	for _, a := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exp, err := s.Export(ctx, a.ID)
		if err != nil {
			s.logger.WithError(err).WithField("article_id", a.ID).Warn("Failed to export article")
			manifest.FailedExports = append(manifest.FailedExports, a.ID)
			continue
		}
		name := strings.TrimSuffix(ExportFilename(a.Title), ".json") + "_" + a.ID + ".json"
		if err := writeZipJSON(zw, name, exp); err != nil {
			return nil, err
		}
		manifest.SuccessfulExports++
	}
	if err := writeZipJSON(zw, manifestFile, manifest); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize export archive: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"total":  manifest.TotalArticles,
		"failed": len(manifest.FailedExports),
	}).Info("Exported all articles")
	return manifest, nil
}

// Delete 删除文章产物、索引与运行记录
func (s *ArticleService) Delete(ctx context.Context, id string) error {
	if _, err := s.articles.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete article files: %w", err)
	}
	if err := s.articles.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("article_id", id).Info("Article deleted")
	return nil
}

// File 读取文章目录下的单个产物
func (s *ArticleService) File(ctx context.Context, id, name string) (*ArticleFile, error) {
	if _, err := s.articles.Get(ctx, id); err != nil {
		return nil, err
	}
	key, ok := storage.NewArticlePaths(id).File(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	data, err := storage.ReadAll(ctx, s.store.Storage(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &ArticleFile{Name: name, ContentType: fileContentType(name), Data: data}, nil
}

func fileContentType(name string) string {
	switch path.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".ndjson":
		return "application/x-ndjson"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func chunkDetails(articleID string, chunks []document.Chunk) []ChunkDetail {
	details := make([]ChunkDetail, 0, len(chunks))
	for _, c := range chunks {
		details = append(details, ChunkDetail{ArticleID: articleID, Chunk: c})
	}
	return details
}

func writeZipJSON(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return nil
}
