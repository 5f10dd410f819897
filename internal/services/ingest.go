package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/internal/repository"
	"github.com/fyerfyer/rag-dataset/internal/wiki"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
	"github.com/fyerfyer/rag-dataset/pkg/taskqueue"
)

// ArticleFetcher 抓取维基百科文章
type ArticleFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*wiki.Article, error)
}

// QuestionGenerator 为分块生成问答
type QuestionGenerator interface {
	Generate(ctx context.Context, chunks []document.Chunk, total int) ([]questions.QuestionItem, error)
}

// GeneratorFactory 按模型名创建问题生成器，model为空时使用默认模型
type GeneratorFactory func(model string) (QuestionGenerator, error)

// StartResult 提交导入后的返回
type StartResult struct {
	RunID     string           `json:"run_id"`
	ArticleID string           `json:"article_id,omitempty"`
	Message   string           `json:"message"`
	Status    models.RunStatus `json:"status"`
}

// IngestService 导入服务
// 负责协调抓取、清洗、分块、写入产物和问题生成
type IngestService struct {
	fetcher    ArticleFetcher               // 维基百科抓取
	articles   repository.ArticleRepository // 文章索引
	runs       repository.RunRepository     // 运行记录
	store      *dataset.Store               // 产物读写
	hub        *ProgressHub                 // 进度分发
	generators GeneratorFactory             // 问题生成器工厂
	cleanerCfg document.CleanerConfig       // HTML清洗配置
	filterCfg  document.FilterConfig        // 分块过滤配置
	defaults   models.IngestOptions         // 默认导入参数
	queue      taskqueue.Queue              // 任务队列，为空时在本进程执行
	timeout    time.Duration                // 单次导入超时
	logger     *logrus.Logger               // 日志记录器
	now        func() time.Time             // 时钟
	wg         sync.WaitGroup               // 本进程内的后台导入
}

// 同一时刻重复导入时文章ID的最大重算次数
const maxArticleIDAttempts = 8

// IngestOption 导入服务配置选项
type IngestOption func(*IngestService)

// NewIngestService 创建导入服务
func NewIngestService(
	fetcher ArticleFetcher,
	articles repository.ArticleRepository,
	runs repository.RunRepository,
	store *dataset.Store,
	hub *ProgressHub,
	generators GeneratorFactory,
	opts ...IngestOption,
) *IngestService {
	srv := &IngestService{
		fetcher:    fetcher,
		articles:   articles,
		runs:       runs,
		store:      store,
		hub:        hub,
		generators: generators,
		cleanerCfg: document.DefaultCleanerConfig(),
		filterCfg:  document.DefaultFilterConfig(),
		defaults:   models.DefaultIngestOptions(),
		timeout:    30 * time.Minute,
		logger:     logrus.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.hub == nil {
		srv.hub = NewProgressHub(WithRunRepository(runs), WithProgressLogger(srv.logger))
	}
	return srv
}

// WithTaskQueue 设置任务队列，导入交给worker执行
func WithTaskQueue(queue taskqueue.Queue) IngestOption {
	return func(s *IngestService) {
		s.queue = queue
	}
}

// WithIngestTimeout 设置单次导入超时时间
func WithIngestTimeout(timeout time.Duration) IngestOption {
	return func(s *IngestService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(logger *logrus.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCleanerConfig 设置HTML清洗配置
func WithCleanerConfig(cfg document.CleanerConfig) IngestOption {
	return func(s *IngestService) {
		s.cleanerCfg = cfg
	}
}

// WithFilterConfig 设置分块过滤配置
func WithFilterConfig(cfg document.FilterConfig) IngestOption {
	return func(s *IngestService) {
		s.filterCfg = cfg
	}
}

// WithDefaultOptions 设置请求未指定时使用的导入参数
func WithDefaultOptions(opts models.IngestOptions) IngestOption {
	return func(s *IngestService) {
		s.defaults = opts.WithDefaults(models.DefaultIngestOptions())
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) IngestOption {
	return func(s *IngestService) {
		if now != nil {
			s.now = now
		}
	}
}

// Hub 进度分发器
func (s *IngestService) Hub() *ProgressHub {
	return s.hub
}

// Defaults 默认导入参数
func (s *IngestService) Defaults() models.IngestOptions {
	return s.defaults
}

// Wait 等待本进程内的后台导入全部结束
func (s *IngestService) Wait() {
	s.wg.Wait()
}

// StartIngest 提交维基百科文章导入
// 文章已存在且未要求重新导入时直接返回 existing
func (s *IngestService) StartIngest(ctx context.Context, rawURL string, opts models.IngestOptions) (*StartResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !wiki.IsWikipediaURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	opts = opts.WithDefaults(s.defaults)

	run := s.newRun(models.SourceWikipedia, rawURL, opts)
	if !opts.Reingest {
		existing, err := s.findExisting(ctx, models.URLChecksum(rawURL))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			run.ArticleID = existing.ID
			if err := s.runs.Create(ctx, run); err != nil {
				return nil, fmt.Errorf("failed to create run: %w", err)
			}
			s.hub.Emit(ctx, run.ID, models.StageDone, "Article already exists", existing.ID, map[string]any{"existing": true})
			return &StartResult{
				RunID:     run.ID,
				ArticleID: existing.ID,
				Message:   "Article already exists",
				Status:    models.RunStatusExisting,
			}, nil
		}
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.hub.Emit(ctx, run.ID, models.StageQueued, "Ingestion queued", "", map[string]any{"url": rawURL})

	payload := taskqueue.IngestPayload{RunID: run.ID, URL: rawURL}
	if err := s.dispatch(ctx, taskqueue.TaskIngestArticle, payload, opts, func(ctx context.Context) error {
		_, err := s.IngestURL(ctx, run.ID, rawURL, opts)
		return err
	}); err != nil {
		return nil, err
	}

	return &StartResult{
		RunID:   run.ID,
		Message: "Ingestion started",
		Status:  models.RunStatusStarted,
	}, nil
}

// StartUpload 提交Markdown文件导入，文件先保存到对象存储
func (s *IngestService) StartUpload(ctx context.Context, r io.Reader, filename string, opts models.IngestOptions) (*StartResult, error) {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if document.DetectContentType(filename) != document.Markdown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
	opts = opts.WithDefaults(s.defaults)

	obj, err := storage.SaveUpload(ctx, s.store.Storage(), r, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	run := s.newRun(models.SourceUpload, filename, opts)
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.hub.Emit(ctx, run.ID, models.StageQueued, "Upload queued", "", map[string]any{"filename": filename})

	payload := taskqueue.IngestPayload{RunID: run.ID, UploadKey: obj.Key, Filename: filename}
	if err := s.dispatch(ctx, taskqueue.TaskIngestUpload, payload, opts, func(ctx context.Context) error {
		_, err := s.IngestUpload(ctx, run.ID, obj.Key, filename, opts)
		return err
	}); err != nil {
		return nil, err
	}

	return &StartResult{
		RunID:   run.ID,
		Message: "Ingestion started",
		Status:  models.RunStatusStarted,
	}, nil
}

// GetRun 获取运行记录
func (s *IngestService) GetRun(ctx context.Context, runID string) (*models.IngestRun, error) {
	return s.runs.Get(ctx, runID)
}

func (s *IngestService) newRun(source models.ArticleSource, input string, opts models.IngestOptions) *models.IngestRun {
	return &models.IngestRun{
		ID:      models.NewRunID(),
		Source:  source,
		Input:   input,
		Stage:   models.StageQueued,
		Status:  models.RunStatusStarted,
		Message: "Ingestion queued",
		Options: datatypes.NewJSONType(opts),
	}
}

func (s *IngestService) findExisting(ctx context.Context, checksum string) (*models.Article, error) {
	existing, err := s.articles.FindByChecksum(ctx, checksum)
	if errors.Is(err, models.ErrArticleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up article: %w", err)
	}
	return existing, nil
}

// allocateArticleID 生成索引中未占用的文章ID，冲突时顺延时间戳重算
// 必须在写入任何存储对象之前调用
func (s *IngestService) allocateArticleID(ctx context.Context, rawURL, title string, now time.Time) (string, error) {
	for i := 0; i < maxArticleIDAttempts; i++ {
		id := models.NewArticleID(rawURL, title, now.Add(time.Duration(i)))
		_, err := s.articles.Get(ctx, id)
		if errors.Is(err, models.ErrArticleNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check article id: %w", err)
		}
	}
	return "", fmt.Errorf("%w: no free id for %s", models.ErrArticleExists, title)
}

// dispatch 有队列时入队，否则在后台goroutine执行
func (s *IngestService) dispatch(ctx context.Context, taskType taskqueue.TaskType, payload taskqueue.IngestPayload, opts models.IngestOptions, run func(context.Context) error) error {
	if s.queue != nil {
		raw, err := taskqueue.MarshalPayload(opts)
		if err != nil {
			return fmt.Errorf("failed to encode options: %w", err)
		}
		payload.Options = raw
		taskID, err := s.queue.Enqueue(ctx, taskType, payload.RunID, payload)
		if err != nil {
			s.hub.Emit(ctx, payload.RunID, models.StageFailed, "Failed to enqueue ingestion: "+err.Error(), "", nil)
			return fmt.Errorf("failed to enqueue ingestion: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"run_id":  payload.RunID,
			"task_id": taskID,
			"type":    taskType,
		}).Info("Ingestion enqueued")
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// 后台导入不随请求结束而取消
		if err := run(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).WithField("run_id", payload.RunID).Error("Background ingestion failed")
		}
	}()
	return nil
}

// ingestSource 进入清洗阶段前的文章
type ingestSource struct {
	article *models.Article
	html    string
}

// IngestURL 同步执行一次维基百科导入
func (s *IngestService) IngestURL(ctx context.Context, runID, rawURL string, opts models.IngestOptions) (*models.Article, error) {
	opts = opts.WithDefaults(s.defaults)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rep := s.hub.Reporter(runID)
	checksum := models.URLChecksum(rawURL)
	if !opts.Reingest {
		existing, err := s.findExisting(ctx, checksum)
		if err != nil {
			return nil, s.fail(ctx, rep, models.StageQueued, err)
		}
		if existing != nil {
			rep.SetArticleID(existing.ID)
			rep.Stage(ctx, models.StageDone, "Article already exists", map[string]any{"existing": true})
			return existing, nil
		}
	}

	rep.Stage(ctx, models.StageFetching, "Fetching Wikipedia article...", nil)
	fetched, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}

	now := s.now().UTC()
	articleID, err := s.allocateArticleID(ctx, rawURL, fetched.Title, now)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}
	rep.SetArticleID(articleID)
	if err := s.store.WriteRawHTML(ctx, articleID, fetched.Content); err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}
	rep.Stage(ctx, models.StageFetching, "Fetched article: "+fetched.Title, map[string]any{
		"title":          fetched.Title,
		"lang":           fetched.Lang,
		"content_length": len(fetched.Content),
	})

	return s.process(ctx, rep, ingestSource{
		article: &models.Article{
			ID:        articleID,
			URL:       rawURL,
			Title:     fetched.Title,
			Lang:      fetched.Lang,
			Checksum:  checksum,
			Source:    models.SourceWikipedia,
			CreatedAt: now,
		},
		html: fetched.Content,
	}, opts)
}

// IngestUpload 同步导入已保存的Markdown文件
// 上传文件按内容判重
func (s *IngestService) IngestUpload(ctx context.Context, runID, objectKey, filename string, opts models.IngestOptions) (*models.Article, error) {
	opts = opts.WithDefaults(s.defaults)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rep := s.hub.Reporter(runID)
	rep.Stage(ctx, models.StageFetching, "Reading uploaded file...", map[string]any{"filename": filename})
	content, err := storage.ReadAll(ctx, s.store.Storage(), objectKey)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, s.fail(ctx, rep, models.StageFetching, fmt.Errorf("uploaded file %s is empty", filename))
	}

	checksum := models.URLChecksum(string(content))
	if !opts.Reingest {
		existing, err := s.findExisting(ctx, checksum)
		if err != nil {
			return nil, s.fail(ctx, rep, models.StageFetching, err)
		}
		if existing != nil {
			rep.SetArticleID(existing.ID)
			rep.Stage(ctx, models.StageDone, "Article already exists", map[string]any{"existing": true})
			return existing, nil
		}
	}

	title := strings.TrimSuffix(filename, path.Ext(filename))
	uploadURL := "upload://" + filename
	now := s.now().UTC()
	articleID, err := s.allocateArticleID(ctx, uploadURL, title, now)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}
	rep.SetArticleID(articleID)

	html := string(document.RenderMarkdown(content))
	if err := s.store.WriteRawHTML(ctx, articleID, html); err != nil {
		return nil, s.fail(ctx, rep, models.StageFetching, err)
	}
	rep.Stage(ctx, models.StageFetching, "Loaded uploaded file: "+filename, map[string]any{
		"title":          title,
		"content_length": len(content),
	})

	return s.process(ctx, rep, ingestSource{
		article: &models.Article{
			ID:        articleID,
			URL:       uploadURL,
			Title:     title,
			Checksum:  checksum,
			Source:    models.SourceUpload,
			CreatedAt: now,
		},
		html: html,
	}, opts)
}

// process 执行清洗之后的各个阶段并写入索引
func (s *IngestService) process(ctx context.Context, rep *RunReporter, src ingestSource, opts models.IngestOptions) (*models.Article, error) {
	start := s.now()
	article := src.article

	// 清洗
	rep.Stage(ctx, models.StageCleaning, "Cleaning and converting HTML to Markdown...", nil)
	cleanerCfg := s.cleanerCfg
	cleanerCfg.StripSections = opts.ShouldStripSections()
	doc, err := document.NewHTMLCleaner(cleanerCfg).Clean(src.html, article.Title)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageCleaning, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, s.fail(ctx, rep, models.StageCleaning, errors.New("article has no content after cleaning"))
	}
	rep.Stage(ctx, models.StageCleaning, fmt.Sprintf("Cleaned content: %d words", doc.WordCount), map[string]any{
		"word_count": doc.WordCount,
		"char_count": doc.CharCount,
		"sections":   len(doc.Sections),
	})

	// 分块
	rep.Stage(ctx, models.StageSplitting, fmt.Sprintf("Splitting text with %s strategy...", opts.SplitStrategy), nil)
	chunks, err := document.SplitContent(doc.Content, doc.Sections, opts.SplitStrategy, opts.ChunkSize, opts.ChunkOverlap, article.ID)
	if err != nil {
		return nil, s.fail(ctx, rep, models.StageSplitting, err)
	}
	originalCount := len(chunks)
	chunks, decisions := document.FilterChunks(chunks, s.filterCfg.ExemptHeadings(document.TopHeadings(doc.Sections)...))
	for _, d := range decisions {
		s.logger.WithFields(logrus.Fields{
			"run_id":   rep.RunID(),
			"chunk_id": d.ChunkID,
			"reason":   d.Reason,
		}).Debug("Filtered chunk")
	}
	rep.Stage(ctx, models.StageSplitting, fmt.Sprintf("Created %d chunks, filtered to %d", originalCount, len(chunks)), map[string]any{
		"num_chunks":      len(chunks),
		"original_chunks": originalCount,
		"filtered_out":    originalCount - len(chunks),
		"strategy":        opts.SplitStrategy,
		"chunk_size":      opts.ChunkSize,
		"chunk_overlap":   opts.ChunkOverlap,
	})

	stats := models.ArticleStats{
		WordCount:      doc.WordCount,
		CharCount:      doc.CharCount,
		NumChunks:      len(chunks),
		OriginalChunks: originalCount,
		FilteredOut:    originalCount - len(chunks),
		NumSections:    len(doc.Sections),
	}
	article.Options = datatypes.NewJSONType(opts)
	article.Stats = datatypes.NewJSONType(stats)

	// 写入文章与分块
	rep.Stage(ctx, models.StageWriteMarkdown, "Writing article and chunk files...", nil)
	if err := s.store.WriteArticle(ctx, dataset.MetaFromArticle(article), doc.Content); err != nil {
		return nil, s.fail(ctx, rep, models.StageWriteMarkdown, err)
	}
	if err := s.store.WriteChunks(ctx, article.ID, chunks); err != nil {
		return nil, s.fail(ctx, rep, models.StageWriteMarkdown, err)
	}
	rep.Stage(ctx, models.StageWriteMarkdown, fmt.Sprintf("Wrote article.md and %d chunk files", len(chunks)), nil)

	// 生成问题，失败时以空数据集继续
	rep.Stage(ctx, models.StageQuestionGen, "Generating questions with LLM...", nil)
	items, err := s.generate(ctx, chunks, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.fail(ctx, rep, models.StageQuestionGen, err)
		}
		details := map[string]any{"error": err.Error()}
		var llmErr *llm.LLMError
		if errors.As(err, &llmErr) {
			details["provider"] = llmErr.Provider
		}
		s.logger.WithError(err).WithField("run_id", rep.RunID()).Error("Question generation failed, continuing with empty dataset")
		rep.Stage(ctx, models.StageQuestionGen, "Failed to generate questions, continuing with empty dataset", details)
		items = nil
	} else {
		rep.Stage(ctx, models.StageQuestionGen, fmt.Sprintf("Generated %d questions", len(items)), map[string]any{
			"num_questions":             len(items),
			"model":                     opts.LLMModel,
			"total_questions_requested": opts.TotalQuestions,
		})
	}

	// 写入数据集
	rep.Stage(ctx, models.StageWriteDatasetMD, "Writing dataset markdown file...", nil)
	if err := s.store.WriteDataset(ctx, article.ID, article.Title, items, s.now()); err != nil {
		return nil, s.fail(ctx, rep, models.StageWriteDatasetMD, err)
	}
	rep.Stage(ctx, models.StageWriteDatasetMD, fmt.Sprintf("Wrote dataset.md with %d questions", len(items)), nil)

	stats.NumQuestions = len(items)
	article.Stats = datatypes.NewJSONType(stats)
	if err := s.articles.Create(ctx, article); err != nil {
		return nil, s.fail(ctx, rep, models.StageWriteDatasetMD, err)
	}
	s.writeLogs(ctx, rep, models.RunStatusCompleted, "Ingestion completed successfully")

	rep.Stage(ctx, models.StageDone, "Successfully ingested article: "+article.Title, map[string]any{
		"total_chunks":    len(chunks),
		"original_chunks": originalCount,
		"filtered_out":    originalCount - len(chunks),
		"total_questions": len(items),
		"processing_time": s.now().Sub(start).Seconds(),
	})
	return article, nil
}

func (s *IngestService) generate(ctx context.Context, chunks []document.Chunk, opts models.IngestOptions) ([]questions.QuestionItem, error) {
	if s.generators == nil {
		return nil, errors.New("question generation is not configured")
	}
	gen, err := s.generators(opts.LLMModel)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, chunks, opts.TotalQuestions)
}

// fail 记录失败阶段并返回包装后的错误
func (s *IngestService) fail(ctx context.Context, rep *RunReporter, stage models.Stage, err error) error {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"run_id": rep.RunID(),
		"stage":  stage,
	}).Error("Ingestion failed")

	message := "Ingestion failed: " + err.Error()
	var llmErr *llm.LLMError
	if errors.As(err, &llmErr) {
		message = "LLM Error: " + err.Error()
	}
	if rep.articleID != "" {
		s.writeLogs(ctx, rep, models.RunStatusFailed, message)
	}
	rep.Stage(ctx, models.StageFailed, message, map[string]any{"failed_stage": string(stage)})
	return &IngestionError{RunID: rep.RunID(), Stage: string(stage), Err: err}
}

// writeLogs 把本次运行的事件和最终状态追加到 logs.ndjson
func (s *IngestService) writeLogs(ctx context.Context, rep *RunReporter, status models.RunStatus, message string) {
	ctx = context.WithoutCancel(ctx)
	entries := make([]dataset.LogEntry, 0)
	for _, ev := range s.hub.Events(rep.RunID()) {
		entries = append(entries, dataset.LogEntry{
			Timestamp: time.Unix(0, int64(ev.Timestamp*float64(time.Second))).UTC().Format(time.RFC3339Nano),
			RunID:     ev.RunID,
			ArticleID: rep.articleID,
			Stage:     string(ev.Stage),
			Status:    string(models.RunStatusRunning),
			Message:   ev.Message,
			Details:   ev.Details,
		})
	}
	entries = append(entries, dataset.LogEntry{
		RunID:     rep.RunID(),
		ArticleID: rep.articleID,
		Status:    string(status),
		Message:   message,
	})
	if err := s.store.AppendLog(ctx, entries...); err != nil {
		s.logger.WithError(err).WithField("run_id", rep.RunID()).Warn("Failed to write ingestion log")
	}
}
