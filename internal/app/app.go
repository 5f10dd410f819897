// Package app 按配置组装服务进程和命令行工具共用的组件
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fyerfyer/rag-dataset/config"
	"github.com/fyerfyer/rag-dataset/internal/cache"
	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/internal/repository"
	"github.com/fyerfyer/rag-dataset/internal/services"
	"github.com/fyerfyer/rag-dataset/internal/wiki"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
	"github.com/fyerfyer/rag-dataset/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App 组装完成的全部组件
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	DB         *gorm.DB
	Storage    storage.Storage
	Store      *dataset.Store
	Cache      cache.Cache
	LLM        llm.Client
	Prompts    *questions.Prompts
	Queue      *taskqueue.RedisQueue
	Ingest     *services.IngestService
	Articles   *services.ArticleService
	Validation *services.ValidationService

	closers []func() error
}

// Build 按配置创建组件，失败时释放已创建的资源
func Build(cfg *config.Config, logger *logrus.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = database.Setup(&cfg.Database, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = database.MustDB()
	a.closers = append(a.closers, database.Close)

	if a.Storage, err = storage.New(cfg.StorageSettings()); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Store = dataset.NewStore(a.Storage, logger)

	if cfg.Cache.Enable {
		if a.Cache, err = cache.NewCache(cfg.CacheSettings()); err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		if c, ok := a.Cache.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	if a.LLM, err = NewLLMClient(cfg, logger); err != nil {
		return nil, err
	}

	if a.Prompts, err = LoadPrompts(cfg); err != nil {
		return nil, err
	}

	if cfg.Queue.Enable {
		if a.Queue, err = taskqueue.NewRedisQueue(cfg.QueueSettings(), taskqueue.WithQueueLogger(logger)); err != nil {
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.closers = append(a.closers, a.Queue.Close)
		logger.WithFields(logrus.Fields{
			"redis_addr":  cfg.Queue.RedisAddr,
			"concurrency": cfg.Queue.Concurrency,
		}).Info("Task queue initialized successfully")
	}

	articles := repository.NewArticleRepository(a.DB)
	runs := repository.NewRunRepository(a.DB)

	hubOpts := []services.ProgressOption{
		services.WithRunRepository(runs),
		services.WithProgressLogger(logger),
	}
	ingestOpts := []services.IngestOption{
		services.WithIngestLogger(logger),
		services.WithIngestTimeout(cfg.Server.IngestTimeout),
		services.WithFilterConfig(cfg.Filter),
		services.WithDefaultOptions(cfg.Ingest),
	}
	if a.Queue != nil {
		hubOpts = append(hubOpts, services.WithRelay(a.Queue))
		ingestOpts = append(ingestOpts, services.WithTaskQueue(a.Queue))
	}

	a.Ingest = services.NewIngestService(
		NewFetcher(a.Cache, cfg, logger),
		articles,
		runs,
		a.Store,
		services.NewProgressHub(hubOpts...),
		a.GeneratorFactory(),
		ingestOpts...,
	)
	a.Articles = services.NewArticleService(articles, a.Store, services.WithArticleLogger(logger))
	if a.Validation, err = services.NewValidationService(articles, a.Store, a.LLM, a.Prompts, logger); err != nil {
		return nil, err
	}
	return a, nil
}

// NewLLMClient 创建配置中的提供商客户端，加上重试和日志
func NewLLMClient(cfg *config.Config, logger *logrus.Logger) (llm.Client, error) {
	client, err := llm.NewClient(cfg.LLM.Provider, cfg.ProviderOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	retry := llm.DefaultRetryConfig()
	if p := cfg.Provider(); p.MaxRetries > 0 {
		retry.MaxAttempts = p.MaxRetries
	}
	return llm.WithLogging(llm.WithRetry(client, retry), cfg.LLM.Provider, logger), nil
}

// NewFetcher 创建维基百科抓取器，c为空时不缓存
func NewFetcher(c cache.Cache, cfg *config.Config, logger *logrus.Logger) *wiki.Fetcher {
	opts := []wiki.Option{wiki.WithLogger(logger)}
	if c != nil {
		opts = append(opts, wiki.WithCache(c, cfg.Cache.TTL))
	}
	return wiki.NewFetcher(opts...)
}

// NewPacer 按配置创建生成调用节奏
func NewPacer(cfg config.QuestionsConfig) questions.Pacer {
	if cfg.PaceInterval <= 0 {
		return questions.NoopPacer{}
	}
	if cfg.RateBurst > 0 {
		return questions.NewRatePacer(cfg.PaceInterval, cfg.RateBurst)
	}
	return questions.NewSleepPacer(cfg.PaceInterval)
}

// GeneratorFactory 每次导入按请求的模型创建生成器
func (a *App) GeneratorFactory() services.GeneratorFactory {
	return func(model string) (services.QuestionGenerator, error) {
		return a.NewGenerator(model)
	}
}

// NewGenerator 创建问题生成器，model为空时使用提供商默认模型
func (a *App) NewGenerator(model string) (*questions.Generator, error) {
	return NewGenerator(a.Config, a.LLM, a.Prompts, a.Logger, model)
}

// LoadPrompts 读取配置的提示模板，未配置时使用内置模板
func LoadPrompts(cfg *config.Config) (*questions.Prompts, error) {
	var (
		p   *questions.Prompts
		err error
	)
	if cfg.Questions.PromptsFile != "" {
		p, err = questions.LoadPromptsFile(cfg.Questions.PromptsFile)
	} else {
		p, err = questions.DefaultPrompts()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	return p, nil
}

// NewGenerator 按配置创建问题生成器
func NewGenerator(cfg *config.Config, client llm.Client, prompts *questions.Prompts, logger *logrus.Logger, model string) (*questions.Generator, error) {
	return questions.NewGenerator(client,
		questions.WithPrompts(prompts),
		questions.WithPacer(NewPacer(cfg.Questions)),
		questions.WithPlanner(questions.Planner{SingleRatio: cfg.Questions.SingleRatio}),
		questions.WithConcurrency(cfg.Questions.Concurrency),
		questions.WithTemperature(cfg.LLM.Temperature),
		questions.WithMaxTokens(cfg.LLM.MaxTokens),
		questions.WithModel(model),
		questions.WithProvider(cfg.LLM.Provider),
		questions.WithLogger(logger),
	)
}

// Worker 创建处理导入任务的worker，未启用队列时返回nil
func (a *App) Worker() *taskqueue.RedisWorker {
	if a.Queue == nil {
		return nil
	}
	w := taskqueue.NewRedisWorker(a.Queue, a.Config.QueueSettings())
	taskqueue.RegisterAll(w, services.NewIngestTaskHandler(a.Ingest))
	return w
}

// HealthChecks 健康检查使用的依赖检查
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"storage": func(ctx context.Context) error {
			_, err := a.Storage.Exists(ctx, "health")
			return err
		},
	}
	if a.Queue != nil {
		checks["queue"] = a.Queue.Ping
	}
	return checks
}

// Close 按创建的相反顺序释放资源
func (a *App) Close() error {
	if a.Ingest != nil {
		a.Ingest.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
