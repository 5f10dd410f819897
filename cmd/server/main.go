package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/rag-dataset/api"
	"github.com/fyerfyer/rag-dataset/api/handler"
	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/fyerfyer/rag-dataset/config"
	"github.com/fyerfyer/rag-dataset/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Version 构建时通过 -ldflags 注入
var Version = "1.0.0"

// 命令行参数，设置后覆盖配置文件
type flags struct {
	ConfigFile string
	Port       int
	Mode       string
	LogLevel   string
	DataDir    string
	Provider   string
	Queue      bool
	NoWorker   bool
}

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	f := parseFlags()

	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	logger := setupLogger(cfg)
	logger.WithField("version", Version).Info("Starting RAG dataset server...")

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	// 启用队列时在本进程运行worker
	if cfg.Queue.Worker {
		if w := a.Worker(); w != nil {
			if err := w.Start(); err != nil {
				logger.Fatalf("Failed to start task worker: %v", err)
			}
			defer w.Stop()
			logger.Info("Ingest worker started")
		}
	}

	checks := make(map[string]handler.HealthCheck)
	for name, check := range a.HealthChecks() {
		checks[name] = check
	}
	system := handler.NewSystemHandler(handler.SystemInfo{
		Version:     Version,
		Provider:    cfg.LLM.Provider,
		Model:       cfg.Provider().Model,
		Defaults:    a.Ingest.Defaults(),
		AsyncIngest: a.Queue != nil,
		Checks:      checks,
	})

	// 设置路由
	r := api.SetupRouter(api.Handlers{
		Ingest:  handler.NewIngestHandler(a.Ingest).WithHeartbeat(cfg.Server.Heartbeat),
		Article: handler.NewArticleHandler(a.Articles),
		Dataset: handler.NewDatasetHandler(a.Articles, a.Validation),
		System:  system,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 0, "Server port")
	flag.StringVar(&f.Mode, "mode", "", "Run mode (debug/release)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug/info/warn/error)")
	flag.StringVar(&f.DataDir, "data-dir", "", "Data directory path")
	flag.StringVar(&f.Provider, "provider", "", "LLM provider (openai/gemini/anthropic/ollama/tongyi)")
	flag.BoolVar(&f.Queue, "queue", false, "Enable redis task queue")
	flag.BoolVar(&f.NoWorker, "no-worker", false, "Do not run the ingest worker in this process")
	flag.Parse()
	return f
}

// applyFlags 只覆盖在命令行上明确设置的参数
func applyFlags(cfg *config.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = f.Port
		case "mode":
			cfg.Server.Mode = f.Mode
		case "log-level":
			cfg.Log.Level = f.LogLevel
		case "data-dir":
			cfg.Data.Dir = f.DataDir
			cfg.Database.DSN = filepath.Join(f.DataDir, "index.db")
		case "provider":
			cfg.LLM.Provider = f.Provider
		case "queue":
			cfg.Queue.Enable = f.Queue
		case "no-worker":
			cfg.Queue.Worker = !f.NoWorker
		}
	})
}

// setupLogger 设置日志系统
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := middleware.GetLogger()
	logger.SetOutput(cfg.LogWriter())

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
