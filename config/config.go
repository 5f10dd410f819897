package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/rag-dataset/internal/cache"
	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
	"github.com/fyerfyer/rag-dataset/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Log       LogConfig             `mapstructure:"log"`
	Data      DataConfig            `mapstructure:"data"`
	Database  database.Config       `mapstructure:"database"`
	Cache     CacheConfig           `mapstructure:"cache"`
	Storage   StorageConfig         `mapstructure:"storage"`
	Queue     QueueConfig           `mapstructure:"queue"`
	LLM       LLMConfig             `mapstructure:"llm"`
	Ingest    models.IngestOptions  `mapstructure:"ingest"`
	Filter    document.FilterConfig `mapstructure:"filter"`
	Questions QuestionsConfig       `mapstructure:"questions"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string        `mapstructure:"host"`           // 服务器主机
	Port          int           `mapstructure:"port"`           // 服务器端口
	Mode          string        `mapstructure:"mode"`           // gin运行模式 debug/release
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`   // 读取超时
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`  // 写入超时，SSE需要足够长
	IngestTimeout time.Duration `mapstructure:"ingest_timeout"` // 单次导入超时
	Heartbeat     time.Duration `mapstructure:"heartbeat"`      // 进度流心跳间隔
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	File       string `mapstructure:"file"`         // 日志文件，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`     // 是否压缩旧文件
}

// DataConfig 数据目录配置
type DataConfig struct {
	Dir string `mapstructure:"dir"` // 数据根目录
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`   // 是否启用缓存
	Type     string        `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Prefix   string        `mapstructure:"prefix"`   // 键前缀
	Address  string        `mapstructure:"address"`  // Redis地址
	Password string        `mapstructure:"password"` // Redis密码
	DB       int           `mapstructure:"db"`       // Redis数据库
	TTL      time.Duration `mapstructure:"ttl"`      // 缓存TTL
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`         // 是否启用任务队列
	Type          string        `mapstructure:"type"`           // 队列类型，目前只有redis
	RedisAddr     string        `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string        `mapstructure:"redis_password"` // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`    // 重试延迟
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`   // 单个任务超时
	Worker        bool          `mapstructure:"worker"`         // 是否在本进程启动worker
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string                    `mapstructure:"provider"`    // 当前使用的提供商
	Temperature float32                   `mapstructure:"temperature"` // 采样温度
	MaxTokens   int                       `mapstructure:"max_tokens"`  // 最大生成token数量
	Providers   map[string]ProviderConfig `mapstructure:"providers"`   // 各提供商配置
}

// ProviderConfig 单个提供商配置
type ProviderConfig struct {
	APIKey     string        `mapstructure:"api_key"`     // API密钥，支持 ${VAR}
	Model      string        `mapstructure:"model"`       // 模型名称
	BaseURL    string        `mapstructure:"base_url"`    // API端点
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时
	MaxRetries int           `mapstructure:"max_retries"` // 瞬时错误重试次数
}

// QuestionsConfig 问题生成配置
type QuestionsConfig struct {
	PromptsFile  string        `mapstructure:"prompts_file"`  // 自定义提示模板，为空使用内置模板
	PaceInterval time.Duration `mapstructure:"pace_interval"` // 相邻调用间隔
	RateBurst    int           `mapstructure:"rate_burst"`    // 大于0时使用令牌桶节奏
	Concurrency  int           `mapstructure:"concurrency"`   // 并发生成单元数
	SingleRatio  float64       `mapstructure:"single_ratio"`  // 单块问题占比
}

// 各提供商默认读取的环境变量
var providerEnvKeys = map[string][]string{
	llm.ProviderOpenAI:    {"OPENAI_API_KEY"},
	llm.ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	llm.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	llm.ProviderTongyi:    {"DASHSCOPE_API_KEY", "TONGYI_API_KEY"},
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// 设置默认配置路径
	if configPath == "" {
		configPath = "config.yaml" // 默认在当前目录寻找config.yaml
	}

	// 初始化viper
	v := viper.New()
	setDefaults(v)

	// 设置配置文件路径和类型
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// 找不到配置文件时写出一份默认配置
		logrus.Warnf("Config file not found at %s, using defaults", configPath)
		if dir := filepath.Dir(configPath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					logrus.Warnf("Could not write default config to %s: %v", configPath, err)
				}
			}
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	} else {
		logrus.Infof("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置到结构体
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// expandEnv 展开 ${VAR} 形式的值，变量未设置时保留原值
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	if envVal := os.Getenv(s[2 : len(s)-1]); envVal != "" {
		return envVal
	}
	return s
}

// processEnvironmentVariables 处理所有密钥类配置项中的环境变量
func processEnvironmentVariables(cfg *Config) {
	for name, p := range cfg.LLM.Providers {
		p.APIKey = expandEnv(p.APIKey)
		if p.APIKey == "" || strings.HasPrefix(p.APIKey, "${") {
			for _, key := range providerEnvKeys[name] {
				if v := os.Getenv(key); v != "" {
					p.APIKey = v
					break
				}
			}
		}
		cfg.LLM.Providers[name] = p
	}
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)
}

// Validate 检查配置中不合法的取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := document.ParseStrategy(c.Ingest.SplitStrategy); err != nil {
		return fmt.Errorf("invalid ingest.split_strategy: %w", err)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Questions.SingleRatio <= 0 || c.Questions.SingleRatio > 1 {
		return fmt.Errorf("questions.single_ratio must be in (0,1]: %v", c.Questions.SingleRatio)
	}
	switch c.Storage.Type {
	case storage.TypeLocal, storage.TypeMinio:
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	return nil
}

// Provider 当前提供商的配置
func (c *Config) Provider() ProviderConfig {
	return c.LLM.Providers[c.LLM.Provider]
}

// ProviderOptions 构造当前提供商的客户端选项
func (c *Config) ProviderOptions() []llm.Option {
	p := c.Provider()
	opts := []llm.Option{
		llm.WithAPIKey(p.APIKey),
		llm.WithModel(p.Model),
		llm.WithTemperature(c.LLM.Temperature),
		llm.WithMaxTokens(c.LLM.MaxTokens),
	}
	if p.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(p.BaseURL))
	}
	if p.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(p.Timeout))
	}
	if p.MaxRetries > 0 {
		opts = append(opts, llm.WithMaxRetries(p.MaxRetries))
	}
	return opts
}

// StorageSettings 转换为存储层配置，本地路径默认放在数据目录下
func (c *Config) StorageSettings() storage.Config {
	path := c.Storage.Path
	if path == "" {
		path = filepath.Join(c.Data.Dir, "articles")
	}
	return storage.Config{
		Type:  c.Storage.Type,
		Local: storage.LocalConfig{Path: path},
		Minio: storage.MinioConfig{
			Endpoint:  c.Storage.Endpoint,
			AccessKey: c.Storage.AccessKey,
			SecretKey: c.Storage.SecretKey,
			Bucket:    c.Storage.Bucket,
			UseSSL:    c.Storage.UseSSL,
		},
	}
}

// CacheSettings 转换为缓存层配置
func (c *Config) CacheSettings() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Type = c.Cache.Type
	if c.Cache.Prefix != "" {
		cfg.Prefix = c.Cache.Prefix
	}
	cfg.RedisAddr = c.Cache.Address
	cfg.RedisPassword = c.Cache.Password
	cfg.RedisDB = c.Cache.DB
	if c.Cache.TTL > 0 {
		cfg.DefaultTTL = c.Cache.TTL
	}
	return cfg
}

// QueueSettings 转换为任务队列配置
func (c *Config) QueueSettings() *taskqueue.Config {
	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = c.Queue.RedisAddr
	cfg.RedisPassword = c.Queue.RedisPassword
	cfg.RedisDB = c.Queue.RedisDB
	if c.Queue.Concurrency > 0 {
		cfg.Concurrency = c.Queue.Concurrency
	}
	cfg.RetryLimit = c.Queue.RetryLimit
	if c.Queue.RetryDelay > 0 {
		cfg.RetryDelay = c.Queue.RetryDelay
	}
	if c.Queue.TaskTimeout > 0 {
		cfg.TaskTimeout = c.Queue.TaskTimeout
	}
	return cfg
}

// LogWriter 日志输出，配置了文件时同时写入滚动文件
func (c *Config) LogWriter() io.Writer {
	if c.Log.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	})
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.ingest_timeout", "30m")
	v.SetDefault("server.heartbeat", "1s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("data.dir", "./data")

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/index.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.max_lifetime", "1h")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.prefix", "ragds")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.ttl", "24h")

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.bucket", "rag-dataset")
	v.SetDefault("storage.use_ssl", false)

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.retry_limit", 0)
	v.SetDefault("queue.retry_delay", "1m")
	v.SetDefault("queue.task_timeout", "30m")
	v.SetDefault("queue.worker", true)

	// LLM默认配置
	v.SetDefault("llm.provider", llm.ProviderOpenAI)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)
	v.SetDefault("llm.max_tokens", llm.DefaultMaxTokens)
	for _, name := range []string{llm.ProviderOpenAI, llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderOllama, llm.ProviderTongyi} {
		v.SetDefault("llm.providers."+name+".model", llm.DefaultModel(name))
		v.SetDefault("llm.providers."+name+".timeout", "60s")
		v.SetDefault("llm.providers."+name+".max_retries", 3)
	}
	v.SetDefault("llm.providers.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.providers.gemini.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("llm.providers.anthropic.api_key", "${ANTHROPIC_API_KEY}")
	v.SetDefault("llm.providers.tongyi.api_key", "${DASHSCOPE_API_KEY}")
	v.SetDefault("llm.providers.ollama.base_url", "http://localhost:11434")

	// 导入默认参数
	d := models.DefaultIngestOptions()
	v.SetDefault("ingest.chunk_size", d.ChunkSize)
	v.SetDefault("ingest.chunk_overlap", d.ChunkOverlap)
	v.SetDefault("ingest.split_strategy", d.SplitStrategy)
	v.SetDefault("ingest.total_questions", d.TotalQuestions)

	// 分块过滤默认配置
	f := document.DefaultFilterConfig()
	v.SetDefault("filter.enabled", f.Enabled)
	v.SetDefault("filter.min_words", f.MinWords)
	v.SetDefault("filter.filter_sections", f.FilterSections)
	v.SetDefault("filter.unwanted_keywords", f.UnwantedKeywords)

	// 问题生成默认配置
	v.SetDefault("questions.prompts_file", "")
	v.SetDefault("questions.pace_interval", "3s")
	v.SetDefault("questions.rate_burst", 0)
	v.SetDefault("questions.concurrency", 1)
	v.SetDefault("questions.single_ratio", questions.SingleRatio)
}
