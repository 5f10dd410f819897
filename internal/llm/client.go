package llm

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Client 大模型客户端接口
// 负责以JSON模式与大语言模型交互
type Client interface {
	// GenerateJSON 发送对话消息，要求模型返回一个JSON对象
	GenerateJSON(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// 提供商名称
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderTongyi    = "tongyi"
	ProviderMock      = "mock"
)

// 生成参数默认值
const (
	DefaultTemperature float32 = 0.1
	DefaultMaxTokens           = 100000
)

// Config 大模型客户端配置
type Config struct {
	APIKey      string        // API密钥
	BaseURL     string        // API基础URL
	Model       string        // 模型名称
	Timeout     time.Duration // 请求超时时间
	MaxRetries  int           // 最大重试次数
	MaxTokens   int           // 最大生成Token数
	Temperature float32       // 采样温度(0.0-2.0)
	HTTPClient  *http.Client  // 自定义HTTP客户端，测试时注入
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithMaxTokens 设置最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature 设置采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithHTTPClient 设置HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// httpClient 返回配置中的HTTP客户端，没有则按超时新建
func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

// GenerateOption 单次生成请求的选项
type GenerateOption func(*GenerateOptions)

// GenerateOptions 单次生成请求的选项集合
type GenerateOptions struct {
	MaxTokens   *int     // 最大生成Token数
	Temperature *float32 // 采样温度
	Model       string   // 覆盖客户端模型
}

// WithGenerateMaxTokens 设置生成请求的最大Token数
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = &tokens
	}
}

// WithGenerateTemperature 设置生成请求的采样温度
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temp
	}
}

// WithGenerateModel 为单次请求指定模型
func WithGenerateModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// requestParams 合并客户端默认值与单次请求选项后的生效参数
type requestParams struct {
	model       string
	maxTokens   int
	temperature float32
}

func resolveParams(model string, maxTokens int, temperature float32, options []GenerateOption) requestParams {
	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	p := requestParams{model: model, maxTokens: maxTokens, temperature: temperature}
	if opts.Model != "" {
		p.model = opts.Model
	}
	if opts.MaxTokens != nil {
		p.maxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		p.temperature = *opts.Temperature
	}
	if p.maxTokens <= 0 {
		p.maxTokens = DefaultMaxTokens
	}
	return p
}

// Factory 大模型客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

var (
	factoriesMu sync.RWMutex
	// 全局注册的大模型客户端工厂函数
	clientFactories = make(map[string]Factory)
)

// RegisterClient 注册大模型客户端工厂函数
func RegisterClient(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	clientFactories[name] = factory
}

// NewClient 根据名称创建大模型客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factoriesMu.RLock()
	factory, exists := clientFactories[name]
	factoriesMu.RUnlock()
	if !exists {
		return nil, NewProviderError(name, ErrCodeInvalidRequest, "llm client type not registered: "+name)
	}
	return factory(opts...)
}

// Providers 返回已注册的提供商名称
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(clientFactories))
	for name := range clientFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
