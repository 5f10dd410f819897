package taskqueue

import (
	"context"
	"fmt"
	"time"
)

// Queue 定义任务队列的接口
// 负责任务的入队、获取状态和结果等操作
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(ctx context.Context, taskType TaskType, runID string, payload interface{}) (string, error)

	// GetTask 获取任务信息
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// WaitForTask 等待任务完成并返回结果
	// timeout为0表示不设置超时
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// NotifyTaskUpdate 通知任务状态已更新
	NotifyTaskUpdate(ctx context.Context, taskID string) error

	// PublishProgress 发布导入进度事件，供其他进程订阅
	PublishProgress(ctx context.Context, runID string, data []byte) error

	// SubscribeProgress 订阅导入进度事件，返回的函数用于取消订阅
	SubscribeProgress(ctx context.Context, runID string) (<-chan []byte, func(), error)

	// Close 关闭队列连接
	Close() error
}

// Handler 任务处理器接口
// 负责实际执行任务的逻辑
type Handler interface {
	// ProcessTask 处理任务，可写入 task.Result 作为结果
	ProcessTask(ctx context.Context, task *Task) error

	// GetTaskTypes 返回此处理器支持的任务类型
	GetTaskTypes() []TaskType
}

// Worker 工作者接口
// 负责运行一组Handler来处理队列中的任务
type Worker interface {
	// RegisterHandler 注册任务处理器
	RegisterHandler(taskType TaskType, handler Handler)

	// Start 启动工作者，开始处理任务
	Start() error

	// Stop 停止工作者
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string         `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string         `mapstructure:"redis_password"` // Redis密码
	RedisDB       int            `mapstructure:"redis_db"`       // Redis数据库
	Concurrency   int            `mapstructure:"concurrency"`    // 并发处理任务数
	RetryLimit    int            `mapstructure:"retry_limit"`    // 最大重试次数
	RetryDelay    time.Duration  `mapstructure:"retry_delay"`    // 重试延迟
	TaskTimeout   time.Duration  `mapstructure:"task_timeout"`   // 单个任务超时
	Queues        map[string]int `mapstructure:"queues"`         // 队列名称到优先级的映射
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 2,
		RetryLimit:  1,
		RetryDelay:  time.Minute,
		TaskTimeout: 30 * time.Minute,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
	}
}

// Factory 队列工厂函数类型
// 用于创建不同类型的队列实现
type Factory func(cfg *Config) (Queue, error)

// 队列工厂函数映射
var queueFactories = make(map[string]Factory)

// RegisterQueueFactory 注册队列工厂函数
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// NewQueue 根据名称创建队列实例
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, exists := queueFactories[name]
	if !exists {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
