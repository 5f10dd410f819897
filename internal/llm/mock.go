package llm

import (
	"context"
	"sync"
)

// ScriptedResponse 预设的一次响应
type ScriptedResponse struct {
	Content string
	Usage   Usage
	Err     error
}

// ScriptedClient 确定性的客户端，按先进先出返回预设响应并记录所有请求
// 设置Handler时改由Handler根据消息生成响应
type ScriptedClient struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	Handler   func(messages []Message) ScriptedResponse
	Calls     [][]Message
	model     string
}

// NewScriptedClient 用给定的预设响应创建客户端
func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{responses: responses, model: ModelMock}
}

// GenerateJSON 返回下一条预设响应
func (m *ScriptedClient) GenerateJSON(ctx context.Context, messages []Message, _ ...GenerateOption) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError(err, ProviderMock, ErrCodeTimeout)
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	var next ScriptedResponse
	switch {
	case m.Handler != nil:
		handler := m.Handler
		m.mu.Unlock()
		next = handler(messages)
		m.mu.Lock()
	case len(m.responses) > 0:
		next = m.responses[0]
		m.responses = m.responses[1:]
	default:
		m.mu.Unlock()
		return nil, NewProviderError(ProviderMock, ErrCodeInvalidRequest, "no scripted response left")
	}
	m.mu.Unlock()

	if next.Err != nil {
		return nil, next.Err
	}
	return finishJSON(ProviderMock, &Response{
		Content:      next.Content,
		Usage:        next.Usage,
		Model:        m.model,
		FinishReason: "stop",
	})
}

// Name 返回 "mock"
func (m *ScriptedClient) Name() string {
	return m.model
}

// AddResponse 追加一条预设响应
func (m *ScriptedClient) AddResponse(resp ScriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount 返回调用次数
func (m *ScriptedClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// NewMockClient 注册为 "mock" 提供商，始终返回空问题列表，用于离线演练
func NewMockClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	c := NewScriptedClient()
	if cfg.Model != "" {
		c.model = cfg.Model
	}
	c.Handler = func([]Message) ScriptedResponse {
		return ScriptedResponse{Content: `{"questions": []}`}
	}
	return c, nil
}

func init() {
	RegisterClient(ProviderMock, NewMockClient)
}
