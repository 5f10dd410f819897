package llm

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// SystemMessage 构造系统消息
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage 构造用户消息
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Usage 资源使用情况
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response 统一的响应结构
type Response struct {
	Content      string         // 模型返回的原始文本
	Parsed       map[string]any // 修复并解析后的JSON对象
	Usage        Usage          // token用量
	Model        string         // 实际使用的模型
	FinishReason string         // 结束原因
}

// 各提供商的默认模型
const (
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelGeminiFlash  = "gemini-2.0-flash"
	ModelClaudeSonnet = "claude-sonnet-4-20250514"
	ModelLlama        = "llama3.1"
	ModelQwenTurbo    = "qwen-turbo"
	ModelQwenPlus     = "qwen-plus"
	ModelQwenMax      = "qwen-max"
	ModelMock         = "mock"
)

// DefaultModel 返回提供商的默认模型
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return ModelGPT4oMini
	case ProviderGemini:
		return ModelGeminiFlash
	case ProviderAnthropic:
		return ModelClaudeSonnet
	case ProviderOllama:
		return ModelLlama
	case ProviderTongyi:
		return ModelQwenTurbo
	default:
		return ModelMock
	}
}

// TongyiRequest 通义千问请求结构
type TongyiRequest struct {
	Model      string              `json:"model"`                // 模型名称
	Input      *TongyiRequestInput `json:"input"`                // 输入内容
	Parameters *TongyiParameters   `json:"parameters,omitempty"` // 可选参数
}

// TongyiRequestInput 请求输入内容
type TongyiRequestInput struct {
	Messages []Message `json:"messages"` // 消息列表
}

// TongyiResponseFormat 返回格式约束
type TongyiResponseFormat struct {
	Type string `json:"type"`
}

// TongyiParameters 请求参数
type TongyiParameters struct {
	Temperature    *float32              `json:"temperature,omitempty"`     // 采样温度
	MaxTokens      *int                  `json:"max_tokens,omitempty"`      // 最大生成Token数
	ResultFormat   string                `json:"result_format,omitempty"`   // 返回格式，message或text
	ResponseFormat *TongyiResponseFormat `json:"response_format,omitempty"` // JSON模式
}

// TongyiResponse 通义千问响应结构
type TongyiResponse struct {
	StatusCode int          `json:"status_code"` // 状态码
	RequestID  string       `json:"request_id"`  // 请求ID
	Code       string       `json:"code"`        // 错误码(如果有)
	Message    string       `json:"message"`     // 错误消息(如果有)
	Output     TongyiOutput `json:"output"`      // 输出结果
	Usage      TongyiUsage  `json:"usage"`       // 资源使用情况
}

// TongyiOutput 输出结构
type TongyiOutput struct {
	Text         *string        `json:"text"`          // 文本输出(当result_format为text时)
	FinishReason *string        `json:"finish_reason"` // 结束原因
	Choices      []TongyiChoice `json:"choices"`       // 选择列表(当result_format为message时)
}

// TongyiChoice 输出选择
type TongyiChoice struct {
	FinishReason string  `json:"finish_reason"` // 结束原因
	Message      Message `json:"message"`       // 消息内容
}

// TongyiUsage 资源使用情况
type TongyiUsage struct {
	InputTokens  int `json:"input_tokens"`  // 输入token数
	OutputTokens int `json:"output_tokens"` // 输出token数
	TotalTokens  int `json:"total_tokens"`  // 总token数
}

// ollamaRequest Ollama /api/chat 请求结构
type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaResponse Ollama /api/chat 响应结构
type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}
