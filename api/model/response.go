package model

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DeleteResponse 删除文章响应
type DeleteResponse struct {
	Success   bool   `json:"success"`    // 是否成功
	ArticleID string `json:"article_id"` // 文章ID
	Message   string `json:"message"`    // 说明
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status   string            `json:"status"`   // healthy 或 unhealthy
	Version  string            `json:"version"`  // 服务版本
	Provider string            `json:"provider"` // 大模型提供商
	Services map[string]string `json:"services"` // 依赖检查结果：ok 或 error
	Message  string            `json:"message"`
}

// ConfigResponse 前端使用的非敏感配置
type ConfigResponse struct {
	LLMProvider           string   `json:"llm_provider"`
	LLMModel              string   `json:"llm_model"`
	Providers             []string `json:"providers"`
	DefaultChunkSize      int      `json:"default_chunk_size"`
	DefaultChunkOverlap   int      `json:"default_chunk_overlap"`
	DefaultSplitStrategy  string   `json:"default_split_strategy"`
	DefaultTotalQuestions int      `json:"default_total_questions"`
	SplitStrategies       []string `json:"split_strategies"`
	AsyncIngest           bool     `json:"async_ingest"`
}
