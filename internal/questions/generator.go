package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/llm"
)

// 生成参数默认值
const (
	DefaultTemperature float32 = 0.1
	DefaultMaxTokens           = 100000
)

// UnitResult 单个生成单元的结果，Err非空表示失败
type UnitResult struct {
	Unit     Unit
	Items    []QuestionItem
	Err      error
	Raw      string
	Provider string
	Latency  time.Duration
}

// OK 是否生成成功
func (r UnitResult) OK() bool {
	return r.Err == nil
}

// Generator 问题生成器
// 按规划逐个单元调用模型，失败的单元退化为一条占位问题
type Generator struct {
	client      llm.Client
	prompts     *Prompts
	planner     Planner
	pacer       Pacer
	concurrency int
	temperature float32
	maxTokens   int
	model       string
	provider    string
	logger      *logrus.Logger
}

// GeneratorOption 生成器配置选项
type GeneratorOption func(*Generator)

// NewGenerator 创建生成器，默认顺序执行并在调用间隔3秒
func NewGenerator(client llm.Client, opts ...GeneratorOption) (*Generator, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	g := &Generator{
		client:      client,
		planner:     DefaultPlanner(),
		concurrency: 1,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		provider:    client.Name(),
		logger:      logrus.New(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.prompts == nil {
		p, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		g.prompts = p
	}
	if g.pacer == nil {
		g.pacer = NewSleepPacer(DefaultPaceInterval)
	}
	return g, nil
}

// WithPrompts 设置提示模板
func WithPrompts(p *Prompts) GeneratorOption {
	return func(g *Generator) {
		g.prompts = p
	}
}

// WithPlanner 设置单元规划器
func WithPlanner(p Planner) GeneratorOption {
	return func(g *Generator) {
		g.planner = p
	}
}

// WithPacer 设置调用节奏，nil表示不等待
func WithPacer(p Pacer) GeneratorOption {
	return func(g *Generator) {
		if p == nil {
			p = NoopPacer{}
		}
		g.pacer = p
	}
}

// WithConcurrency 设置并发单元数，1为顺序执行
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float32) GeneratorOption {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxTokens 设置最大输出token
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithModel 覆盖客户端默认模型
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

// WithProvider 设置日志中记录的提供商名称
func WithProvider(name string) GeneratorOption {
	return func(g *Generator) {
		if name != "" {
			g.provider = name
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// GenerateQuestionsForChunks 使用默认配置生成问题，model为空时使用客户端默认模型
func GenerateQuestionsForChunks(ctx context.Context, client llm.Client, chunks []document.Chunk, total int, model string) ([]QuestionItem, error) {
	g, err := NewGenerator(client, WithModel(model))
	if err != nil {
		return nil, err
	}
	return g.Generate(ctx, chunks, total)
}

// Generate 规划单元并逐个生成，返回清洗后的全部问题
// 单元失败不会中断整体，只有规划不变量被破坏或ctx取消时返回错误
func (g *Generator) Generate(ctx context.Context, chunks []document.Chunk, total int) ([]QuestionItem, error) {
	if len(chunks) == 0 {
		g.logger.Warn("No chunks provided for question generation")
		return []QuestionItem{}, nil
	}

	units := g.planner.Plan(chunks, total)
	if err := g.planner.Verify(chunks, units); err != nil {
		return nil, err
	}
	g.logger.WithFields(logrus.Fields{
		"chunks": len(chunks),
		"total":  total,
		"units":  len(units),
	}).Info("Generating questions")

	cleaner := NewCleaner(chunks, g.logger)
	results, err := g.RunUnits(ctx, units, cleaner)
	if err != nil {
		return nil, err
	}

	var items []QuestionItem
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			items = append(items, FallbackItem(r.Unit))
			continue
		}
		items = append(items, r.Items...)
	}

	items = cleaner.Clean(items)
	g.logger.WithFields(logrus.Fields{
		"questions": len(items),
		"units":     len(units),
		"failed":    failed,
	}).Info("Question generation finished")
	return items, nil
}

// RunUnits 执行所有单元并按规划顺序返回结果
// ctx取消后不再派发新单元，已派发的调用自行结束
func (g *Generator) RunUnits(ctx context.Context, units []Unit, cleaner *Cleaner) ([]UnitResult, error) {
	if cleaner == nil {
		cleaner = NewCleaner(nil, g.logger)
	}
	results := make([]UnitResult, len(units))

	if g.concurrency <= 1 {
		for i, unit := range units {
			if err := g.pacer.Wait(ctx); err != nil {
				return nil, fmt.Errorf("generation canceled after %d of %d units: %w", i, len(units), err)
			}
			results[i] = g.generateUnit(ctx, unit, cleaner)
		}
		return results, nil
	}

	// 每个goroutine只写自己的槽位，结果顺序与规划一致
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	dispatched := 0
	var waitErr error
	for i, unit := range units {
		if err := g.pacer.Wait(ctx); err != nil {
			waitErr = err
			break
		}
		dispatched++
		eg.Go(func() error {
			results[i] = g.generateUnit(ctx, unit, cleaner)
			return nil
		})
	}
	_ = eg.Wait()

	if waitErr != nil {
		return nil, fmt.Errorf("generation canceled after %d of %d units: %w", dispatched, len(units), waitErr)
	}
	return results, nil
}

// GenerateUnit 为单个单元生成问题，只接受单元内的块ID
func (g *Generator) GenerateUnit(ctx context.Context, unit Unit) UnitResult {
	return g.generateUnit(ctx, unit, NewCleaner(unit.Chunks, g.logger))
}

func (g *Generator) generateUnit(ctx context.Context, unit Unit, cleaner *Cleaner) UnitResult {
	start := time.Now()
	result := g.callUnit(ctx, unit, cleaner)
	result.Unit = unit
	result.Provider = g.provider
	result.Latency = time.Since(start)

	fields := logrus.Fields{
		"provider":   g.provider,
		"chunk_ids":  unit.ChunkIDs(),
		"count":      unit.Count,
		"latency_ms": result.Latency.Milliseconds(),
	}
	if !result.OK() {
		fields["error"] = result.Err.Error()
		if result.Raw != "" {
			fields["raw"] = result.Raw
		}
		g.logger.WithFields(fields).Error("Failed to generate questions for unit, using fallback")
		return result
	}
	fields["questions"] = len(result.Items)
	g.logger.WithFields(fields).Info("Generated questions for unit")
	return result
}

func (g *Generator) callUnit(ctx context.Context, unit Unit, cleaner *Cleaner) UnitResult {
	prompt, err := g.prompts.UnitPrompt(unit)
	if err != nil {
		return UnitResult{Err: err}
	}

	messages := []llm.Message{
		llm.SystemMessage(g.prompts.System()),
		llm.UserMessage(prompt),
	}
	options := []llm.GenerateOption{
		llm.WithGenerateTemperature(g.temperature),
		llm.WithGenerateMaxTokens(g.maxTokens),
	}
	if g.model != "" {
		options = append(options, llm.WithGenerateModel(g.model))
	}

	resp, err := g.client.GenerateJSON(ctx, messages, options...)
	if err != nil {
		var llmErr *llm.LLMError
		if errors.As(err, &llmErr) {
			return UnitResult{Err: err, Raw: llmErr.Raw}
		}
		return UnitResult{Err: err}
	}

	parsed := resp.Parsed
	if parsed == nil {
		if parsed, err = llm.ParseJSONObject(resp.Content); err != nil {
			return UnitResult{Err: err, Raw: resp.Content}
		}
	}
	items, err := DecodeQuestions(parsed, resp.Content)
	if err != nil {
		return UnitResult{Err: err, Raw: truncate(resp.Content)}
	}

	// 模型未给出ID的条目归属到本单元，给出的ID则按块集合清洗
	unitIDs := unit.ChunkIDs()
	for i := range items {
		if len(items[i].RelatedChunkIDs) == 0 {
			items[i].RelatedChunkIDs = append([]string(nil), unitIDs...)
		}
	}
	return UnitResult{Items: cleaner.Clean(items), Raw: truncate(resp.Content)}
}

func truncate(raw string) string {
	return document.TruncateText(raw, 500)
}
