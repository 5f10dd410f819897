package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/repository"
)

// 订阅通道缓冲，写满时丢弃事件
const subscriberBuffer = 64

// DefaultRunRetention 已结束运行的事件在内存中保留的时间
const DefaultRunRetention = 10 * time.Minute

// ProgressEvent 导入进度事件
type ProgressEvent struct {
	RunID     string         `json:"run_id"`
	Seq       int            `json:"seq"`
	Stage     models.Stage   `json:"stage"`
	Message   string         `json:"message"`
	Timestamp float64        `json:"timestamp"`
	ArticleID string         `json:"article_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ProgressRelay 跨进程转发进度事件，由任务队列实现
type ProgressRelay interface {
	PublishProgress(ctx context.Context, runID string, data []byte) error
	SubscribeProgress(ctx context.Context, runID string) (<-chan []byte, func(), error)
}

type runStream struct {
	events     []ProgressEvent
	subs       map[int]chan ProgressEvent
	nextSub    int
	done       bool
	finishedAt time.Time
	following  bool
}

// ProgressHub 按运行ID缓存进度事件并分发给订阅者
// 事件同时写入运行记录，终止阶段之后关闭全部订阅
type ProgressHub struct {
	mu        sync.Mutex
	runs      map[string]*runStream
	repo      repository.RunRepository
	relay     ProgressRelay
	retention time.Duration
	logger    *logrus.Logger
}

// ProgressOption 进度中心配置选项
type ProgressOption func(*ProgressHub)

// WithRunRepository 持久化阶段到运行记录
func WithRunRepository(repo repository.RunRepository) ProgressOption {
	return func(h *ProgressHub) {
		h.repo = repo
	}
}

// WithRelay 设置跨进程转发
func WithRelay(relay ProgressRelay) ProgressOption {
	return func(h *ProgressHub) {
		h.relay = relay
	}
}

// WithRetention 设置已结束运行的保留时间
func WithRetention(d time.Duration) ProgressOption {
	return func(h *ProgressHub) {
		if d > 0 {
			h.retention = d
		}
	}
}

// WithProgressLogger 设置日志记录器
func WithProgressLogger(logger *logrus.Logger) ProgressOption {
	return func(h *ProgressHub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewProgressHub 创建进度中心
func NewProgressHub(opts ...ProgressOption) *ProgressHub {
	h := &ProgressHub{
		runs:      make(map[string]*runStream),
		retention: DefaultRunRetention,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ProgressHub) stream(runID string) *runStream {
	s, ok := h.runs[runID]
	if !ok {
		s = &runStream{subs: make(map[int]chan ProgressEvent)}
		h.runs[runID] = s
	}
	return s
}

// Emit 记录并分发一个事件，返回带序号的事件
func (h *ProgressHub) Emit(ctx context.Context, runID string, stage models.Stage, message, articleID string, details map[string]any) ProgressEvent {
	h.mu.Lock()
	s := h.stream(runID)
	ev := ProgressEvent{
		RunID:     runID,
		Seq:       len(s.events) + 1,
		Stage:     stage,
		Message:   message,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		ArticleID: articleID,
		Details:   details,
	}
	h.deliverLocked(s, ev)
	h.pruneLocked()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"run_id":     runID,
		"stage":      stage,
		"article_id": articleID,
	}).Info(message)

	h.persist(ctx, ev)
	if h.relay != nil {
		if data, err := json.Marshal(ev); err == nil {
			if err := h.relay.PublishProgress(ctx, runID, data); err != nil {
				h.logger.WithError(err).WithField("run_id", runID).Warn("Failed to relay progress event")
			}
		}
	}
	return ev
}

// deliverLocked 追加事件并通知订阅者，序号不大于已有事件的会被忽略
func (h *ProgressHub) deliverLocked(s *runStream, ev ProgressEvent) bool {
	if s.done || ev.Seq <= len(s.events) {
		return false
	}
	s.events = append(s.events, ev)
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{
				"run_id":     ev.RunID,
				"subscriber": id,
			}).Warn("Dropping progress event for slow subscriber")
		}
	}
	if ev.Stage.Terminal() {
		s.done = true
		s.finishedAt = time.Now()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
	}
	return true
}

func (h *ProgressHub) persist(ctx context.Context, ev ProgressEvent) {
	if h.repo == nil {
		return
	}
	update := repository.StageUpdate{
		Stage:     ev.Stage,
		Status:    models.RunStatusRunning,
		Message:   ev.Message,
		ArticleID: ev.ArticleID,
	}
	switch ev.Stage {
	case models.StageDone:
		update.Status = models.RunStatusCompleted
		if existing, _ := ev.Details["existing"].(bool); existing {
			update.Status = models.RunStatusExisting
		}
	case models.StageFailed:
		update.Status = models.RunStatusFailed
		update.Error = ev.Message
	}
	// 请求ctx取消后仍需记录最终阶段
	if err := h.repo.UpdateStage(context.WithoutCancel(ctx), ev.RunID, update); err != nil {
		h.logger.WithError(err).WithField("run_id", ev.RunID).Warn("Failed to persist run stage")
	}
}

// Subscribe 订阅运行的进度
// 返回已有事件和后续事件通道，运行已结束时通道立即关闭
func (h *ProgressHub) Subscribe(runID string) ([]ProgressEvent, <-chan ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stream(runID)
	replay := append([]ProgressEvent(nil), s.events...)
	ch := make(chan ProgressEvent, subscriberBuffer)
	if s.done {
		close(ch)
		return replay, ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
			h.releaseLocked(runID, s)
		})
	}
	return replay, ch, cancel
}

// Follow 从转发通道接收其他进程产生的事件，直到运行结束或ctx取消
// 没有配置转发、运行已结束或已在跟随时直接返回
func (h *ProgressHub) Follow(ctx context.Context, runID string) {
	if h.relay == nil {
		return
	}
	h.mu.Lock()
	s := h.stream(runID)
	if s.done || s.following {
		h.mu.Unlock()
		return
	}
	s.following = true
	h.mu.Unlock()

	msgs, closeFn, err := h.relay.SubscribeProgress(ctx, runID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Warn("Failed to follow relayed progress")
		h.setFollowing(runID, false)
		return
	}

	go func() {
		defer closeFn()
		defer h.setFollowing(runID, false)
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-msgs:
				if !ok {
					return
				}
				var ev ProgressEvent
				if err := json.Unmarshal(data, &ev); err != nil || ev.RunID != runID {
					continue
				}
				h.mu.Lock()
				st := h.stream(runID)
				h.deliverLocked(st, ev)
				done := st.done
				h.mu.Unlock()
				if done {
					return
				}
			}
		}
	}()
}

func (h *ProgressHub) setFollowing(runID string, v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.runs[runID]; ok {
		s.following = v
		h.releaseLocked(runID, s)
	}
}

// releaseLocked 删除只因订阅或跟随而创建、没有任何事件的运行
func (h *ProgressHub) releaseLocked(runID string, s *runStream) {
	if len(s.events) > 0 || len(s.subs) > 0 || s.following {
		return
	}
	if h.runs[runID] == s {
		delete(h.runs, runID)
	}
}

// Events 返回运行的全部事件
func (h *ProgressHub) Events(runID string) []ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.runs[runID]; ok {
		return append([]ProgressEvent(nil), s.events...)
	}
	return nil
}

// Active 运行是否已开始且未结束
func (h *ProgressHub) Active(runID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.runs[runID]
	return ok && len(s.events) > 0 && !s.done
}

// ActiveRuns 返回未结束的运行ID
func (h *ProgressHub) ActiveRuns() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for id, s := range h.runs {
		if len(s.events) > 0 && !s.done {
			ids = append(ids, id)
		}
	}
	return ids
}

// pruneLocked 清理超过保留时间的已结束运行
func (h *ProgressHub) pruneLocked() {
	cutoff := time.Now().Add(-h.retention)
	for id, s := range h.runs {
		if s.done && s.finishedAt.Before(cutoff) {
			delete(h.runs, id)
		}
	}
}

// Reporter 返回绑定到某次运行的进度记录器
func (h *ProgressHub) Reporter(runID string) *RunReporter {
	return &RunReporter{hub: h, runID: runID}
}

// RunReporter 单次运行的进度记录器
type RunReporter struct {
	hub       *ProgressHub
	runID     string
	articleID string
}

// RunID 运行ID
func (r *RunReporter) RunID() string {
	return r.runID
}

// SetArticleID 之后的事件都带上文章ID
func (r *RunReporter) SetArticleID(id string) {
	r.articleID = id
}

// Stage 记录一个阶段事件
func (r *RunReporter) Stage(ctx context.Context, stage models.Stage, message string, details map[string]any) {
	if r == nil || r.hub == nil {
		return
	}
	r.hub.Emit(ctx, r.runID, stage, message, r.articleID, details)
}
