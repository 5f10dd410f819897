package questions

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPaceInterval 相邻两次生成调用之间的默认间隔
const DefaultPaceInterval = 3 * time.Second

// Pacer 控制外部调用节奏，在每次调用前阻塞
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoopPacer 不做任何等待，用于测试与无限流场景
type NoopPacer struct{}

// Wait 立即返回
func (NoopPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}

// SleepPacer 保证相邻两次调用至少间隔Interval，首次调用不等待
type SleepPacer struct {
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewSleepPacer 创建固定间隔的节奏器
func NewSleepPacer(interval time.Duration) *SleepPacer {
	return &SleepPacer{Interval: interval}
}

// Wait 等待到下一个可用时间点
func (p *SleepPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.Interval)
	p.mu.Unlock()

	delay := time.Until(at)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RatePacer 基于令牌桶的节奏器，适合并发生成时共享调用预算
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer 每interval放行一次，burst为突发上限
func NewRatePacer(interval time.Duration, burst int) *RatePacer {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RatePacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait 等待令牌
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
