package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 进程内的请求节奏控制：同一提供商两次请求之间至少间隔 interval
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewPacer 创建节奏控制器，interval <= 0 时不做任何等待
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait 阻塞到该提供商允许发出下一次请求
func (p *Pacer) Wait(ctx context.Context, providerKey string) error {
	if p == nil || p.interval <= 0 {
		return nil
	}
	return p.limiter(providerKey).Wait(ctx)
}

// Interval 返回最小请求间隔
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

func (p *Pacer) limiter(providerKey string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[providerKey]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[providerKey] = l
	}
	return l
}
