package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"tunefetch/pkg/cache"
	"tunefetch/pkg/logger"
)

// RateLimiterConfig 每提供商每窗口请求预算配置
type RateLimiterConfig struct {
	PerSecond int                                              // 每个窗口的预算
	Window    time.Duration                                    // 窗口长度，默认 1s
	Grace     time.Duration                                    // 距离下一窗口不足此时长时允许等待
	Now       func() time.Time                                 // 时钟
	Sleep     func(ctx context.Context, d time.Duration) error // 等待函数
}

// RateLimiter 基于共享存储的软限流器。
// 计数先读后增，多个进程在窗口边界上可能多放行一个请求，预算是软上限而不是硬保证。
type RateLimiter struct {
	store  cache.Store
	budget int64
	window time.Duration
	grace  time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	log    *logrus.Entry
}

// NewRateLimiter 创建限流器
func NewRateLimiter(store cache.Store, config RateLimiterConfig) *RateLimiter {
	if config.PerSecond <= 0 {
		config.PerSecond = 5
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Sleep == nil {
		config.Sleep = SleepContext
	}

	return &RateLimiter{
		store:  store,
		budget: int64(config.PerSecond),
		window: config.Window,
		grace:  config.Grace,
		now:    config.Now,
		sleep:  config.Sleep,
		log:    logger.WithComponent("RateLimiter"),
	}
}

// TryReserveSlot 尝试在当前窗口预留一个请求名额，不等待
func (l *RateLimiter) TryReserveSlot(ctx context.Context, providerKey string) bool {
	key := l.windowKey(providerKey, l.now())

	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.failOpen(providerKey, err)
		return true
	}
	if ok {
		count, perr := strconv.ParseInt(string(raw), 10, 64)
		if perr == nil && count >= l.budget {
			return false
		}
	}

	if _, err := l.store.Add(ctx, key, []byte("0"), l.window+time.Second); err != nil {
		l.failOpen(providerKey, err)
		return true
	}

	count, err := l.store.Increment(ctx, key)
	if err != nil {
		l.failOpen(providerKey, err)
		return true
	}

	// 读与自增之间可能有并发请求，自增后再判断一次
	return count <= l.budget
}

// WaitForNextWindowAndReserve 距离下一个窗口不超过宽限期时，等待到下一个窗口再预留一次；
// 否则立即返回 false。
func (l *RateLimiter) WaitForNextWindowAndReserve(ctx context.Context, providerKey string) bool {
	if l.grace <= 0 {
		return false
	}

	remaining := l.untilNextWindow(l.now())
	if remaining > l.grace {
		return false
	}

	if err := l.sleep(ctx, remaining); err != nil {
		return false
	}
	return l.TryReserveSlot(ctx, providerKey)
}

// Reserve 先尝试当前窗口，失败则尝试宽限等待
func (l *RateLimiter) Reserve(ctx context.Context, providerKey string) bool {
	if l.TryReserveSlot(ctx, providerKey) {
		return true
	}
	return l.WaitForNextWindowAndReserve(ctx, providerKey)
}

// Budget 返回每个窗口的预算
func (l *RateLimiter) Budget() int {
	return int(l.budget)
}

func (l *RateLimiter) windowID(t time.Time) int64 {
	return t.UnixNano() / int64(l.window)
}

func (l *RateLimiter) windowKey(providerKey string, t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", providerKey, l.windowID(t))
}

func (l *RateLimiter) untilNextWindow(t time.Time) time.Duration {
	next := time.Unix(0, (l.windowID(t)+1)*int64(l.window))
	return next.Sub(t)
}

func (l *RateLimiter) failOpen(providerKey string, err error) {
	l.log.WithError(err).WithField("provider", providerKey).Warn("rate limit store unavailable, allowing request")
}

// SleepContext 可被 ctx 取消的等待
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
