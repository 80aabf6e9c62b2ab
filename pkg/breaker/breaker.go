package breaker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"tunefetch/pkg/cache"
	"tunefetch/pkg/config"
	"tunefetch/pkg/logger"
)

// Status 熔断状态
type Status string

const (
	StatusClosed Status = "closed"
	StatusOpen   Status = "open"
)

// CircuitState 存储在共享存储中的熔断记录
type CircuitState struct {
	Status        Status    `json:"status"`
	DisabledAt    time.Time `json:"disabled_at"`
	RetryAfter    time.Time `json:"retry_after"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
}

// IsOpen 是否处于打开状态
func (s CircuitState) IsOpen() bool {
	return s.Status == StatusOpen
}

// Config 熔断器配置
type Config struct {
	Threshold     int           // 窗口内失败次数阈值
	FailureWindow time.Duration // 失败统计窗口
	Cooldown      time.Duration // 打开后的禁用时长
	StateTTL      time.Duration // 熔断记录的最长保留时间
	ProbeLease    time.Duration // 冷却期结束后探测请求的占用时长

	Now           func() time.Time
	OnStateChange func(key string, from, to Status)
}

// FromConfig 由应用配置生成熔断器配置
func FromConfig(c config.BreakerConfig) Config {
	return Config{
		Threshold:     c.Threshold,
		FailureWindow: c.FailureWindow,
		Cooldown:      c.Cooldown,
		StateTTL:      c.StateTTL,
		ProbeLease:    c.ProbeLease,
	}
}

// CircuitBreaker 基于共享存储的提供商熔断器。
// 只有打开和关闭两种状态：冷却期结束后放行一次探测，探测成功才会关闭。
type CircuitBreaker struct {
	store         cache.Store
	threshold     int
	window        time.Duration
	cooldown      time.Duration
	stateTTL      time.Duration
	probeLease    time.Duration
	now           func() time.Time
	onStateChange func(key string, from, to Status)
	log           *logrus.Entry
}

// New 创建熔断器
func New(store cache.Store, cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.StateTTL < cfg.Cooldown {
		cfg.StateTTL = 2 * cfg.Cooldown
	}
	if cfg.ProbeLease <= 0 {
		cfg.ProbeLease = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{
		store:         store,
		threshold:     cfg.Threshold,
		window:        cfg.FailureWindow,
		cooldown:      cfg.Cooldown,
		stateTTL:      cfg.StateTTL,
		probeLease:    cfg.ProbeLease,
		now:           cfg.Now,
		onStateChange: cfg.OnStateChange,
		log:           logger.WithComponent("CircuitBreaker"),
	}
}

// OnStateChange 设置状态变更回调
func (b *CircuitBreaker) OnStateChange(fn func(key string, from, to Status)) {
	b.onStateChange = fn
}

// ShouldSkip 判断是否应跳过该提供商。
// 冷却期内返回 true；冷却期结束后只有抢到探测租约的调用方会被放行。
func (b *CircuitBreaker) ShouldSkip(ctx context.Context, key string) bool {
	state, ok, err := b.load(ctx, key)
	if err != nil {
		b.log.WithError(err).WithField("provider", key).Warn("circuit state unavailable, allowing request")
		return false
	}
	if !ok || !state.IsOpen() {
		return false
	}

	if b.now().Before(state.RetryAfter) {
		return true
	}

	claimed, err := b.store.Add(ctx, probeKey(key), []byte("1"), b.probeLease)
	if err != nil {
		b.log.WithError(err).WithField("provider", key).Warn("probe lease unavailable, allowing request")
		return false
	}
	if claimed {
		b.log.WithField("provider", key).Info("cool-down elapsed, allowing probe request")
	}
	return !claimed
}

// RecordFailure 记录一次失败；窗口内失败次数达到阈值时打开熔断
func (b *CircuitBreaker) RecordFailure(ctx context.Context, key string) {
	now := b.now()
	entry := b.log.WithField("provider", key)

	failures, err := b.loadFailures(ctx, key)
	if err != nil {
		entry.WithError(err).Warn("failure log unavailable, starting a new one")
		failures = nil
	}
	failures = prune(failures, now.Add(-b.window))
	failures = append(failures, now.UnixMilli())

	if raw, err := json.Marshal(failures); err == nil {
		if err := b.store.Put(ctx, failuresKey(key), raw, b.window); err != nil {
			entry.WithError(err).Warn("failed to persist failure log")
		}
	}

	state, ok, err := b.load(ctx, key)
	if err != nil {
		entry.WithError(err).Warn("circuit state unavailable")
		ok = false
	}

	wasOpen := ok && state.IsOpen()
	probeFailed := wasOpen && !now.Before(state.RetryAfter)

	switch {
	case !wasOpen && len(failures) >= b.threshold:
		state = CircuitState{
			Status:        StatusOpen,
			DisabledAt:    now,
			RetryAfter:    now.Add(b.cooldown),
			FailureCount:  len(failures),
			LastFailureAt: now,
		}
	case wasOpen:
		state.FailureCount++
		state.LastFailureAt = now
		if probeFailed || len(failures) >= b.threshold {
			state.RetryAfter = now.Add(b.cooldown)
		}
	default:
		return
	}

	if err := b.save(ctx, key, state); err != nil {
		entry.WithError(err).Warn("failed to persist circuit state")
		return
	}

	if !wasOpen {
		entry.WithFields(logrus.Fields{
			"failures":    state.FailureCount,
			"retry_after": state.RetryAfter,
		}).Debug("circuit opened")
		b.notify(key, StatusClosed, StatusOpen)
	} else if probeFailed {
		entry.WithField("retry_after", state.RetryAfter).Warn("probe failed, circuit stays open")
	}
}

// RecordSuccess 成功后清除失败记录与熔断状态
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, key string) {
	state, ok, _ := b.load(ctx, key)

	for _, k := range []string{failuresKey(key), stateKey(key), probeKey(key)} {
		if err := b.store.Forget(ctx, k); err != nil {
			b.log.WithError(err).WithField("provider", key).Warn("failed to reset circuit")
		}
	}

	if ok && state.IsOpen() {
		b.log.WithField("provider", key).Debug("circuit closed")
		b.notify(key, StatusOpen, StatusClosed)
	}
}

// State 读取当前熔断记录，用于报告
func (b *CircuitBreaker) State(ctx context.Context, key string) (CircuitState, bool) {
	state, ok, err := b.load(ctx, key)
	if err != nil {
		return CircuitState{}, false
	}
	return state, ok
}

// RecentFailures 返回统计窗口内的失败次数
func (b *CircuitBreaker) RecentFailures(ctx context.Context, key string) int {
	failures, err := b.loadFailures(ctx, key)
	if err != nil {
		return 0
	}
	return len(prune(failures, b.now().Add(-b.window)))
}

func (b *CircuitBreaker) notify(key string, from, to Status) {
	if b.onStateChange != nil {
		b.onStateChange(key, from, to)
	}
}

func (b *CircuitBreaker) load(ctx context.Context, key string) (CircuitState, bool, error) {
	raw, ok, err := b.store.Get(ctx, stateKey(key))
	if err != nil || !ok {
		return CircuitState{}, false, err
	}

	var state CircuitState
	if err := json.Unmarshal(raw, &state); err != nil {
		b.log.WithError(cache.NewCorruptedError(stateKey(key), err)).Warn("discarding unreadable circuit state")
		return CircuitState{}, false, nil
	}
	return state, true, nil
}

func (b *CircuitBreaker) save(ctx context.Context, key string, state CircuitState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.store.Put(ctx, stateKey(key), raw, b.stateTTL)
}

func (b *CircuitBreaker) loadFailures(ctx context.Context, key string) ([]int64, error) {
	raw, ok, err := b.store.Get(ctx, failuresKey(key))
	if err != nil || !ok {
		return nil, err
	}

	var failures []int64
	if err := json.Unmarshal(raw, &failures); err != nil {
		return nil, cache.NewCorruptedError(failuresKey(key), err)
	}
	return failures, nil
}

// prune 丢弃早于 cutoff 的失败时间戳
func prune(failures []int64, cutoff time.Time) []int64 {
	limit := cutoff.UnixMilli()
	kept := failures[:0]
	for _, ts := range failures {
		if ts > limit {
			kept = append(kept, ts)
		}
	}
	return kept
}

func stateKey(key string) string    { return "circuit:" + key }
func failuresKey(key string) string { return "failures:" + key }
func probeKey(key string) string    { return "probe:" + key }
