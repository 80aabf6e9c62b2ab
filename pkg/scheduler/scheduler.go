package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tunefetch/pkg/breaker"
	"tunefetch/pkg/logger"
	"tunefetch/pkg/provider"
)

// DefaultSchedule 默认每 30 秒上报一次（含秒字段）
const DefaultSchedule = "*/30 * * * * *"

// ProviderSource 提供要上报的提供商列表，*provider.Registry 满足该接口
type ProviderSource interface {
	All() []provider.ProviderConfig
}

// CircuitGauge 接收熔断状态快照，*metrics.Observer 满足该接口
type CircuitGauge interface {
	SetCircuit(family, name string, open bool, recentFailures int)
}

// CircuitSnapshot 某个提供商在上报时刻的熔断状态
type CircuitSnapshot struct {
	Family         string         `json:"family"`
	Provider       string         `json:"provider"`
	Key            string         `json:"key"`
	Status         breaker.Status `json:"status"`
	RetryAfter     *time.Time     `json:"retry_after,omitempty"`
	FailureCount   int            `json:"failure_count"`
	RecentFailures int            `json:"recent_failures"`
}

// Open 熔断是否打开
func (s CircuitSnapshot) Open() bool {
	return s.Status == breaker.StatusOpen
}

// ReporterConfig 上报任务配置
type ReporterConfig struct {
	Schedule  string
	Providers ProviderSource
	Breaker   *breaker.CircuitBreaker
	Gauge     CircuitGauge // 可选
}

// CircuitReporter 定时读取每个提供商的熔断状态，刷新仪表并记录打开的熔断
type CircuitReporter struct {
	cron      *cron.Cron
	schedule  string
	providers ProviderSource
	breaker   *breaker.CircuitBreaker
	gauge     CircuitGauge
	log       *logrus.Entry

	mu      sync.RWMutex
	running bool
	entryID cron.EntryID
	last    []CircuitSnapshot
	lastRun time.Time
}

// NewCircuitReporter 创建熔断状态上报任务
func NewCircuitReporter(cfg ReporterConfig) (*CircuitReporter, error) {
	if cfg.Providers == nil || cfg.Breaker == nil {
		return nil, fmt.Errorf("circuit reporter requires providers and breaker")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}

	r := &CircuitReporter{
		cron:      cron.New(cron.WithSeconds()),
		schedule:  cfg.Schedule,
		providers: cfg.Providers,
		breaker:   cfg.Breaker,
		gauge:     cfg.Gauge,
		log:       logger.WithComponent("CircuitReporter"),
	}

	id, err := r.cron.AddFunc(cfg.Schedule, func() {
		r.RunOnce(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", cfg.Schedule, err)
	}
	r.entryID = id
	return r, nil
}

// Start 启动定时任务
func (r *CircuitReporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
	r.log.WithField("schedule", r.schedule).Info("circuit reporter started")
}

// Stop 停止定时任务并等待正在执行的上报结束
func (r *CircuitReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
		r.log.Info("circuit reporter stopped")
	case <-time.After(10 * time.Second):
		r.log.Warn("circuit reporter stop timed out")
	}
}

// NextRun 下一次上报时间，未启动时为零值
func (r *CircuitReporter) NextRun() time.Time {
	return r.cron.Entry(r.entryID).Next
}

// RunOnce 立即执行一次上报并返回快照，顺序与注册表一致
func (r *CircuitReporter) RunOnce(ctx context.Context) []CircuitSnapshot {
	providers := r.providers.All()
	snapshots := make([]CircuitSnapshot, 0, len(providers))
	open := 0

	for _, p := range providers {
		s := CircuitSnapshot{
			Family:         p.Family,
			Provider:       p.Name,
			Key:            p.Key(),
			Status:         breaker.StatusClosed,
			RecentFailures: r.breaker.RecentFailures(ctx, p.Key()),
		}
		if state, ok := r.breaker.State(ctx, p.Key()); ok && state.IsOpen() {
			retry := state.RetryAfter
			s.Status = breaker.StatusOpen
			s.RetryAfter = &retry
			s.FailureCount = state.FailureCount
			open++

			r.log.WithFields(logrus.Fields{
				"provider":      s.Key,
				"retry_after":   retry.Format(time.RFC3339),
				"failure_count": s.FailureCount,
			}).Warn("provider circuit is open")
		}

		if r.gauge != nil {
			r.gauge.SetCircuit(s.Family, s.Provider, s.Open(), s.RecentFailures)
		}
		snapshots = append(snapshots, s)
	}

	r.mu.Lock()
	r.last = snapshots
	r.lastRun = time.Now()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"providers": len(snapshots), "open": open}).Debug("circuit report finished")
	return snapshots
}

// Last 返回最近一次上报的快照副本与时间
func (r *CircuitReporter) Last() ([]CircuitSnapshot, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CircuitSnapshot, len(r.last))
	copy(out, r.last)
	return out, r.lastRun
}
