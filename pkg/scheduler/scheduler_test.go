package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunefetch/pkg/breaker"
	"tunefetch/pkg/cache"
	"tunefetch/pkg/provider"
)

// gaugeRecorder 记录 SetCircuit 调用
type gaugeRecorder struct {
	mu    sync.Mutex
	calls map[string]bool
	fails map[string]int
}

func newGaugeRecorder() *gaugeRecorder {
	return &gaugeRecorder{calls: map[string]bool{}, fails: map[string]int{}}
}

func (g *gaugeRecorder) SetCircuit(family, name string, open bool, recentFailures int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[family+"/"+name] = open
	g.fails[family+"/"+name] = recentFailures
}

func (g *gaugeRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry()
	for _, name := range []string{"primary", "backup", "tertiary"} {
		require.NoError(t, r.Register(provider.ProviderConfig{
			Family: "spotify", Name: name, Host: name + ".example.com", Dialect: "spotify23",
		}))
	}
	return r
}

func TestCircuitReporter_RunOnce(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry(t)
	b := breaker.New(cache.NewMemoryStore(cache.MemoryStoreConfig{}), breaker.Config{})
	gauge := newGaugeRecorder()

	providers := registry.All()
	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, providers[1].Key())
	}
	b.RecordFailure(ctx, providers[2].Key())

	r, err := NewCircuitReporter(ReporterConfig{Providers: registry, Breaker: b, Gauge: gauge})
	require.NoError(t, err)

	snaps := r.RunOnce(ctx)
	require.Len(t, snaps, 3)

	assert.Equal(t, "primary", snaps[0].Provider)
	assert.False(t, snaps[0].Open())
	assert.Nil(t, snaps[0].RetryAfter)

	assert.Equal(t, "backup", snaps[1].Provider)
	assert.True(t, snaps[1].Open())
	require.NotNil(t, snaps[1].RetryAfter)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *snaps[1].RetryAfter, time.Minute)
	assert.Equal(t, 3, snaps[1].FailureCount)
	assert.Equal(t, 3, snaps[1].RecentFailures)

	assert.False(t, snaps[2].Open())
	assert.Equal(t, 1, snaps[2].RecentFailures)

	assert.Equal(t, map[string]bool{"spotify/primary": false, "spotify/backup": true, "spotify/tertiary": false}, gauge.calls)
	assert.Equal(t, 1, gauge.fails["spotify/tertiary"])

	last, at := r.Last()
	assert.Equal(t, snaps, last)
	assert.False(t, at.IsZero())
}

func TestCircuitReporter_定时执行(t *testing.T) {
	registry := newRegistry(t)
	b := breaker.New(cache.NewMemoryStore(cache.MemoryStoreConfig{}), breaker.Config{})
	gauge := newGaugeRecorder()

	r, err := NewCircuitReporter(ReporterConfig{Schedule: "* * * * * *", Providers: registry, Breaker: b, Gauge: gauge})
	require.NoError(t, err)

	r.Start()
	r.Start()
	defer r.Stop()

	assert.False(t, r.NextRun().IsZero())
	assert.Eventually(t, func() bool { return gauge.count() == 3 }, 3*time.Second, 50*time.Millisecond)
}

func TestNewCircuitReporter_参数校验(t *testing.T) {
	registry := newRegistry(t)
	b := breaker.New(cache.NewMemoryStore(cache.MemoryStoreConfig{}), breaker.Config{})

	_, err := NewCircuitReporter(ReporterConfig{Breaker: b})
	assert.Error(t, err)

	_, err = NewCircuitReporter(ReporterConfig{Providers: registry, Breaker: b, Schedule: "not a cron"})
	assert.Error(t, err)

	r, err := NewCircuitReporter(ReporterConfig{Providers: registry, Breaker: b})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, r.schedule)
	r.Stop()
}
