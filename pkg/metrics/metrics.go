package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tunefetch/pkg/provider"
)

// DefaultNamespace 指标名前缀
const DefaultNamespace = "tunefetch"

// Observer 把提供商事件转换为 Prometheus 指标，同时提供熔断状态仪表。
// 每个 Observer 持有自己的 Registry，测试之间互不干扰。
type Observer struct {
	registry *prometheus.Registry

	attempts    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	exhausted   *prometheus.CounterVec
	circuitOpen *prometheus.GaugeVec
	failures    *prometheus.GaugeVec
}

// New 创建指标观察者。withRuntime 为 true 时同时注册 Go 运行时与进程指标。
func New(namespace string, withRuntime bool) *Observer {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	o := &Observer{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by outcome.",
		}, []string{"family", "provider", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Duration of provider HTTP calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"family", "provider"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"family", "provider", "state"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_exhausted_total",
			Help:      "Fallback chains where every provider failed.",
		}, []string{"operation"}),
		circuitOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_open",
			Help:      "1 when the provider circuit is open.",
		}, []string{"family", "provider"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_recent_failures",
			Help:      "Failures inside the breaker window.",
		}, []string{"family", "provider"}),
	}

	o.registry.MustRegister(o.attempts, o.duration, o.transitions, o.exhausted, o.circuitOpen, o.failures)
	if withRuntime {
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return o
}

// OnEvent 实现 provider.Observer
func (o *Observer) OnEvent(e provider.Event) {
	switch e.Type {
	case provider.EventAttemptSucceeded, provider.EventAttemptFailed:
		o.attempts.WithLabelValues(e.Family, e.Provider, e.Outcome.String()).Inc()
		o.duration.WithLabelValues(e.Family, e.Provider).Observe(e.Duration.Seconds())

	case provider.EventRateLimited, provider.EventCircuitSkipped:
		o.attempts.WithLabelValues(e.Family, e.Provider, e.Outcome.String()).Inc()

	case provider.EventCircuitOpened:
		o.transitions.WithLabelValues(e.Family, e.Provider, "open").Inc()
		o.circuitOpen.WithLabelValues(e.Family, e.Provider).Set(1)

	case provider.EventCircuitClosed:
		o.transitions.WithLabelValues(e.Family, e.Provider, "closed").Inc()
		o.circuitOpen.WithLabelValues(e.Family, e.Provider).Set(0)

	case provider.EventChainExhausted:
		o.exhausted.WithLabelValues(e.Operation).Inc()
	}
}

// SetCircuit 由定时报告任务调用，刷新某个提供商的熔断仪表
func (o *Observer) SetCircuit(family, name string, open bool, recentFailures int) {
	v := 0.0
	if open {
		v = 1
	}
	o.circuitOpen.WithLabelValues(family, name).Set(v)
	o.failures.WithLabelValues(family, name).Set(float64(recentFailures))
}

// Registry 返回底层注册表
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler 返回 /metrics 处理器
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
