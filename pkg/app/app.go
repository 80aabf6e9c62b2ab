package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tunefetch/pkg/api"
	"tunefetch/pkg/breaker"
	"tunefetch/pkg/cache"
	"tunefetch/pkg/config"
	"tunefetch/pkg/limiter"
	"tunefetch/pkg/logger"
	"tunefetch/pkg/metrics"
	"tunefetch/pkg/normalize"
	"tunefetch/pkg/provider"
	"tunefetch/pkg/scheduler"
	"tunefetch/pkg/spotify"
	"tunefetch/pkg/telemetry"
)

// App 按配置组装好的组件
type App struct {
	Config    *config.Config
	Store     cache.Store
	Registry  *provider.Registry
	Breaker   *breaker.CircuitBreaker
	Limiter   *limiter.RateLimiter
	Client    *provider.Client
	Metrics   *metrics.Observer         // metrics.enabled=false 时为 nil
	Telemetry *telemetry.InfluxObserver // telemetry.enabled=false 时为 nil
	Observer  provider.Observer

	orch *provider.Orchestrator
	norm *normalize.Normalizer
	log  *logrus.Entry
}

// New 组装存储、限流、熔断、客户端与观察者
func New(cfg *config.Config) (*App, error) {
	log := logger.WithComponent("App")

	store, err := cache.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	registry, err := provider.NewRegistryFromConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	rl := limiter.NewRateLimiter(store, limiter.RateLimiterConfig{
		PerSecond: cfg.RateLimit.PerSecond,
		Grace:     cfg.RateLimit.Grace,
	})

	a := &App{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		Breaker:  breaker.New(store, breaker.FromConfig(cfg.Breaker)),
		Limiter:  rl,
		norm:     normalize.New(),
		log:      log,
	}

	observers := provider.MultiObserver{provider.NewLogObserver()}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace, true)
		observers = append(observers, a.Metrics)
	}
	if cfg.Telemetry.Enabled {
		influx, err := telemetry.NewInfluxObserver(cfg.Telemetry)
		if err != nil {
			closeStore(store)
			return nil, err
		}
		a.Telemetry = influx
		observers = append(observers, influx)
	}
	a.Observer = observers

	a.Client = provider.NewClient(provider.ClientOptions{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		Limiter:   a.Limiter,
		Breaker:   a.Breaker,
		Pacer:     limiter.NewPacer(cfg.RateLimit.Pacing),
		Observer:  a.Observer,
	})
	a.orch = provider.NewOrchestrator(a.Observer)

	log.WithFields(logrus.Fields{
		"families":  registry.Families(),
		"store":     cfg.Store.Driver,
		"metrics":   cfg.Metrics.Enabled,
		"telemetry": cfg.Telemetry.Enabled,
	}).Info("application assembled")
	return a, nil
}

// Service 返回某个提供商族的领域服务
func (a *App) Service(family string) *spotify.Service {
	return spotify.NewService(a.Registry, a.Client, spotify.Options{
		Family:       family,
		Orchestrator: a.orch,
		Normalizer:   a.norm,
	})
}

// Reporter 创建熔断状态上报任务，未启动
func (a *App) Reporter() (*scheduler.CircuitReporter, error) {
	cfg := scheduler.ReporterConfig{
		Schedule:  a.Config.Server.ReportSchedule,
		Providers: a.Registry,
		Breaker:   a.Breaker,
	}
	if a.Metrics != nil {
		cfg.Gauge = a.Metrics
	}
	return scheduler.NewCircuitReporter(cfg)
}

// HealthChecks 返回外部依赖的健康检查
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if p, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		checks["store"] = p.Ping
	}
	if a.Telemetry != nil {
		checks["influxdb"] = a.Telemetry.Ping
	}
	return checks
}

// Close 释放存储与遥测资源
func (a *App) Close() {
	if a.Telemetry != nil {
		a.Telemetry.Close()
	}
	closeStore(a.Store)
}

func closeStore(store cache.Store) {
	if c, ok := store.(cache.Closable); ok {
		if err := c.Close(); err != nil {
			logger.WithComponent("App").WithError(err).Warn("failed to close store")
		}
	}
}
