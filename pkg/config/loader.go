package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TUNEFETCH_HTTP_TIMEOUT=5s
const EnvPrefix = "TUNEFETCH"

// Load 加载配置：默认值 → 配置文件 → .env / 环境变量
// path 为空时在 ./config 与当前目录查找 tunefetch.yaml，文件不存在不视为错误。
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tunefetch")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 与旧部署保持一致的共享密钥变量名
	_ = v.BindEnv("rapidapi.shared_key", EnvPrefix+"_RAPIDAPI_SHARED_KEY", "RAPIDAPI_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper 从已准备好的 Viper 实例解析配置
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults 将默认配置写入 viper，使环境变量可以覆盖每个叶子键
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("rapidapi.shared_key", d.RapidAPI.SharedKey)

	families := make(map[string]interface{}, len(d.Families))
	for name, f := range d.Families {
		providers := make([]map[string]interface{}, 0, len(f.Providers))
		for _, p := range f.Providers {
			providers = append(providers, map[string]interface{}{
				"name":    p.Name,
				"host":    p.Host,
				"scheme":  p.Scheme,
				"dialect": p.Dialect,
				"api_key": p.APIKey,
			})
		}
		families[name] = map[string]interface{}{
			"api_key":   f.APIKey,
			"host":      f.Host,
			"providers": providers,
		}
	}
	v.SetDefault("families", families)

	v.SetDefault("rate_limit.per_second", d.RateLimit.PerSecond)
	v.SetDefault("rate_limit.grace", d.RateLimit.Grace)
	v.SetDefault("rate_limit.pacing", d.RateLimit.Pacing)

	v.SetDefault("breaker.threshold", d.Breaker.Threshold)
	v.SetDefault("breaker.failure_window", d.Breaker.FailureWindow)
	v.SetDefault("breaker.cooldown", d.Breaker.Cooldown)
	v.SetDefault("breaker.state_ttl", d.Breaker.StateTTL)
	v.SetDefault("breaker.probe_lease", d.Breaker.ProbeLease)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.cleanup_interval", d.Store.CleanupInterval)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.redis.password", d.Store.Redis.Password)
	v.SetDefault("store.redis.db", d.Store.Redis.DB)
	v.SetDefault("store.redis.prefix", d.Store.Redis.Prefix)
	v.SetDefault("store.redis.dial_timeout", d.Store.Redis.DialTimeout)
	v.SetDefault("store.redis.guard.max_requests", d.Store.Redis.Guard.MaxRequests)
	v.SetDefault("store.redis.guard.interval", d.Store.Redis.Guard.Interval)
	v.SetDefault("store.redis.guard.timeout", d.Store.Redis.Guard.Timeout)
	v.SetDefault("store.redis.guard.ready_to_trip", d.Store.Redis.Guard.ReadyToTrip)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.url", d.Telemetry.URL)
	v.SetDefault("telemetry.token", d.Telemetry.Token)
	v.SetDefault("telemetry.org", d.Telemetry.Org)
	v.SetDefault("telemetry.bucket", d.Telemetry.Bucket)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.report_schedule", d.Server.ReportSchedule)
}
