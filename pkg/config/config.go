package config

import (
	"errors"
	"fmt"
	"time"
)

// 已知的提供商方言，决定请求参数的构造方式
const (
	DialectSpotify23 = "spotify23"
	DialectSpotify81 = "spotify81"
	DialectScraper   = "scraper"
)

// FamilySpotify 默认的上游服务族名称
const FamilySpotify = "spotify"

// Config 主配置结构
type Config struct {
	// RapidAPI 全局配置
	RapidAPI RapidAPIConfig `mapstructure:"rapidapi"`

	// 上游服务族，键为族名称（如 "spotify"）
	Families map[string]FamilyConfig `mapstructure:"families"`

	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 熔断器配置
	Breaker BreakerConfig `mapstructure:"breaker"`

	// HTTP 客户端配置
	HTTP HTTPConfig `mapstructure:"http"`

	// 共享状态存储配置
	Store StoreConfig `mapstructure:"store"`

	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`

	// Prometheus 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`

	// InfluxDB 遥测配置
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// API 服务配置
	Server ServerConfig `mapstructure:"server"`
}

// RapidAPIConfig RapidAPI 配置
type RapidAPIConfig struct {
	SharedKey string `mapstructure:"shared_key"` // 各服务族未配置密钥时使用的共享密钥
}

// FamilyConfig 一个上游服务族（同一逻辑数据的多个可互换提供商）
type FamilyConfig struct {
	APIKey    string          `mapstructure:"api_key"`   // 族级密钥
	Host      string          `mapstructure:"host"`      // 提供商未指定 host 时使用
	Providers []ProviderEntry `mapstructure:"providers"` // 按顺序尝试：primary, backup, tertiary
}

// ProviderEntry 单个提供商配置
type ProviderEntry struct {
	Name    string `mapstructure:"name"`
	Host    string `mapstructure:"host"`
	Scheme  string `mapstructure:"scheme"`  // 默认 https
	Dialect string `mapstructure:"dialect"` // spotify23, spotify81, scraper
	APIKey  string `mapstructure:"api_key"`
}

// RateLimitConfig 每个提供商每秒请求预算
type RateLimitConfig struct {
	PerSecond int           `mapstructure:"per_second"` // 每秒预算
	Grace     time.Duration `mapstructure:"grace"`      // 距下一窗口不足此时长时等待
	Pacing    time.Duration `mapstructure:"pacing"`     // 同一提供商两次请求的最小间隔
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Threshold     int           `mapstructure:"threshold"`      // 窗口内触发熔断的失败次数
	FailureWindow time.Duration `mapstructure:"failure_window"` // 失败统计窗口
	Cooldown      time.Duration `mapstructure:"cooldown"`       // 熔断后禁用时长
	StateTTL      time.Duration `mapstructure:"state_ttl"`      // 熔断状态最长保留时间
	ProbeLease    time.Duration `mapstructure:"probe_lease"`    // 冷却期结束后单次探测的占用时长
}

// HTTPConfig HTTP 客户端配置
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// StoreConfig 共享状态存储配置
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, redis
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Guard       GuardConfig   `mapstructure:"guard"`
}

// GuardConfig 保护 Redis 调用的熔断器配置
type GuardConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `mapstructure:"interval"`      // 统计窗口时间
	Timeout     time.Duration `mapstructure:"timeout"`       // 打开后的超时时间
	ReadyToTrip uint32        `mapstructure:"ready_to_trip"` // 连续失败阈值
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// TelemetryConfig InfluxDB 配置
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`            // debug, release, test
	ReportSchedule string `mapstructure:"report_schedule"` // 熔断状态上报的 cron 表达式（含秒）
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Families: map[string]FamilyConfig{
			FamilySpotify: {
				Providers: []ProviderEntry{
					{Name: "primary", Host: "spotify23.p.rapidapi.com", Scheme: "https", Dialect: DialectSpotify23},
					{Name: "backup", Host: "spotify81.p.rapidapi.com", Scheme: "https", Dialect: DialectSpotify81},
					{Name: "tertiary", Host: "spotify-scraper.p.rapidapi.com", Scheme: "https", Dialect: DialectScraper},
				},
			},
		},
		RateLimit: RateLimitConfig{
			PerSecond: 5,
			Grace:     150 * time.Millisecond,
			Pacing:    200 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			Threshold:     3,
			FailureWindow: 5 * time.Minute,
			Cooldown:      time.Hour,
			StateTTL:      2 * time.Hour,
			ProbeLease:    30 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "TuneFetch/1.0",
		},
		Store: StoreConfig{
			Driver:          "memory",
			CleanupInterval: time.Minute,
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				Prefix:      "tunefetch:",
				DialTimeout: 2 * time.Second,
				Guard: GuardConfig{
					MaxRequests: 1,
					Interval:    time.Minute,
					Timeout:     30 * time.Second,
					ReadyToTrip: 5,
				},
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tunefetch",
		},
		Telemetry: TelemetryConfig{
			URL:    "http://localhost:8086",
			Org:    "tunefetch",
			Bucket: "provider_attempts",
		},
		Server: ServerConfig{
			Port:           "8080",
			Mode:           "release",
			ReportSchedule: "*/30 * * * * *",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Families) == 0 {
		return errors.New("at least one provider family must be configured")
	}

	for name, family := range c.Families {
		if len(family.Providers) == 0 {
			return fmt.Errorf("family %q has no providers", name)
		}
		seen := make(map[string]bool, len(family.Providers))
		for i, p := range family.Providers {
			if p.Name == "" {
				return fmt.Errorf("family %q provider #%d has no name", name, i)
			}
			if seen[p.Name] {
				return fmt.Errorf("family %q declares provider %q twice", name, p.Name)
			}
			seen[p.Name] = true
			if p.Host == "" && family.Host == "" {
				return fmt.Errorf("family %q provider %q has no host", name, p.Name)
			}
			if !IsKnownDialect(p.Dialect) {
				return fmt.Errorf("family %q provider %q has unknown dialect %q", name, p.Name, p.Dialect)
			}
		}
	}

	if c.RateLimit.PerSecond <= 0 {
		return errors.New("rate_limit.per_second must be positive")
	}
	if c.RateLimit.Grace < 0 || c.RateLimit.Grace >= time.Second {
		return errors.New("rate_limit.grace must be within [0, 1s)")
	}
	if c.RateLimit.Pacing < 0 {
		return errors.New("rate_limit.pacing cannot be negative")
	}

	if c.Breaker.Threshold <= 0 {
		return errors.New("breaker.threshold must be positive")
	}
	if c.Breaker.FailureWindow <= 0 || c.Breaker.Cooldown <= 0 {
		return errors.New("breaker windows must be positive")
	}
	if c.Breaker.StateTTL < c.Breaker.Cooldown {
		return errors.New("breaker.state_ttl must not be shorter than breaker.cooldown")
	}

	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Telemetry.Enabled && (c.Telemetry.URL == "" || c.Telemetry.Bucket == "") {
		return errors.New("telemetry requires url and bucket")
	}

	return nil
}

// IsKnownDialect 检查方言是否受支持
func IsKnownDialect(dialect string) bool {
	switch dialect {
	case DialectSpotify23, DialectSpotify81, DialectScraper:
		return true
	}
	return false
}

// ResolveAPIKey 按 提供商密钥 → 族密钥 → 共享密钥 的顺序解析密钥
func (c *Config) ResolveAPIKey(family string, p ProviderEntry) string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if f, ok := c.Families[family]; ok && f.APIKey != "" {
		return f.APIKey
	}
	return c.RapidAPI.SharedKey
}

// ResolveHost 提供商未配置 host 时回退到族级 host
func (c *Config) ResolveHost(family string, p ProviderEntry) string {
	if p.Host != "" {
		return p.Host
	}
	return c.Families[family].Host
}

// SetTimeout 设置 HTTP 超时
func (c *Config) SetTimeout(timeout time.Duration) *Config {
	c.HTTP.Timeout = timeout
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
