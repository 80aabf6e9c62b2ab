package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"tunefetch/pkg/config"
	"tunefetch/pkg/logger"
)

// RedisStore 基于 Redis 的共享存储，多进程部署时共享限流与熔断状态。
// 所有命令都经过 gobreaker 熔断器：Redis 故障时快速失败，调用方按"放行"处理，
// 不会因为存储不可用而拖慢每一次上游请求。
type RedisStore struct {
	client *redis.Client
	prefix string
	cb     *gobreaker.CircuitBreaker
	log    *logrus.Entry
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  dialTimeout,
		WriteTimeout: dialTimeout,
		MaxRetries:   -1, // 由熔断器兜底，不做客户端重试
	})

	return newRedisStore(client, cfg)
}

func newRedisStore(client *redis.Client, cfg config.RedisConfig) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		log:    logger.WithComponent("RedisStore"),
	}

	guard := cfg.Guard
	if guard.ReadyToTrip == 0 {
		guard.ReadyToTrip = 5
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis:" + cfg.Addr,
		MaxRequests: guard.MaxRequests,
		Interval:    guard.Interval,
		Timeout:     guard.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= guard.ReadyToTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("redis guard state changed")
		},
	})

	return s
}

// Get 获取值
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Get(ctx, s.key(key)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewStoreError("redis get failed", err)
	}
	return res.([]byte), true, nil
}

// Put 写入值
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, s.key(key), value, positive(ttl)).Err()
	})
	if err != nil {
		return NewStoreError("redis set failed", err)
	}
	return nil
}

// Add 键不存在时写入（SETNX）
func (s *RedisStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SetNX(ctx, s.key(key), value, positive(ttl)).Result()
	})
	if err != nil {
		return false, NewStoreError("redis setnx failed", err)
	}
	return res.(bool), nil
}

// Increment 原子自增（INCR），保留已有 TTL
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Incr(ctx, s.key(key)).Result()
	})
	if err != nil {
		return 0, NewStoreError("redis incr failed", err)
	}
	return res.(int64), nil
}

// Forget 删除键
func (s *RedisStore) Forget(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, s.key(key)).Err()
	})
	if err != nil {
		return NewStoreError("redis del failed", err)
	}
	return nil
}

// Ping 检查连接
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("redis ping failed", err)
	}
	return nil
}

// GuardState 返回保护熔断器的状态
func (s *RedisStore) GuardState() gobreaker.State {
	return s.cb.State()
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func positive(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
