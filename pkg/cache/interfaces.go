package cache

import (
	"context"
	"time"
)

// Store 定义了限流器与熔断器共享的键值存储。
// 所有实现都必须支持 TTL 过期和原子自增；它是跨进程协调的唯一位置，
// 因此调用方不需要额外的进程内锁。
type Store interface {
	// Get 返回 (value, true, nil) 表示命中；(nil, false, nil) 表示未命中。
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put 写入值并设置 TTL，ttl <= 0 表示不过期。
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add 仅当键不存在时写入，返回是否写入成功。
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Increment 原子地将整数值加一并返回新值；键不存在时视为 0，已有 TTL 保持不变。
	Increment(ctx context.Context, key string) (int64, error)

	// Forget 删除键，键不存在不视为错误。
	Forget(ctx context.Context, key string) error
}

// Closable 需要释放资源的存储实现此接口
type Closable interface {
	Close() error
}
