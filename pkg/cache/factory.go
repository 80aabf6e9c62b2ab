package cache

import (
	"fmt"

	"tunefetch/pkg/config"
)

// New 根据配置创建共享存储
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(MemoryStoreConfig{CleanupInterval: cfg.CleanupInterval}), nil
	case "redis":
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
