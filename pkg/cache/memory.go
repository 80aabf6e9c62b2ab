package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStoreConfig 内存存储配置
type MemoryStoreConfig struct {
	CleanupInterval time.Duration    // 过期条目清理间隔，0 表示只在读取时惰性清理
	Now             func() time.Time // 时钟，测试中可替换
}

// memoryEntry 内存存储中的一个条目
type memoryEntry struct {
	value      []byte
	expireTime time.Time // 零值表示不过期
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireTime.IsZero() && !now.Before(e.expireTime)
}

// MemoryStore 线程安全的内存存储，适用于单进程部署和测试
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(config MemoryStoreConfig) *MemoryStore {
	now := config.Now
	if now == nil {
		now = time.Now
	}

	store := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		now:         now,
		stopCleanup: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		store.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go store.startCleanup()
	}

	return store
}

// Get 获取值
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(entry.value), true, nil
}

// Put 写入值
func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memoryEntry{value: cloneBytes(value), expireTime: m.expiry(ttl)}
	return nil
}

// Add 键不存在时写入
func (m *MemoryStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = &memoryEntry{value: cloneBytes(value), expireTime: m.expiry(ttl)}
	return true, nil
}

// Increment 原子自增
func (m *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		m.entries[key] = &memoryEntry{value: []byte("1")}
		return 1, nil
	}

	current, err := strconv.ParseInt(string(entry.value), 10, 64)
	if err != nil {
		return 0, NewCorruptedError(key, err)
	}
	current++
	entry.value = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// Forget 删除键
func (m *MemoryStore) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Len 返回未过期条目数
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close 停止清理协程
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
		close(m.stopCleanup)
	})
	return nil
}

// live 返回未过期的条目，过期条目顺便删除。调用方必须持有锁。
func (m *MemoryStore) live(key string) (*memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return entry, true
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// startCleanup 启动清理协程
func (m *MemoryStore) startCleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期条目
func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
