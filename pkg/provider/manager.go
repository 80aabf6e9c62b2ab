package provider

import (
	"sort"
	"strings"
	"sync"

	"tunefetch/pkg/apperror"
	"tunefetch/pkg/config"
)

// Registry 按族管理有序的提供商列表
type Registry struct {
	mu       sync.RWMutex
	families map[string][]ProviderConfig
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string][]ProviderConfig),
	}
}

// NewRegistryFromConfig 根据配置构建注册表，密钥与主机按配置的回退规则解析
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()

	names := make([]string, 0, len(cfg.Families))
	for name := range cfg.Families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, family := range names {
		for _, entry := range cfg.Families[family].Providers {
			p := ProviderConfig{
				Family:  family,
				Name:    entry.Name,
				Host:    cfg.ResolveHost(family, entry),
				Scheme:  entry.Scheme,
				Dialect: entry.Dialect,
				APIKey:  cfg.ResolveAPIKey(family, entry),
			}
			if err := r.Register(p); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Register 在族的末尾追加一个提供商，顺序即回退顺序
func (r *Registry) Register(p ProviderConfig) error {
	if p.Family == "" {
		return apperror.New(apperror.ErrInvalidProvider, "provider family cannot be empty")
	}
	if p.Name == "" {
		return apperror.New(apperror.ErrInvalidProvider, "provider name cannot be empty").
			WithContext("family", p.Family)
	}
	if p.Host == "" {
		return apperror.New(apperror.ErrInvalidProvider, "provider host cannot be empty").
			WithContext("family", p.Family).WithContext("provider", p.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.families[p.Family] {
		if existing.Key() == p.Key() {
			return apperror.New(apperror.ErrInvalidProvider, "provider already registered").
				WithContext("key", p.Key())
		}
	}
	r.families[p.Family] = append(r.families[p.Family], p)
	return nil
}

// Providers 返回族的提供商列表副本
func (r *Registry) Providers(family string) ([]ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.families[family]
	if !ok || len(list) == 0 {
		return nil, apperror.New(apperror.ErrFamilyNotFound, "provider family not found").
			WithContext("family", family)
	}
	out := make([]ProviderConfig, len(list))
	copy(out, list)
	return out, nil
}

// Families 返回已注册的族名，按字母序
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All 返回所有提供商，族按字母序，族内保持回退顺序
func (r *Registry) All() []ProviderConfig {
	var all []ProviderConfig
	for _, family := range r.Families() {
		list, _ := r.Providers(family)
		all = append(all, list...)
	}
	return all
}

// Lookup 按提供商键查找
func (r *Registry) Lookup(key string) (ProviderConfig, bool) {
	key = strings.ToLower(key)
	for _, p := range r.All() {
		if p.Key() == key {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
