package provider

import (
	"fmt"
	"strings"
	"time"

	"tunefetch/pkg/limiter"
)

// ProviderConfig 一个具体上游提供商（同一族中的一个 RapidAPI 主机）
type ProviderConfig struct {
	Family  string
	Name    string
	Host    string
	Scheme  string
	Dialect string
	APIKey  string
}

// Key 返回限流与熔断状态使用的提供商键。
// 同一主机在不同族或不同层级下保持独立。
func (p ProviderConfig) Key() string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s", p.Family, p.Name, p.Host))
}

// BaseURL 返回 scheme://host
func (p ProviderConfig) BaseURL() string {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + p.Host
}

// String 用于日志，不包含密钥
func (p ProviderConfig) String() string {
	return fmt.Sprintf("%s/%s(%s)", p.Family, p.Name, p.Host)
}

// Param 一个查询参数
type Param struct {
	Key   string
	Value string
}

// Params 保持顺序的查询参数列表
type Params []Param

// Add 追加参数，返回新的列表
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get 返回第一个同名参数的值
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Encode 按插入顺序编码为查询字符串。
// 逗号与冒号保持原样，上游用它们分隔批量 ID 和 URI。
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		escapeQuery(&b, kv.Key)
		b.WriteByte('=')
		escapeQuery(&b, kv.Value)
	}
	return b.String()
}

func escapeQuery(b *strings.Builder, s string) {
	const hex = "0123456789ABCDEF"
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~' || c == ',' || c == ':':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
}

// Result 一次提供商调用或一条回退链的结果。不会以 error 返回，失败信息都在 Err 中。
type Result struct {
	Provider    string
	ProviderKey string
	Success     bool
	Data        any
	Err         error
	StatusCode  int
	RateLimited bool
	CircuitOpen bool
	Outcome     limiter.Outcome
	Duration    time.Duration

	// 以下字段由回退链填充
	ChainID   string
	Attempts  int
	Exhausted bool
}

// HasData 成功且负载非空
func (r Result) HasData() bool {
	if !r.Success || r.Data == nil {
		return false
	}
	switch v := r.Data.(type) {
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case string:
		return v != ""
	}
	return true
}

// ErrorMessage 返回错误文本，无错误时为空
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
