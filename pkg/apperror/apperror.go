package apperror

import (
	"fmt"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// ErrFamilyNotFound 提供商族未注册
	ErrFamilyNotFound ErrorCode = "PROVIDER_FAMILY_NOT_FOUND"
	// ErrInvalidProvider 提供商配置无效
	ErrInvalidProvider ErrorCode = "INVALID_PROVIDER"
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrStoreUnavailable 共享状态存储不可用
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrStoreCorrupted 共享状态存储中的数据无法解析
	ErrStoreCorrupted ErrorCode = "STORE_CORRUPTED"
	// ErrCircuitOpen 提供商熔断中，未发出请求
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrRateLimited 本地预算耗尽或上游返回 429
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrProviderFailed 请求已发出但提供商失败
	ErrProviderFailed ErrorCode = "PROVIDER_FAILED"
	// ErrNoProviders 回退链为空
	ErrNoProviders ErrorCode = "NO_PROVIDERS"
	// ErrConnectionFailed 外部依赖（InfluxDB、Redis）连接失败
	ErrConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrInvalidArgument 请求参数无效
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// BaseError 基础错误类型
type BaseError struct {
	Code      ErrorCode              `json:"code"`              // 错误的分类代码
	Message   string                 `json:"message"`           // 人类可读的错误信息
	Cause     error                  `json:"-"`                 // 导致此错误的原始错误
	Context   map[string]interface{} `json:"context,omitempty"` // 额外的上下文信息
	Timestamp time.Time              `json:"timestamp"`         // 错误发生的时间戳
}

// New 创建新的基础错误
func New(code ErrorCode, message string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// Wrap 包装现有错误
func Wrap(code ErrorCode, message string, cause error) *BaseError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// Error 实现 error 接口
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 支持错误包装
func (e *BaseError) Unwrap() error {
	return e.Cause
}

// Is 按错误代码比较
func (e *BaseError) Is(target error) bool {
	if t, ok := target.(*BaseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext 为错误附加一个键值对形式的上下文信息。
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HasCode 判断 err 链上是否存在指定代码的 BaseError
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if be, ok := err.(*BaseError); ok && be.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
