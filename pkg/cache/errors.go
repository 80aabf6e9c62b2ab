package cache

import (
	"tunefetch/pkg/apperror"
)

// NewStoreError 创建存储不可用错误
func NewStoreError(message string, cause error) *apperror.BaseError {
	return apperror.Wrap(apperror.ErrStoreUnavailable, message, cause)
}

// NewCorruptedError 创建存储数据损坏错误
func NewCorruptedError(key string, cause error) *apperror.BaseError {
	return apperror.Wrap(apperror.ErrStoreCorrupted, "stored value cannot be decoded", cause).
		WithContext("key", key)
}
