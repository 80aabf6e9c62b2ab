package limiter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Outcome 一次提供商调用的结果分类
type Outcome int

const (
	OutcomeSuccess     Outcome = iota // 2xx 且响应可解析
	OutcomeRateLimited                // 本地预算耗尽或上游 429
	OutcomeCircuitOpen                // 熔断打开，未发出请求
	OutcomeTransport                  // 连接失败、超时等网络错误
	OutcomeServer                     // 5xx
	OutcomeClient                     // 429 以外的 4xx
	OutcomeDecode                     // 2xx 但响应体不是合法 JSON
	OutcomeUnknown                    // 其他无法识别的状态
)

// String 返回用于日志和指标标签的名称
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeCircuitOpen:
		return "circuit_open"
	case OutcomeTransport:
		return "transport"
	case OutcomeServer:
		return "server_error"
	case OutcomeClient:
		return "client_error"
	case OutcomeDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// CountsAsFailure 是否计入熔断器失败。
// 限流（429）是预期的繁忙信号，不代表提供商不健康；熔断打开时没有发出请求。
func (o Outcome) CountsAsFailure() bool {
	switch o {
	case OutcomeSuccess, OutcomeRateLimited, OutcomeCircuitOpen:
		return false
	}
	return true
}

// ErrorClassifier 负责根据状态码与错误类型进行分类
type ErrorClassifier struct{}

// NewErrorClassifier 创建新的错误分类器
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify 根据 HTTP 状态码与传输错误分类。err 非空时优先按传输错误处理。
func (c *ErrorClassifier) Classify(statusCode int, err error) Outcome {
	if err != nil {
		if IsRateLimitError(err) {
			return OutcomeRateLimited
		}
		return OutcomeTransport
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case statusCode >= 500:
		return OutcomeServer
	case statusCode >= 400:
		return OutcomeClient
	default:
		return OutcomeUnknown
	}
}

// TransportReason 给出传输错误的细分原因，用于日志
func (c *ErrorClassifier) TransportReason(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "connection reset"):
		return "connection_reset"
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "nosuchhost"):
		return "dns"
	case strings.Contains(msg, "network is unreachable"):
		return "unreachable"
	case strings.Contains(msg, "eof"):
		return "eof"
	}
	return "other"
}

// IsRateLimitError 判断错误文本是否表示限流。
// 不匹配裸的 "429"，地址和端口里也可能出现这个数字。
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
