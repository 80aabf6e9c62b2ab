package limiter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		err      error
		expected Outcome
	}{
		{"200成功", 200, nil, OutcomeSuccess},
		{"204成功", 204, nil, OutcomeSuccess},
		{"429限流", 429, nil, OutcomeRateLimited},
		{"500服务端错误", 500, nil, OutcomeServer},
		{"503服务端错误", 503, nil, OutcomeServer},
		{"403客户端错误", 403, nil, OutcomeClient},
		{"404客户端错误", 404, nil, OutcomeClient},
		{"302无法识别", 302, nil, OutcomeUnknown},
		{"超时", 0, context.DeadlineExceeded, OutcomeTransport},
		{"连接拒绝", 0, errors.New("dial tcp 127.0.0.1:4290: connection refused"), OutcomeTransport},
		{"文本表示限流", 0, errors.New("upstream said: Too Many Requests"), OutcomeRateLimited},
	}

	classifier := NewErrorClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.status, tt.err))
		})
	}
}

func TestOutcome_是否计入熔断失败(t *testing.T) {
	assert.False(t, OutcomeSuccess.CountsAsFailure())
	assert.False(t, OutcomeRateLimited.CountsAsFailure(), "429 不能计入熔断失败")
	assert.False(t, OutcomeCircuitOpen.CountsAsFailure())

	for _, o := range []Outcome{OutcomeTransport, OutcomeServer, OutcomeClient, OutcomeDecode, OutcomeUnknown} {
		assert.True(t, o.CountsAsFailure(), o.String())
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestTransportReason(t *testing.T) {
	c := NewErrorClassifier()

	assert.Equal(t, "", c.TransportReason(nil))
	assert.Equal(t, "canceled", c.TransportReason(fmt.Errorf("get: %w", context.Canceled)))
	assert.Equal(t, "timeout", c.TransportReason(fmt.Errorf("get: %w", context.DeadlineExceeded)))
	assert.Equal(t, "timeout", c.TransportReason(timeoutErr{}))
	assert.Equal(t, "dns", c.TransportReason(&net.DNSError{Err: "no such host", Name: "x"}))
	assert.Equal(t, "connection_refused", c.TransportReason(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "connection_reset", c.TransportReason(errors.New("read tcp: connection reset by peer")))
	assert.Equal(t, "eof", c.TransportReason(errors.New("unexpected EOF")))
	assert.Equal(t, "other", c.TransportReason(errors.New("boom")))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
