package provider

import (
	"context"
	"time"

	"tunefetch/pkg/limiter"
)

// Caller 对单个提供商发出一次请求。
// Client 是默认实现，领域服务只依赖此接口。
type Caller interface {
	Call(ctx context.Context, endpoint string, params Params, p ProviderConfig) Result
}

// AttemptFunc 针对某个提供商执行一次尝试
type AttemptFunc func(ctx context.Context, p ProviderConfig) Result

// AcceptFunc 判断一次尝试的结果是否可以结束回退链
type AcceptFunc func(r Result) bool

// EventType 观测事件类型
type EventType string

const (
	EventAttemptStarted   EventType = "attempt_started"
	EventAttemptSucceeded EventType = "attempt_succeeded"
	EventAttemptFailed    EventType = "attempt_failed"
	EventRateLimited      EventType = "rate_limited"
	EventCircuitSkipped   EventType = "circuit_skipped"
	EventCircuitOpened    EventType = "circuit_opened"
	EventCircuitClosed    EventType = "circuit_closed"
	EventResultRejected   EventType = "result_rejected"
	EventChainExhausted   EventType = "chain_exhausted"
)

// Event 回退链与提供商调用过程中的结构化事件
type Event struct {
	Type        EventType
	Time        time.Time
	ChainID     string
	Operation   string
	Family      string
	Provider    string
	ProviderKey string
	Attempt     int
	Endpoint    string
	Outcome     limiter.Outcome
	StatusCode  int
	Duration    time.Duration
	Err         error
}

// Observer 接收事件。实现必须是并发安全且不阻塞的。
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc 函数适配器
type ObserverFunc func(e Event)

// OnEvent 实现 Observer
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver 依次分发给多个观测者
type MultiObserver []Observer

// OnEvent 实现 Observer
func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}

// NopObserver 丢弃所有事件
var NopObserver Observer = nopObserver{}

type callInfoKey struct{}

// CallInfo 回退链传递给单次调用的上下文信息
type CallInfo struct {
	ChainID   string
	Operation string
	Attempt   int
}

// WithCallInfo 把回退链信息放入 ctx
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom 读取回退链信息
func CallInfoFrom(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
