package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tunefetch/pkg/apperror"
	"tunefetch/pkg/limiter"
	"tunefetch/pkg/logger"
)

// Orchestrator 按顺序尝试提供商，第一个可接受的结果胜出
type Orchestrator struct {
	observer Observer
	now      func() time.Time
	newID    func() string
	log      *logrus.Entry
}

// NewOrchestrator 创建回退编排器
func NewOrchestrator(observer Observer) *Orchestrator {
	if observer == nil {
		observer = NopObserver
	}
	return &Orchestrator{
		observer: observer,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.WithComponent("Fallback"),
	}
}

// DefaultAccept 成功且负载非空
func DefaultAccept(r Result) bool {
	return r.HasData()
}

// TryProviders 依次执行 attempt，直到 accept 返回 true。
// 全部失败时返回最后一个结果并标记 Exhausted；列表为空时返回合成的失败结果。
func (o *Orchestrator) TryProviders(ctx context.Context, op string, providers []ProviderConfig, attempt AttemptFunc, accept AcceptFunc) Result {
	if accept == nil {
		accept = DefaultAccept
	}

	chainID := o.newID()
	entry := o.log.WithFields(logrus.Fields{"operation": op, "chain_id": chainID})

	last := Result{
		Outcome: limiter.OutcomeUnknown,
		Err:     apperror.New(apperror.ErrNoProviders, "no providers configured").WithContext("operation", op),
	}
	attempts := 0

	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			entry.WithError(err).Debug("fallback chain canceled")
			last = Result{Provider: p.Name, ProviderKey: p.Key(), Err: err, Outcome: limiter.OutcomeTransport}
			break
		}

		attempts++
		callCtx := WithCallInfo(ctx, CallInfo{ChainID: chainID, Operation: op, Attempt: i + 1})
		r := attempt(callCtx, p)
		r.ChainID = chainID
		r.Attempts = attempts

		if accept(r) {
			if i > 0 {
				entry.WithField("provider", r.ProviderKey).Debugf("served by fallback provider after %d attempts", attempts)
			}
			return r
		}

		if r.Success {
			entry.WithField("provider", r.ProviderKey).Debug("provider result rejected")
			o.observer.OnEvent(Event{
				Type:        EventResultRejected,
				Time:        o.now(),
				ChainID:     chainID,
				Operation:   op,
				Family:      p.Family,
				Provider:    p.Name,
				ProviderKey: p.Key(),
				Attempt:     i + 1,
				Outcome:     r.Outcome,
				StatusCode:  r.StatusCode,
			})
		}
		last = r
	}

	last.ChainID = chainID
	last.Attempts = attempts
	last.Exhausted = true

	family := ""
	if len(providers) > 0 {
		family = providers[0].Family
	}
	entry.WithFields(logrus.Fields{"attempts": attempts, "family": family}).Debug("all providers failed")
	o.observer.OnEvent(Event{
		Type:      EventChainExhausted,
		Time:      o.now(),
		ChainID:   chainID,
		Operation: op,
		Family:    family,
		Attempt:   attempts,
		Outcome:   last.Outcome,
		Err:       last.Err,
	})
	return last
}

// CallAttempt 把 Caller 与请求构造函数组合成 AttemptFunc。
// build 返回 ok=false 时跳过该提供商（例如方言不支持此操作）。
func CallAttempt(caller Caller, build func(p ProviderConfig) (endpoint string, params Params, ok bool)) AttemptFunc {
	return func(ctx context.Context, p ProviderConfig) Result {
		endpoint, params, ok := build(p)
		if !ok {
			return Result{
				Provider:    p.Name,
				ProviderKey: p.Key(),
				Outcome:     limiter.OutcomeClient,
				Err: apperror.New(apperror.ErrInvalidProvider, "operation not supported by provider dialect").
					WithContext("dialect", p.Dialect),
			}
		}
		return caller.Call(ctx, endpoint, params, p)
	}
}
