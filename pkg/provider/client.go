package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tunefetch/pkg/apperror"
	"tunefetch/pkg/breaker"
	"tunefetch/pkg/limiter"
	"tunefetch/pkg/logger"
)

const maxErrorSnippet = 200

// ClientOptions 提供商客户端选项
type ClientOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Limiter    *limiter.RateLimiter
	Breaker    *breaker.CircuitBreaker
	Pacer      *limiter.Pacer
	Observer   Observer
	Now        func() time.Time
}

// Client 对单个提供商执行一次 HTTP 调用，负责限流、熔断与结果归一
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *limiter.RateLimiter
	breaker    *breaker.CircuitBreaker
	pacer      *limiter.Pacer
	observer   Observer
	classifier *limiter.ErrorClassifier
	now        func() time.Time

	// 熔断回调只拿到键，用最近一次调用的配置补全事件
	seen sync.Map
}

// NewClient 创建提供商客户端
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			Timeout: opts.Timeout,
		}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "TuneFetch/1.0"
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{
		httpClient: opts.HTTPClient,
		userAgent:  opts.UserAgent,
		limiter:    opts.Limiter,
		breaker:    opts.Breaker,
		pacer:      opts.Pacer,
		observer:   opts.Observer,
		classifier: limiter.NewErrorClassifier(),
		now:        opts.Now,
	}

	if c.breaker != nil {
		c.breaker.OnStateChange(c.onCircuitChange)
	}
	return c
}

// Call 对提供商发出一次 GET 请求。任何失败都体现在 Result 中，不会 panic 或返回 error。
func (c *Client) Call(ctx context.Context, endpoint string, params Params, p ProviderConfig) Result {
	key := p.Key()
	c.seen.Store(key, p)
	info, _ := CallInfoFrom(ctx)
	entry := logger.WithProvider("ProviderClient", key).WithFields(logrus.Fields{
		"endpoint": endpoint,
		"chain_id": info.ChainID,
	})

	base := Result{Provider: p.Name, ProviderKey: key}

	if err := ctx.Err(); err != nil {
		base.Err = err
		base.Outcome = limiter.OutcomeTransport
		return base
	}

	if c.breaker != nil && c.breaker.ShouldSkip(ctx, key) {
		base.CircuitOpen = true
		base.Outcome = limiter.OutcomeCircuitOpen
		base.Err = apperror.New(apperror.ErrCircuitOpen, "provider circuit is open").WithContext("provider", key)
		entry.Debug("circuit open, skipping provider")
		c.emit(EventCircuitSkipped, p, info, endpoint, base)
		return base
	}

	if c.limiter != nil && !c.limiter.Reserve(ctx, key) {
		base.RateLimited = true
		base.Outcome = limiter.OutcomeRateLimited
		base.Err = apperror.New(apperror.ErrRateLimited, "local request budget exhausted").WithContext("provider", key)
		entry.Debug("local rate budget exhausted")
		c.emit(EventRateLimited, p, info, endpoint, base)
		return base
	}

	if err := c.pacer.Wait(ctx, key); err != nil {
		base.Err = err
		base.Outcome = limiter.OutcomeTransport
		return base
	}

	c.emit(EventAttemptStarted, p, info, endpoint, base)
	start := c.now()
	result := c.do(ctx, endpoint, params, p, base)
	result.Duration = c.now().Sub(start)

	switch {
	case result.Success:
		if c.breaker != nil {
			c.breaker.RecordSuccess(ctx, key)
		}
		entry.WithField("duration", result.Duration).Debug("provider call succeeded")
		c.emit(EventAttemptSucceeded, p, info, endpoint, result)

	case result.RateLimited:
		entry.WithField("status", result.StatusCode).Debug("provider rate limited")
		c.emit(EventRateLimited, p, info, endpoint, result)

	default:
		// 调用方取消的请求不算提供商的失败
		if ctx.Err() == nil && c.breaker != nil && result.Outcome.CountsAsFailure() {
			c.breaker.RecordFailure(ctx, key)
		}
		fields := logrus.Fields{"status": result.StatusCode, "outcome": result.Outcome.String()}
		if result.Outcome == limiter.OutcomeTransport {
			fields["reason"] = c.classifier.TransportReason(result.Err)
		}
		entry.WithFields(fields).WithError(result.Err).Debug("provider call failed")
		c.emit(EventAttemptFailed, p, info, endpoint, result)
	}

	return result
}

func (c *Client) do(ctx context.Context, endpoint string, params Params, p ProviderConfig, result Result) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildURL(p, endpoint, params), nil)
	if err != nil {
		result.Outcome = limiter.OutcomeClient
		result.Err = apperror.Wrap(apperror.ErrProviderFailed, "create request failed", err)
		return result
	}

	req.Header.Set("X-RapidAPI-Key", p.APIKey)
	req.Header.Set("X-RapidAPI-Host", p.Host)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Outcome = c.classifier.Classify(0, err)
		result.RateLimited = result.Outcome == limiter.OutcomeRateLimited
		result.Err = apperror.Wrap(apperror.ErrProviderFailed, "HTTP request failed", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Outcome = limiter.OutcomeTransport
		result.Err = apperror.Wrap(apperror.ErrProviderFailed, "read response failed", err)
		return result
	}

	result.Outcome = c.classifier.Classify(resp.StatusCode, nil)
	switch result.Outcome {
	case limiter.OutcomeSuccess:
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			result.Outcome = limiter.OutcomeDecode
			result.Err = apperror.Wrap(apperror.ErrProviderFailed, "response is not valid JSON", err)
			return result
		}
		result.Success = true
		result.Data = data

	case limiter.OutcomeRateLimited:
		result.RateLimited = true
		result.Err = apperror.New(apperror.ErrRateLimited, "upstream returned 429").WithContext("provider", result.ProviderKey)

	default:
		result.Err = apperror.New(apperror.ErrProviderFailed, fmt.Sprintf("HTTP status error: %d", resp.StatusCode)).
			WithContext("body", snippet(body))
	}
	return result
}

func (c *Client) emit(t EventType, p ProviderConfig, info CallInfo, endpoint string, r Result) {
	c.observer.OnEvent(Event{
		Type:        t,
		Time:        c.now(),
		ChainID:     info.ChainID,
		Operation:   info.Operation,
		Family:      p.Family,
		Provider:    p.Name,
		ProviderKey: r.ProviderKey,
		Attempt:     info.Attempt,
		Endpoint:    endpoint,
		Outcome:     r.Outcome,
		StatusCode:  r.StatusCode,
		Duration:    r.Duration,
		Err:         r.Err,
	})
}

func (c *Client) onCircuitChange(key string, from, to breaker.Status) {
	e := Event{Type: EventCircuitClosed, Time: c.now(), ProviderKey: key}
	if to == breaker.StatusOpen {
		e.Type = EventCircuitOpened
	}
	if v, ok := c.seen.Load(key); ok {
		p := v.(ProviderConfig)
		e.Family = p.Family
		e.Provider = p.Name
	}
	c.observer.OnEvent(e)
}

func buildURL(p ProviderConfig, endpoint string, params Params) string {
	u := p.BaseURL() + "/" + strings.TrimPrefix(endpoint, "/")
	if q := params.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet]
	}
	return s
}
