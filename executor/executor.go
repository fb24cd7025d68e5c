// Package executor 把熔断器与重试分类器编排成一个有界的调用循环。
//
// 每次 Execute 流程：先询问熔断器，OPEN 则不发起任何网络请求直接
// 返回 CircuitOpenError（快速失败是熔断器的核心价值）；否则进入
// 尝试循环，按 retry 包的分类决定立即返回、退避重试或终止，并把
// 最终结果上报给熔断器。
//
// 基本使用：
//
//	exec, _ := executor.New(brk, &executor.Config{MaxAttempts: 3})
//	resp, err := exec.Execute(ctx, "ai_api", func(ctx context.Context) (*executor.Response, error) {
//	    httpResp, err := client.Do(req)
//	    if err != nil {
//	        return nil, err // 连接层失败，按可重试的服务端错误处理
//	    }
//	    defer httpResp.Body.Close()
//	    return &executor.Response{Status: httpResp.StatusCode, Header: httpResp.Header}, nil
//	})
package executor

import (
	"context"
	"net/http"
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/retry"
	"github.com/ceyewan/aegis/xerrors"
)

// Response 一次调用的结果
// Status 为 HTTP 状态码；连接层失败由 CallFunc 返回 error 表达，
// 执行器会将其映射为 retry.StatusNoResponse
type Response struct {
	Status int
	Header http.Header
}

// CallFunc 被保护的调用原语
// 拿到了 HTTP 响应（无论状态码）返回 *Response；
// 连接层失败（DNS、超时、拒绝）返回 error
type CallFunc func(ctx context.Context) (*Response, error)

// Config 执行器配置
type Config struct {
	// MaxAttempts 最大尝试次数（含首次），默认 3
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay 退避基准时长，默认 1s
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
}

func (c *Config) policy() retry.Policy {
	p := retry.Policy{}
	if c != nil {
		p.MaxAttempts = c.MaxAttempts
		p.BaseDelay = c.BaseDelay
	}
	p.SetDefaults()
	return p
}

// Executor 弹性调用执行器
type Executor interface {
	// Execute 在熔断与重试保护下执行 fn
	// 成功返回最终 Response；失败返回 *CircuitOpenError、
	// *NonRetryableError 或 *RetriesExhaustedError 之一
	Execute(ctx context.Context, endpoint string, fn CallFunc) (*Response, error)

	// RoundTripper 返回包装了熔断与重试的 http.RoundTripper
	RoundTripper(base http.RoundTripper, opts ...TransportOption) http.RoundTripper
}

// New 创建执行器
func New(brk breaker.Breaker, cfg *Config, opts ...Option) (Executor, error) {
	if brk == nil {
		return nil, ErrBreakerNil
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	e := &executorImpl{
		breaker: brk,
		policy:  cfg.policy(),
		logger:  opt.logger,
		sleep:   opt.sleep,
	}
	e.attempts, _ = opt.meter.Histogram(MetricAttempts, "Attempts per call")
	e.rejects, _ = opt.meter.Counter(MetricRejectsTotal, "Calls rejected by open breaker")
	e.calls, _ = opt.meter.Counter(MetricCallsTotal, "Calls by outcome")
	return e, nil
}

type executorImpl struct {
	breaker breaker.Breaker
	policy  retry.Policy
	logger  clog.Logger
	sleep   SleepFunc

	attempts metrics.Histogram
	rejects  metrics.Counter
	calls    metrics.Counter
}

func (e *executorImpl) Execute(ctx context.Context, endpoint string, fn CallFunc) (*Response, error) {
	if endpoint == "" {
		return nil, ErrEndpointEmpty
	}

	open, err := e.breaker.IsOpen(ctx, endpoint)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to query breaker")
	}
	if open {
		if e.rejects != nil {
			e.rejects.Inc(ctx, metrics.L(LabelEndpoint, endpoint))
		}
		e.logger.WarnContext(ctx, "circuit open, failing fast",
			clog.String("endpoint", endpoint))
		return nil, &CircuitOpenError{Endpoint: endpoint}
	}

	var lastStatus int
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		resp, callErr := fn(ctx)

		status := retry.StatusNoResponse
		var headers http.Header
		if callErr == nil && resp != nil {
			status = resp.Status
			headers = resp.Header
		}
		lastStatus = status

		category := retry.Classify(status)
		if category == retry.CategorySuccess {
			if rerr := e.breaker.RecordSuccess(ctx, endpoint); rerr != nil {
				e.logger.WarnContext(ctx, "failed to record success",
					clog.String("endpoint", endpoint), clog.Error(rerr))
			}
			e.report(ctx, endpoint, attempt, metrics.OutcomeSuccess)
			return resp, nil
		}

		if !category.Retryable() {
			if rerr := e.breaker.RecordFailure(ctx, endpoint); rerr != nil {
				e.logger.WarnContext(ctx, "failed to record failure",
					clog.String("endpoint", endpoint), clog.Error(rerr))
			}
			e.report(ctx, endpoint, attempt, metrics.OutcomeError)
			return nil, &NonRetryableError{Endpoint: endpoint, Status: status}
		}

		ok, delay := retry.Decide(e.policy, attempt, status, headers)
		if !ok {
			break
		}

		e.logger.InfoContext(ctx, "retrying after backoff",
			clog.String("endpoint", endpoint),
			clog.Int("attempt", attempt),
			clog.Int("status", status),
			clog.Duration("delay", delay))
		if serr := e.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}

	if rerr := e.breaker.RecordFailure(ctx, endpoint); rerr != nil {
		e.logger.WarnContext(ctx, "failed to record failure",
			clog.String("endpoint", endpoint), clog.Error(rerr))
	}
	e.report(ctx, endpoint, e.policy.MaxAttempts, metrics.OutcomeError)
	return nil, &RetriesExhaustedError{
		Endpoint:   endpoint,
		LastStatus: lastStatus,
		Attempts:   e.policy.MaxAttempts,
	}
}

func (e *executorImpl) report(ctx context.Context, endpoint string, attempts int, outcome string) {
	if e.attempts != nil {
		e.attempts.Record(ctx, float64(attempts), metrics.L(LabelEndpoint, endpoint))
	}
	if e.calls != nil {
		e.calls.Inc(ctx,
			metrics.L(LabelEndpoint, endpoint),
			metrics.L(metrics.LabelOutcome, outcome))
	}
}

// ctxSleep 可中断的退避等待
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
