package executor

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/store"
)

// fakeClock 可推进的假时钟
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sleepRecorder 记录退避时长而不真实等待
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

// countingBreaker 包装真实熔断器并统计上报次数
type countingBreaker struct {
	breaker.Breaker
	successes int
	failures  int
}

func (c *countingBreaker) RecordSuccess(ctx context.Context, endpoint string) error {
	c.successes++
	return c.Breaker.RecordSuccess(ctx, endpoint)
}

func (c *countingBreaker) RecordFailure(ctx context.Context, endpoint string) error {
	c.failures++
	return c.Breaker.RecordFailure(ctx, endpoint)
}

func newTestBreaker(t *testing.T, cfg *breaker.Config) (breaker.Breaker, *fakeClock) {
	t.Helper()

	st, err := store.New(&store.Config{Driver: store.DriverMemory})
	require.NoError(t, err)
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: t.TempDir()})
	require.NoError(t, err)

	clock := newFakeClock()
	brk, err := breaker.New(cfg, st, lk, breaker.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = brk.Close() })
	return brk, clock
}

// statusSequence 依次返回给定状态码的调用原语
func statusSequence(statuses ...int) (CallFunc, *int) {
	calls := 0
	return func(ctx context.Context) (*Response, error) {
		status := statuses[calls]
		if calls < len(statuses)-1 {
			calls++
		}
		return &Response{Status: status}, nil
	}, &calls
}

func TestNew_BreakerNil(t *testing.T) {
	_, err := New(nil, &Config{})
	assert.Equal(t, ErrBreakerNil, err)
}

func TestExecute_EmptyEndpoint(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	exec, err := New(brk, &Config{})
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), "", func(ctx context.Context) (*Response, error) {
		return &Response{Status: 200}, nil
	})
	assert.Equal(t, ErrEndpointEmpty, err)
}

// TestExecute_Success 成功路径返回响应并上报一次成功
func TestExecute_Success(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	counting := &countingBreaker{Breaker: brk}
	exec, err := New(counting, &Config{MaxAttempts: 3})
	require.NoError(t, err)

	resp, err := exec.Execute(context.Background(), "gh_api", func(ctx context.Context) (*Response, error) {
		return &Response{Status: 201}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, 1, counting.successes)
	assert.Equal(t, 0, counting.failures)
}

// TestExecute_NonRetryable 404 立即终止，不消耗剩余尝试
func TestExecute_NonRetryable(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	counting := &countingBreaker{Breaker: brk}
	exec, err := New(counting, &Config{MaxAttempts: 5})
	require.NoError(t, err)

	invocations := 0
	_, err = exec.Execute(context.Background(), "gh_api", func(ctx context.Context) (*Response, error) {
		invocations++
		return &Response{Status: 404}, nil
	})

	var nre *NonRetryableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, 404, nre.Status)
	assert.Equal(t, "gh_api", nre.Endpoint)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, 1, counting.failures)
}

// TestExecute_RetriesExhausted 持续 5xx 耗尽尝试后返回终态错误
func TestExecute_RetriesExhausted(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	counting := &countingBreaker{Breaker: brk}
	recorder := &sleepRecorder{}
	exec, err := New(counting, &Config{MaxAttempts: 3, BaseDelay: time.Second},
		WithSleep(recorder.Sleep))
	require.NoError(t, err)

	fn, _ := statusSequence(503)
	_, err = exec.Execute(context.Background(), "ai_api", fn)

	var ree *RetriesExhaustedError
	require.ErrorAs(t, err, &ree)
	assert.Equal(t, 503, ree.LastStatus)
	assert.Equal(t, 3, ree.Attempts)
	assert.Equal(t, 1, counting.failures)
	// 指数退避：1s, 2s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, recorder.delays)
}

// TestExecute_ConnectionFailure 连接层失败按可重试的服务端错误处理
func TestExecute_ConnectionFailure(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	recorder := &sleepRecorder{}
	exec, err := New(brk, &Config{MaxAttempts: 2, BaseDelay: time.Second},
		WithSleep(recorder.Sleep))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), "ai_api", func(ctx context.Context) (*Response, error) {
		return nil, context.DeadlineExceeded
	})

	var ree *RetriesExhaustedError
	require.ErrorAs(t, err, &ree)
	assert.Equal(t, 0, ree.LastStatus)
	assert.Len(t, recorder.delays, 1)
}

// TestExecute_RateLimitHonorsRetryAfter 429 优先使用 Retry-After 头
func TestExecute_RateLimitHonorsRetryAfter(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	recorder := &sleepRecorder{}
	exec, err := New(brk, &Config{MaxAttempts: 2, BaseDelay: 5 * time.Second},
		WithSleep(recorder.Sleep))
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("Retry-After", "120")

	first := true
	_, err = exec.Execute(context.Background(), "gh_api", func(ctx context.Context) (*Response, error) {
		if first {
			first = false
			return &Response{Status: 429, Header: headers}, nil
		}
		return &Response{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{120 * time.Second}, recorder.delays)
}

// TestExecute_FailsFastAfterTrip 熔断后第四次调用快速失败，零网络尝试
func TestExecute_FailsFastAfterTrip(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &breaker.Config{FailureThreshold: 3})
	exec, err := New(brk, &Config{MaxAttempts: 1})
	require.NoError(t, err)

	fn, _ := statusSequence(500)
	for i := 0; i < 3; i++ {
		_, err := exec.Execute(ctx, "ai_api", fn)
		var ree *RetriesExhaustedError
		require.ErrorAs(t, err, &ree, "call %d", i+1)
	}

	invocations := 0
	_, err = exec.Execute(ctx, "ai_api", func(ctx context.Context) (*Response, error) {
		invocations++
		return &Response{Status: 200}, nil
	})

	var coe *CircuitOpenError
	require.ErrorAs(t, err, &coe)
	assert.Equal(t, "ai_api", coe.Endpoint)
	assert.True(t, IsCircuitOpen(err))
	assert.Zero(t, invocations, "no network attempt may be made while open")
}

// TestExecute_RecoversThroughHalfOpen OPEN 超时后一次成功调用经 HALF_OPEN 直达 CLOSED
func TestExecute_RecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	brk, clock := newTestBreaker(t, &breaker.Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		SuccessThreshold: 1,
	})
	exec, err := New(brk, &Config{MaxAttempts: 1})
	require.NoError(t, err)

	require.NoError(t, brk.RecordFailure(ctx, "gh_api"))
	state, err := brk.State(ctx, "gh_api")
	require.NoError(t, err)
	require.Equal(t, breaker.StateOpen, state)

	clock.Advance(1100 * time.Millisecond)

	resp, err := exec.Execute(ctx, "gh_api", func(ctx context.Context) (*Response, error) {
		return &Response{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	state, err = brk.State(ctx, "gh_api")
	require.NoError(t, err)
	assert.Equal(t, breaker.StateClosed, state)
}

// TestExecute_SucceedsAfterBackoff 500,500,200 序列第三次成功，退避 1s 和 2s，
// 恰好一次成功上报、零次失败上报
func TestExecute_SucceedsAfterBackoff(t *testing.T) {
	brk, _ := newTestBreaker(t, &breaker.Config{})
	counting := &countingBreaker{Breaker: brk}
	recorder := &sleepRecorder{}
	exec, err := New(counting, &Config{MaxAttempts: 3, BaseDelay: time.Second},
		WithSleep(recorder.Sleep))
	require.NoError(t, err)

	fn, _ := statusSequence(500, 500, 200)
	resp, err := exec.Execute(context.Background(), "ai_api", fn)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, recorder.delays)
	assert.Equal(t, 1, counting.successes)
	assert.Equal(t, 0, counting.failures)
}
