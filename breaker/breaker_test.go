package breaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/store"
	"github.com/ceyewan/aegis/xerrors"
)

// fakeClock 可推进的假时钟，驱动时间相关的状态晋升
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T, cfg *Config) (Breaker, *fakeClock) {
	t.Helper()

	st, err := store.New(&store.Config{Driver: store.DriverMemory})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	clock := newFakeClock()
	brk, err := New(cfg, st, lk, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	t.Cleanup(func() { _ = brk.Close() })
	return brk, clock
}

func mustState(t *testing.T, brk Breaker, endpoint string) State {
	t.Helper()
	state, err := brk.State(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	return state
}

func recordFailures(t *testing.T, brk Breaker, endpoint string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := brk.RecordFailure(context.Background(), endpoint); err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i+1, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, _ := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: t.TempDir()})
	defer lk.Close()

	if _, err := New(nil, st, lk); err != ErrConfigNil {
		t.Fatalf("expected ErrConfigNil, got: %v", err)
	}
	if _, err := New(&Config{}, nil, lk); err != ErrStoreNil {
		t.Fatalf("expected ErrStoreNil, got: %v", err)
	}
	if _, err := New(&Config{}, st, nil); err != ErrLockerNil {
		t.Fatalf("expected ErrLockerNil, got: %v", err)
	}
	if _, err := New(&Config{OnLockTimeout: "bogus"}, st, lk); err != ErrInvalidPolicy {
		t.Fatalf("expected ErrInvalidPolicy, got: %v", err)
	}
}

// TestBreaker_UnknownEndpointIsClosed 从未见过的端点隐式 CLOSED
func TestBreaker_UnknownEndpointIsClosed(t *testing.T) {
	brk, _ := newTestBreaker(t, &Config{})

	if state := mustState(t, brk, "never_seen"); state != StateClosed {
		t.Fatalf("expected CLOSED, got %s", state)
	}
	open, err := brk.IsOpen(context.Background(), "never_seen")
	if err != nil || open {
		t.Fatalf("expected IsOpen=false, got open=%v err=%v", open, err)
	}
}

// TestBreaker_TripsAfterThreshold 恰好 threshold 次连续失败后进入 OPEN
func TestBreaker_TripsAfterThreshold(t *testing.T) {
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 3})

	recordFailures(t, brk, "ai_api", 2)
	if state := mustState(t, brk, "ai_api"); state != StateClosed {
		t.Fatalf("expected CLOSED after 2 failures, got %s", state)
	}

	recordFailures(t, brk, "ai_api", 1)
	if state := mustState(t, brk, "ai_api"); state != StateOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", state)
	}
}

// TestBreaker_SuccessResetsFailureCount 成功清零连续失败计数
func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 3})

	recordFailures(t, brk, "ep", 2)
	if err := brk.RecordSuccess(ctx, "ep"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	// 计数已清零，再失败 2 次仍不熔断
	recordFailures(t, brk, "ep", 2)
	if state := mustState(t, brk, "ep"); state != StateClosed {
		t.Fatalf("expected CLOSED, got %s", state)
	}

	recordFailures(t, brk, "ep", 1)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN, got %s", state)
	}
}

// TestBreaker_LazyPromotion OPEN 超时后无需写入即观测为 HALF_OPEN
func TestBreaker_LazyPromotion(t *testing.T) {
	brk, clock := newTestBreaker(t, &Config{FailureThreshold: 1, OpenTimeout: 60 * time.Second})

	recordFailures(t, brk, "ep", 1)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN, got %s", state)
	}

	clock.Advance(59 * time.Second)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN before timeout, got %s", state)
	}

	clock.Advance(2 * time.Second)
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after timeout, got %s", state)
	}
	// 幂等：重复读取结果一致
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN on repeated read, got %s", state)
	}
}

// TestBreaker_HalfOpenFailureReopens 试探中一次失败立即重新熔断，计时重置
func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	brk, clock := newTestBreaker(t, &Config{FailureThreshold: 1, OpenTimeout: 60 * time.Second})

	recordFailures(t, brk, "ep", 1)
	clock.Advance(61 * time.Second)
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", state)
	}

	if err := brk.RecordFailure(ctx, "ep"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	// open_time 是新的：虽然距首次熔断已超时，但仍观测为 OPEN
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN after half-open failure, got %s", state)
	}

	clock.Advance(61 * time.Second)
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after second timeout, got %s", state)
	}
}

// TestBreaker_HalfOpenCloses 连续成功达到阈值后关闭，计数器清零
func TestBreaker_HalfOpenCloses(t *testing.T) {
	ctx := context.Background()
	brk, clock := newTestBreaker(t, &Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		SuccessThreshold: 2,
	})

	recordFailures(t, brk, "ep", 1)
	clock.Advance(2 * time.Second)

	if err := brk.RecordSuccess(ctx, "ep"); err != nil {
		t.Fatalf("first RecordSuccess failed: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after first success, got %s", state)
	}

	if err := brk.RecordSuccess(ctx, "ep"); err != nil {
		t.Fatalf("second RecordSuccess failed: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateClosed {
		t.Fatalf("expected CLOSED after second success, got %s", state)
	}

	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureCount != 0 || stats.SuccessCount != 0 {
		t.Fatalf("expected zeroed counters, got %+v", stats)
	}
}

// TestBreaker_PromotionCountsAsFirstProbe 晋升当次的成功计为第一个试探结果
// success_threshold=1 时恰好在晋升时发生的一次成功即可关闭
func TestBreaker_PromotionCountsAsFirstProbe(t *testing.T) {
	ctx := context.Background()
	brk, clock := newTestBreaker(t, &Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		SuccessThreshold: 1,
	})

	recordFailures(t, brk, "ep", 1)
	clock.Advance(2 * time.Second)

	if err := brk.RecordSuccess(ctx, "ep"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateClosed {
		t.Fatalf("expected CLOSED in one call, got %s", state)
	}
}

// TestBreaker_ProbationReopens 试探期内无任何调用完成则观测回 OPEN
func TestBreaker_ProbationReopens(t *testing.T) {
	ctx := context.Background()
	brk, clock := newTestBreaker(t, &Config{
		FailureThreshold:  1,
		OpenTimeout:       time.Second,
		HalfOpenProbation: 30 * time.Second,
		SuccessThreshold:  2,
	})

	recordFailures(t, brk, "ep", 1)
	clock.Advance(2 * time.Second)

	// 一次成功把持久化状态落为 HALF_OPEN
	if err := brk.RecordSuccess(ctx, "ep"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", state)
	}

	clock.Advance(31 * time.Second)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN after stuck probation, got %s", state)
	}
}

// TestBreaker_FailureCountFrozenWhileOpen 硬 OPEN 下失败计数冻结
func TestBreaker_FailureCountFrozenWhileOpen(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 2, OpenTimeout: 60 * time.Second})

	recordFailures(t, brk, "ep", 2)
	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	frozen := stats.FailureCount

	recordFailures(t, brk, "ep", 3)
	stats, err = brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureCount != frozen {
		t.Fatalf("expected frozen failure count %d, got %d", frozen, stats.FailureCount)
	}
	if stats.State != StateOpen {
		t.Fatalf("expected OPEN, got %s", stats.State)
	}
}

// TestBreaker_InitIdempotent 重复初始化 no-op，首次阈值生效
func TestBreaker_InitIdempotent(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 5})

	if err := brk.Init(ctx, "ep", WithFailureThreshold(2)); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	if err := brk.Init(ctx, "ep", WithFailureThreshold(9)); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureThreshold != 2 {
		t.Fatalf("expected first threshold 2 to win, got %d", stats.FailureThreshold)
	}

	// 端点级阈值覆盖全局默认值
	recordFailures(t, brk, "ep", 2)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN at per-endpoint threshold, got %s", state)
	}
}

// TestBreaker_Reset 强制回到 CLOSED，保留阈值
func TestBreaker_Reset(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 1})

	if err := brk.Init(ctx, "ep", WithFailureThreshold(7)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	recordFailures(t, brk, "ep", 7)
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN, got %s", state)
	}

	if err := brk.Reset(ctx, "ep"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", state)
	}

	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureThreshold != 7 {
		t.Fatalf("expected threshold preserved across reset, got %d", stats.FailureThreshold)
	}
}

// TestBreaker_EndpointsIndependent 不同端点完全独立
func TestBreaker_EndpointsIndependent(t *testing.T) {
	brk, _ := newTestBreaker(t, &Config{FailureThreshold: 1})

	recordFailures(t, brk, "ai_api", 1)
	if state := mustState(t, brk, "ai_api"); state != StateOpen {
		t.Fatalf("expected ai_api OPEN, got %s", state)
	}
	if state := mustState(t, brk, "gh_api"); state != StateClosed {
		t.Fatalf("expected gh_api CLOSED, got %s", state)
	}
}

// TestBreaker_SharedStore 两个实例共享存储时看到同一份状态
func TestBreaker_SharedStore(t *testing.T) {
	ctx := context.Background()

	stateDir := t.TempDir()
	lockDir := t.TempDir()

	newInstance := func() Breaker {
		st, err := store.New(&store.Config{Driver: store.DriverFile, RootDir: stateDir})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir})
		if err != nil {
			t.Fatalf("failed to create locker: %v", err)
		}
		brk, err := New(&Config{FailureThreshold: 2}, st, lk)
		if err != nil {
			t.Fatalf("failed to create breaker: %v", err)
		}
		return brk
	}

	brk1 := newInstance()
	defer brk1.Close()
	brk2 := newInstance()
	defer brk2.Close()

	if err := brk1.RecordFailure(ctx, "shared"); err != nil {
		t.Fatalf("brk1 RecordFailure failed: %v", err)
	}
	if err := brk2.RecordFailure(ctx, "shared"); err != nil {
		t.Fatalf("brk2 RecordFailure failed: %v", err)
	}

	// 两次失败分别来自两个实例，合计达到阈值
	if state := mustState(t, brk1, "shared"); state != StateOpen {
		t.Fatalf("expected OPEN visible to brk1, got %s", state)
	}
	if state := mustState(t, brk2, "shared"); state != StateOpen {
		t.Fatalf("expected OPEN visible to brk2, got %s", state)
	}
}

// TestBreaker_LockTimeoutAbort Abort 策略下锁超时返回 ErrLockTimeout
func TestBreaker_LockTimeoutAbort(t *testing.T) {
	ctx := context.Background()

	lockDir := t.TempDir()
	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir, RetryInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	brk, err := New(&Config{
		LockTimeout:   200 * time.Millisecond,
		OnLockTimeout: Abort,
	}, st, lk)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	defer brk.Close()

	// 另一个 locker 先占住端点锁
	holder, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir})
	if err != nil {
		t.Fatalf("failed to create holder locker: %v", err)
	}
	defer holder.Close()
	if err := holder.Lock(ctx, "breaker:ep"); err != nil {
		t.Fatalf("holder Lock failed: %v", err)
	}

	err = brk.RecordFailure(ctx, "ep")
	if !xerrors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got: %v", err)
	}

	_ = holder.Unlock(ctx, "breaker:ep")
}

// TestBreaker_LockTimeoutProceed 默认策略下锁超时继续写入
func TestBreaker_LockTimeoutProceed(t *testing.T) {
	ctx := context.Background()

	lockDir := t.TempDir()
	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir, RetryInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	brk, err := New(&Config{
		FailureThreshold: 1,
		LockTimeout:      200 * time.Millisecond,
	}, st, lk)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	defer brk.Close()

	holder, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir})
	if err != nil {
		t.Fatalf("failed to create holder locker: %v", err)
	}
	defer holder.Close()
	if err := holder.Lock(ctx, "breaker:ep"); err != nil {
		t.Fatalf("holder Lock failed: %v", err)
	}

	// 无保护写入仍然生效
	if err := brk.RecordFailure(ctx, "ep"); err != nil {
		t.Fatalf("expected unprotected write to succeed, got: %v", err)
	}
	if state := mustState(t, brk, "ep"); state != StateOpen {
		t.Fatalf("expected OPEN, got %s", state)
	}

	_ = holder.Unlock(ctx, "breaker:ep")
}

// TestBreaker_ConcurrentRecordFailure 共享同一个 Breaker 的多个 goroutine
// 在同一端点上并发写入，必须被端点锁串行化，不丢失任何一次计数
func TestBreaker_ConcurrentRecordFailure(t *testing.T) {
	ctx := context.Background()

	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: t.TempDir(), RetryInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	brk, err := New(&Config{FailureThreshold: 100}, st, lk)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	defer brk.Close()

	const writers = 4
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := brk.RecordFailure(ctx, "ep"); err != nil {
				t.Errorf("concurrent RecordFailure failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureCount != writers {
		t.Fatalf("expected failure count %d, got %d", writers, stats.FailureCount)
	}
}

// TestBreaker_ConcurrentInitIdempotent 并发 Init 同一端点只生效一次
func TestBreaker_ConcurrentInitIdempotent(t *testing.T) {
	ctx := context.Background()

	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: t.TempDir(), RetryInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	brk, err := New(&Config{}, st, lk)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	defer brk.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := brk.Init(ctx, "ep", WithFailureThreshold(3)); err != nil {
				t.Errorf("concurrent Init failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := brk.Stats(ctx, "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.State != StateClosed {
		t.Fatalf("expected CLOSED after init, got %s", stats.State)
	}
	if stats.FailureThreshold != 3 {
		t.Fatalf("expected failure threshold 3, got %d", stats.FailureThreshold)
	}
}

// TestBreaker_CallerDeadlineIsNotLockTimeout 调用方自己的 deadline 到期
// 不能被当成等锁超时进入无保护写入分支
func TestBreaker_CallerDeadlineIsNotLockTimeout(t *testing.T) {
	lockDir := t.TempDir()
	st, _ := store.New(&store.Config{Driver: store.DriverMemory})
	lk, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir, RetryInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create locker: %v", err)
	}

	brk, err := New(&Config{LockTimeout: 5 * time.Second}, st, lk)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	defer brk.Close()

	holder, err := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir})
	if err != nil {
		t.Fatalf("failed to create holder locker: %v", err)
	}
	defer holder.Close()
	if err := holder.Lock(context.Background(), "breaker:ep"); err != nil {
		t.Fatalf("holder Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = brk.RecordFailure(ctx, "ep")
	if err == nil {
		t.Fatal("expected error when caller deadline expires while waiting for the lock")
	}
	if xerrors.Is(err, ErrLockTimeout) {
		t.Fatalf("caller deadline must not surface as lock timeout: %v", err)
	}
	if !xerrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline error, got: %v", err)
	}

	// 写入没有发生
	stats, err := brk.Stats(context.Background(), "ep")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FailureCount != 0 {
		t.Fatalf("expected no write under expired caller ctx, got failure count %d", stats.FailureCount)
	}

	_ = holder.Unlock(context.Background(), "breaker:ep")
}

// TestBreaker_EmptyEndpoint 空端点标识报错
func TestBreaker_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	brk, _ := newTestBreaker(t, &Config{})

	if err := brk.RecordFailure(ctx, ""); err != ErrEndpointEmpty {
		t.Fatalf("expected ErrEndpointEmpty, got: %v", err)
	}
	if err := brk.RecordSuccess(ctx, ""); err != ErrEndpointEmpty {
		t.Fatalf("expected ErrEndpointEmpty, got: %v", err)
	}
	if err := brk.Init(ctx, ""); err != ErrEndpointEmpty {
		t.Fatalf("expected ErrEndpointEmpty, got: %v", err)
	}
}
