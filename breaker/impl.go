package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/store"
	"github.com/ceyewan/aegis/xerrors"
)

// durableBreaker 基于 store + dlock 的持久化熔断器实现
type durableBreaker struct {
	cfg    *Config
	store  store.Store
	locker dlock.Locker
	logger clog.Logger
	clock  Clock

	stateChanges metrics.Counter
	lockTimeouts metrics.Counter
}

func newDurable(cfg *Config, st store.Store, lk dlock.Locker, opt *options) *durableBreaker {
	stateChanges, _ := opt.meter.Counter(MetricStateChanges, "Breaker state transitions")
	lockTimeouts, _ := opt.meter.Counter(MetricLockTimeouts, "Lock acquisition timeouts")

	return &durableBreaker{
		cfg:          cfg,
		store:        st,
		locker:       lk,
		logger:       opt.logger,
		clock:        opt.clock,
		stateChanges: stateChanges,
		lockTimeouts: lockTimeouts,
	}
}

func (b *durableBreaker) Init(ctx context.Context, endpoint string, opts ...InitOption) error {
	if endpoint == "" {
		return ErrEndpointEmpty
	}

	init := initOptions{
		failureThreshold:   b.cfg.FailureThreshold,
		openTimeoutSeconds: int(b.cfg.OpenTimeout.Seconds()),
	}
	for _, o := range opts {
		o(&init)
	}

	return b.withLock(ctx, endpoint, func(ctx context.Context) error {
		if _, err := b.store.Load(ctx, endpoint); err == nil {
			// 已初始化，后续调用 no-op，首次的阈值生效
			return nil
		} else if !xerrors.Is(err, store.ErrNotFound) {
			return err
		}
		return b.store.Save(ctx, endpoint, store.NewRecord(endpoint, init.failureThreshold, init.openTimeoutSeconds))
	})
}

func (b *durableBreaker) State(ctx context.Context, endpoint string) (State, error) {
	record, err := b.load(ctx, endpoint)
	if err != nil {
		return StateClosed, err
	}
	return Observe(record, b.cfg.HalfOpenProbation, b.clock()), nil
}

func (b *durableBreaker) IsOpen(ctx context.Context, endpoint string) (bool, error) {
	state, err := b.State(ctx, endpoint)
	if err != nil {
		return false, err
	}
	return state == StateOpen, nil
}

func (b *durableBreaker) RecordSuccess(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return ErrEndpointEmpty
	}

	return b.withLock(ctx, endpoint, func(ctx context.Context) error {
		record, err := b.load(ctx, endpoint)
		if err != nil {
			return err
		}
		before := record.State

		// 晋升刚发生时 success_count 已被清零，本次成功即是第一个试探结果
		resolve(record, b.cfg.HalfOpenProbation, b.clock())

		switch record.State {
		case store.StateHalfOpen:
			record.SuccessCount++
			if record.SuccessCount >= b.cfg.SuccessThreshold {
				enterClosed(record)
			}
		case store.StateOpen:
			// 硬 OPEN 下成功无法改变状态
		}
		record.FailureCount = 0

		b.observeTransition(ctx, endpoint, before, record.State)
		return b.store.Save(ctx, endpoint, record)
	})
}

func (b *durableBreaker) RecordFailure(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return ErrEndpointEmpty
	}

	return b.withLock(ctx, endpoint, func(ctx context.Context) error {
		record, err := b.load(ctx, endpoint)
		if err != nil {
			return err
		}
		before := record.State
		now := b.clock()

		resolve(record, b.cfg.HalfOpenProbation, now)

		switch record.State {
		case store.StateClosed:
			record.FailureCount++
			if record.FailureCount >= record.FailureThreshold {
				enterOpen(record, now)
			}
		case store.StateHalfOpen:
			// 试探中的任何失败立即重新熔断
			enterOpen(record, now)
		case store.StateOpen:
			// 硬 OPEN 下计数冻结，状态和计时器都不变
		}
		record.SuccessCount = 0

		b.observeTransition(ctx, endpoint, before, record.State)
		return b.store.Save(ctx, endpoint, record)
	})
}

func (b *durableBreaker) Reset(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return ErrEndpointEmpty
	}

	return b.withLock(ctx, endpoint, func(ctx context.Context) error {
		record, err := b.load(ctx, endpoint)
		if err != nil {
			return err
		}
		before := record.State

		enterClosed(record)

		b.observeTransition(ctx, endpoint, before, record.State)
		return b.store.Save(ctx, endpoint, record)
	})
}

func (b *durableBreaker) Stats(ctx context.Context, endpoint string) (*Stats, error) {
	record, err := b.load(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	now := b.clock()
	observed := Observe(record, b.cfg.HalfOpenProbation, now)

	var inState time.Duration
	switch observed {
	case StateOpen:
		inState = record.OpenElapsed(now)
	case StateHalfOpen:
		if record.HalfOpenTime > 0 {
			inState = record.HalfOpenElapsed(now)
		} else {
			// 惰性晋升而来：半开始于 open_time + open_timeout
			inState = record.OpenElapsed(now) - time.Duration(record.OpenTimeoutSeconds)*time.Second
		}
	}

	return &Stats{
		Endpoint:           endpoint,
		State:              observed,
		FailureCount:       record.FailureCount,
		SuccessCount:       record.SuccessCount,
		FailureThreshold:   record.FailureThreshold,
		OpenTimeoutSeconds: record.OpenTimeoutSeconds,
		TimeInState:        inState,
	}, nil
}

func (b *durableBreaker) Close() error {
	return b.locker.Close()
}

// load 读取端点记录，不存在（或损坏）时返回默认 CLOSED 记录
func (b *durableBreaker) load(ctx context.Context, endpoint string) (*store.Record, error) {
	record, err := b.store.Load(ctx, endpoint)
	if err != nil {
		if xerrors.Is(err, store.ErrNotFound) {
			return store.NewRecord(endpoint, b.cfg.FailureThreshold, int(b.cfg.OpenTimeout.Seconds())), nil
		}
		return nil, err
	}
	return record, nil
}

// withLock 在端点锁内执行 fn，按配置策略处理锁超时
func (b *durableBreaker) withLock(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	key := "breaker:" + endpoint

	lockCtx, cancel := context.WithTimeout(ctx, b.cfg.LockTimeout)
	err := b.locker.Lock(lockCtx, key)
	cancel()

	switch {
	case err == nil:
		defer func() {
			if uerr := b.locker.Unlock(ctx, key); uerr != nil {
				b.logger.WarnContext(ctx, "failed to release endpoint lock",
					clog.String("endpoint", endpoint), clog.Error(uerr))
			}
		}()
	case xerrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// 仅当调用方 ctx 仍然存活时才算等锁超时，
		// 调用方自己的 deadline 到期不进入无保护分支
		if b.lockTimeouts != nil {
			b.lockTimeouts.Inc(ctx, metrics.L(LabelEndpoint, endpoint))
		}
		if b.cfg.OnLockTimeout == Abort {
			return xerrors.Wrapf(ErrLockTimeout, "endpoint: %s", endpoint)
		}
		// 放弃互斥继续写入，有丢失更新的风险，必须大声记录
		b.logger.WarnContext(ctx, "lock timeout, proceeding without exclusivity",
			clog.String("endpoint", endpoint),
			clog.Duration("timeout", b.cfg.LockTimeout))
	default:
		return xerrors.Wrap(err, "failed to acquire endpoint lock")
	}

	return fn(ctx)
}

func (b *durableBreaker) observeTransition(ctx context.Context, endpoint string, from, to State) {
	if from == to {
		return
	}
	if b.stateChanges != nil {
		b.stateChanges.Inc(ctx,
			metrics.L(LabelEndpoint, endpoint),
			metrics.L(LabelFromState, string(from)),
			metrics.L(LabelToState, string(to)))
	}
	b.logger.InfoContext(ctx, "breaker state changed",
		clog.String("endpoint", endpoint),
		clog.String("from", string(from)),
		clog.String("to", string(to)))
}
