// Package breaker 提供按端点隔离的持久化熔断器。
//
// 典型部署是反复启动退出的独立自动化进程，因此熔断状态不驻留内存，
// 而是通过 store 落盘、通过 dlock 串行化写入，多个进程共享同一份
// 端点健康视图。状态机为经典三态：
//
//	CLOSED    正常放行，连续失败达到阈值后进入 OPEN
//	OPEN      快速失败，超时后观测为 HALF_OPEN
//	HALF_OPEN 试探恢复，一次失败立即回到 OPEN，连续成功达到阈值后关闭
//
// OPEN→HALF_OPEN 的晋升在读取时惰性计算，不依赖后台定时器；
// 对称地，超过试探期仍未有任何调用完成的 HALF_OPEN 观测为 OPEN。
//
// 基本使用：
//
//	st, _ := store.New(&store.Config{Driver: store.DriverFile, RootDir: dir})
//	lk, _ := dlock.New(&dlock.Config{Driver: dlock.DriverFile, Dir: lockDir})
//	brk, _ := breaker.New(&breaker.Config{FailureThreshold: 5}, st, lk,
//	    breaker.WithLogger(logger))
//
//	if open, _ := brk.IsOpen(ctx, "ai_api"); open {
//	    // 快速失败
//	}
//	brk.RecordFailure(ctx, "ai_api")
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/store"
)

// State 熔断器状态，与持久化记录共用同一组值
type State = store.State

const (
	StateClosed   = store.StateClosed
	StateOpen     = store.StateOpen
	StateHalfOpen = store.StateHalfOpen
)

// LockTimeoutPolicy 锁获取超时后的处理策略
type LockTimeoutPolicy string

const (
	// ProceedUnprotected 记录警告日志后放弃互斥继续写入
	// 有丢失更新的风险，换取单个慢进程不阻塞整体的可用性
	ProceedUnprotected LockTimeoutPolicy = "proceed"
	// Abort 返回 ErrLockTimeout，放弃本次写入
	Abort LockTimeoutPolicy = "abort"
)

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败多少次后进入 OPEN（默认：5）
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// OpenTimeout OPEN 状态持续时间（默认：60s）
	// 超时后观测为 HALF_OPEN，允许试探流量
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout" mapstructure:"open_timeout"`

	// HalfOpenProbation HALF_OPEN 试探窗口（默认：30s）
	// 窗口内没有任何调用完成则观测回 OPEN，防止试探状态卡死
	HalfOpenProbation time.Duration `json:"half_open_probation" yaml:"half_open_probation" mapstructure:"half_open_probation"`

	// SuccessThreshold HALF_OPEN 下连续成功多少次后关闭（默认：2）
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`

	// LockTimeout 写操作获取端点锁的等待上限（默认：5s）
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout" mapstructure:"lock_timeout"`

	// OnLockTimeout 锁超时策略 (proceed | abort)，默认 proceed
	OnLockTimeout LockTimeoutPolicy `json:"on_lock_timeout" yaml:"on_lock_timeout" mapstructure:"on_lock_timeout"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 60 * time.Second
	}
	if c.HalfOpenProbation <= 0 {
		c.HalfOpenProbation = 30 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.OnLockTimeout == "" {
		c.OnLockTimeout = ProceedUnprotected
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	switch c.OnLockTimeout {
	case ProceedUnprotected, Abort:
		return nil
	default:
		return ErrInvalidPolicy
	}
}

// Stats 端点熔断器的诊断快照
type Stats struct {
	Endpoint           string        `json:"endpoint"`
	State              State         `json:"state"`
	FailureCount       int           `json:"failure_count"`
	SuccessCount       int           `json:"success_count"`
	FailureThreshold   int           `json:"failure_threshold"`
	OpenTimeoutSeconds int           `json:"open_timeout_seconds"`
	TimeInState        time.Duration `json:"time_in_state"`
}

// Breaker 熔断器核心接口
//
// 写操作（RecordSuccess/RecordFailure/Reset/Init）在端点锁内执行
// 读-改-写；读操作（State/IsOpen/Stats）无锁，可能与并发写竞争，
// 但由于记录整体原子替换，只会看到旧值或新值。
type Breaker interface {
	// Init 为端点创建初始 CLOSED 记录，已存在时为 no-op（幂等）
	// 阈值以首次初始化为准，后续调用不覆盖
	Init(ctx context.Context, endpoint string, opts ...InitOption) error

	// State 返回端点的观测状态（含惰性晋升，不修改持久化记录）
	State(ctx context.Context, endpoint string) (State, error)

	// IsOpen 观测状态是否为 OPEN
	IsOpen(ctx context.Context, endpoint string) (bool, error)

	// RecordSuccess 记录一次成功调用
	RecordSuccess(ctx context.Context, endpoint string) error

	// RecordFailure 记录一次失败调用
	RecordFailure(ctx context.Context, endpoint string) error

	// Reset 强制回到 CLOSED，清零计数器和时间戳，保留配置阈值
	Reset(ctx context.Context, endpoint string) error

	// Stats 返回端点的诊断快照
	Stats(ctx context.Context, endpoint string) (*Stats, error)

	// Close 关闭熔断器，释放锁资源
	Close() error
}

// New 创建持久化熔断器
//
// st 与 lk 为必填依赖：st 保存状态记录，lk 串行化同一端点的写入。
// 不同端点完全独立，互不加锁。
func New(cfg *Config, st store.Store, lk dlock.Locker, opts ...Option) (Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStoreNil
	}
	if lk == nil {
		return nil, ErrLockerNil
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	return newDurable(cfg, st, lk, &opt), nil
}
