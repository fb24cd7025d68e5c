package breaker

import (
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// Clock 返回当前时间，测试中可注入假时钟
type Clock func() time.Time

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标记录器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithClock 注入时钟，默认 time.Now
// 测试中用于在不真实等待的情况下驱动时间相关的状态晋升
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
}

// InitOption Init 操作的选项函数，覆盖该端点的初始阈值
type InitOption func(*initOptions)

type initOptions struct {
	failureThreshold   int
	openTimeoutSeconds int
}

// WithFailureThreshold 设置该端点的失败阈值，仅首次初始化生效
func WithFailureThreshold(n int) InitOption {
	return func(o *initOptions) {
		if n > 0 {
			o.failureThreshold = n
		}
	}
}

// WithOpenTimeout 设置该端点的 OPEN 超时，仅首次初始化生效
func WithOpenTimeout(d time.Duration) InitOption {
	return func(o *initOptions) {
		if d > 0 {
			o.openTimeoutSeconds = int(d.Seconds())
		}
	}
}
