package executor

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// SleepFunc 退避等待原语，测试中可替换以避免真实等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
	sleep  SleepFunc
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "executor"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("executor")
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

// WithSleep 替换退避等待实现，默认基于 timer 的可中断等待
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
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
	if o.sleep == nil {
		o.sleep = ctxSleep
	}
}
