package clog

import (
	"fmt"
	"sync/atomic"
)

// New 创建一个新的 Logger 实例
//
// config - 日志配置，为 nil 时使用默认配置
// opts   - 函数式选项列表，用于命名空间等配置
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	options := applyOptions(opts...)

	return newLogger(config, options)
}

// defaultLogger 进程级默认 Logger，用于未显式注入 Logger 的组件
var defaultLogger atomic.Value // 存储 loggerHolder

// loggerHolder 统一 atomic.Value 的具体类型
type loggerHolder struct {
	logger Logger
}

// Default 返回进程级默认 Logger
//
// 未调用过 SetDefault 时，返回一个 console 格式、info 级别的 Logger。
func Default() Logger {
	if h, ok := defaultLogger.Load().(loggerHolder); ok {
		return h.logger
	}
	l, err := New(NewDefaultConfig())
	if err != nil {
		return Discard()
	}
	defaultLogger.Store(loggerHolder{logger: l})
	return l
}

// SetDefault 设置进程级默认 Logger
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(loggerHolder{logger: l})
	}
}
