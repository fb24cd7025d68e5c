package store

import (
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
)

// Option Store 组件初始化选项函数
type Option func(*options)

// options 选项结构（内部使用，小写）
type options struct {
	logger         clog.Logger
	redisConnector connector.RedisConnector
}

// WithLogger 注入日志记录器
// 组件会自动添加 component=store 字段
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("store")
		}
	}
}

// WithRedisConnector 注入 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}
