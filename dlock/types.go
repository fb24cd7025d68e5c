package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/xerrors"
)

// DriverType 定义支持的后端类型
type DriverType string

const (
	// DriverFile 基于原子 mkdir 的本地文件锁，无需外部服务
	DriverFile DriverType = "file"
	// DriverRedis 基于 SetNX + Lua 的 Redis 锁，带 Watchdog 自动续期
	DriverRedis DriverType = "redis"
	// DriverEtcd 基于 concurrency session 的 Etcd 锁
	DriverEtcd DriverType = "etcd"
)

// Config 组件静态配置
type Config struct {
	// Driver 选择使用的后端 (file | redis | etcd)，默认 file
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 锁 Key 的全局前缀，例如 "aegis:lock:" (redis/etcd)
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Dir 文件锁的根目录 (仅 file 后端)，默认系统临时目录下的 aegis-locks
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// DefaultTTL 默认锁超时时间
	// Redis 会启动 Watchdog 自动续期；Etcd 使用 Session KeepAlive 自动续期；
	// file 后端将超过 TTL 未释放的标记视为陈旧锁并允许接管。
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`

	// RetryInterval 加锁轮询间隔 (仅 Lock 模式有效)，默认 100ms
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval" mapstructure:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.Driver == "" {
		c.Driver = DriverFile
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	switch c.Driver {
	case DriverFile, DriverRedis, DriverEtcd:
		return nil
	default:
		return xerrors.New("dlock: unsupported driver: " + string(c.Driver))
	}
}

// Locker 定义了分布式锁的核心行为
type Locker interface {
	// Lock 阻塞式加锁
	// 成功返回 nil，失败返回错误
	// 如果上下文取消，返回 context.Canceled 或 context.DeadlineExceeded
	//
	// opts 支持的选项:
	//   - WithTTL(duration): 设置锁的超时时间
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞式尝试加锁
	// 成功获取锁返回 true, nil
	// 锁已被占用返回 false, nil（包括被本实例的其他 goroutine 占用）
	// 发生错误返回 false, err
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放锁
	// 只有锁的持有者才能成功释放；file 后端的重复释放是幂等的
	Unlock(ctx context.Context, key string) error

	// Close 关闭 Locker，释放底层资源
	Close() error
}
