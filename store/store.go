// Package store 持久化端点的熔断状态记录。
//
// 独立的自动化进程反复启动退出，熔断状态必须跨进程存活，
// 因此记录落在进程外的存储里，按端点标识寻址，整条原子替换。
//
// 支持三种后端：memory（单进程，测试用）、file（默认，
// 写临时文件再 rename 原子替换）、redis（多机共享）。
package store

import (
	"context"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/store/serializer"
	"github.com/ceyewan/aegis/xerrors"
)

// DriverType 定义支持的后端类型
type DriverType string

const (
	DriverMemory DriverType = "memory"
	DriverFile   DriverType = "file"
	DriverRedis  DriverType = "redis"
)

// Config 组件静态配置
type Config struct {
	// Driver 选择使用的后端 (memory | file | redis)，默认 file
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	// RootDir 文件后端的根目录，默认系统临时目录下的 aegis-state
	RootDir string `json:"root_dir" yaml:"root_dir" mapstructure:"root_dir"`

	// Prefix Redis 后端的 Key 前缀，例如 "aegis:breaker:"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Serializer 序列化方式 (json | msgpack)，默认 json
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.Driver == "" {
		c.Driver = DriverFile
	}
	if c.Serializer == "" {
		c.Serializer = "json"
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()
	switch c.Driver {
	case DriverMemory, DriverFile, DriverRedis:
	default:
		return xerrors.New("store: unsupported driver: " + string(c.Driver))
	}
	if _, err := serializer.New(c.Serializer); err != nil {
		return xerrors.Wrap(err, "store: invalid serializer")
	}
	return nil
}

// Store 定义状态记录的持久化行为
//
// Load 对不存在或损坏的记录返回 ErrNotFound，调用方据此回退到
// 默认 CLOSED 状态；损坏的记录会被大声记录日志，绝不 panic。
// Save 整条原子替换。读写序（单写者）由调用方通过 dlock 保证。
type Store interface {
	// Load 读取端点的状态记录，不存在返回 ErrNotFound
	Load(ctx context.Context, endpoint string) (*Record, error)

	// Save 原子写入端点的完整状态记录
	Save(ctx context.Context, endpoint string, record *Record) error

	// Delete 删除端点的状态记录，不存在时不报错
	Delete(ctx context.Context, endpoint string) error

	// Close 关闭 Store，释放底层资源
	Close() error
}

// New 根据配置创建 Store
//
// memory/file 后端无需连接器；redis 后端需要 WithRedisConnector。
//
// 使用示例:
//
//	st, _ := store.New(&store.Config{
//	    Driver:  store.DriverFile,
//	    RootDir: "/var/lib/aegis/state",
//	}, store.WithLogger(logger))
func New(cfg *Config, opts ...Option) (Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverMemory:
		return newMemory(ser), nil
	case DriverFile:
		return newFile(cfg, ser, opt.logger)
	case DriverRedis:
		if opt.redisConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis driver requires WithRedisConnector")
		}
		return newRedis(opt.redisConnector, cfg, ser, opt.logger)
	default:
		return nil, xerrors.New("store: unsupported driver: " + string(cfg.Driver))
	}
}
