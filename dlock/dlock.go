// Package dlock 提供进程间互斥锁，支持 file、redis、etcd 三种后端。
//
// file 后端利用目录创建的原子性实现互斥，不依赖任何外部服务，
// 适合多个独立进程通过共享文件系统协调的场景；redis/etcd 后端
// 提供真正的分布式互斥。
package dlock

import (
	"github.com/ceyewan/aegis/xerrors"
)

// New 根据配置创建 Locker
//
// file 后端无需连接器；redis 后端需要 WithRedisConnector；
// etcd 后端需要 WithEtcdConnector。
//
// 使用示例:
//
//	locker, _ := dlock.New(&dlock.Config{
//	    Driver: dlock.DriverFile,
//	    Dir:    "/var/lib/aegis/locks",
//	}, dlock.WithLogger(logger))
func New(cfg *Config, opts ...Option) (Locker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	switch cfg.Driver {
	case DriverFile:
		return newFile(cfg, opt.logger, opt.meter)
	case DriverRedis:
		if opt.redisConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis driver requires WithRedisConnector")
		}
		return newRedis(opt.redisConnector, cfg, opt.logger)
	case DriverEtcd:
		if opt.etcdConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "etcd driver requires WithEtcdConnector")
		}
		return newEtcd(opt.etcdConnector, cfg, opt.logger)
	default:
		return nil, xerrors.New("dlock: unsupported driver: " + string(cfg.Driver))
	}
}
