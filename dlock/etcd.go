package dlock

import (
	"context"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/xerrors"
)

type etcdLocker struct {
	client  *clientv3.Client
	session *concurrency.Session
	cfg     *Config
	logger  clog.Logger
	locks   map[string]*etcdLockEntry
	mu      sync.RWMutex
}

type etcdLockEntry struct {
	mutex      *concurrency.Mutex
	session    *concurrency.Session
	ownSession bool
}

// newEtcd 创建 Etcd Locker 实例
// 默认 session 随 Locker 生命周期存活并自动续期（KeepAlive）
func newEtcd(conn connector.EtcdConnector, cfg *Config, logger clog.Logger) (Locker, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}

	client := conn.GetClient()
	session, err := concurrency.NewSession(client, concurrency.WithTTL(int(cfg.DefaultTTL.Seconds())))
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create etcd session")
	}

	return &etcdLocker{
		client:  client,
		session: session,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*etcdLockEntry),
	}, nil
}

func (l *etcdLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return l.lock(ctx, key, false, opts...)
}

func (l *etcdLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	err := l.lock(ctx, key, true, opts...)
	if err != nil {
		if err == concurrency.ErrLocked {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *etcdLocker) lock(ctx context.Context, key string, try bool, opts ...LockOption) error {
	options := &lockOptions{
		TTL: l.cfg.DefaultTTL,
	}
	for _, opt := range opts {
		opt(options)
	}

	// 覆盖了 TTL 时需要独立的 session
	session := l.session
	ownSession := options.TTL > 0 && options.TTL != l.cfg.DefaultTTL
	if ownSession {
		var err error
		session, err = concurrency.NewSession(l.client, concurrency.WithTTL(int(options.TTL.Seconds())))
		if err != nil {
			return xerrors.Wrap(err, "failed to create etcd session")
		}
	}

	for {
		// 本实例已持有视为锁忙：TryLock 立即返回忙，Lock 轮询等待持有者释放
		l.mu.RLock()
		_, exists := l.locks[key]
		l.mu.RUnlock()
		if exists {
			if try {
				if ownSession {
					_ = session.Close()
				}
				return concurrency.ErrLocked
			}
			select {
			case <-ctx.Done():
				if ownSession {
					_ = session.Close()
				}
				return ctx.Err()
			case <-time.After(l.cfg.RetryInterval):
			}
			continue
		}

		mutex := concurrency.NewMutex(session, l.etcdKey(key))

		var lockErr error
		if try {
			lockErr = mutex.TryLock(ctx)
		} else {
			lockErr = mutex.Lock(ctx)
		}

		if lockErr != nil {
			if ownSession {
				_ = session.Close()
			}
			if lockErr == concurrency.ErrLocked {
				return concurrency.ErrLocked
			}
			return xerrors.Wrap(lockErr, "failed to lock")
		}

		// 同一 session 的两个 mutex 在 etcd 侧共用一个 key，入表前双重检查，
		// 竞争失败则撤销本次获取并重新等待
		l.mu.Lock()
		if _, exists := l.locks[key]; exists {
			l.mu.Unlock()
			_ = mutex.Unlock(ctx)
			if try {
				if ownSession {
					_ = session.Close()
				}
				return concurrency.ErrLocked
			}
			continue
		}
		l.locks[key] = &etcdLockEntry{
			mutex:      mutex,
			session:    session,
			ownSession: ownSession,
		}
		l.mu.Unlock()

		if l.logger != nil {
			l.logger.InfoContext(ctx, "lock acquired", clog.String("key", key))
		}
		return nil
	}
}

func (l *etcdLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	if err := entry.mutex.Unlock(ctx); err != nil {
		return xerrors.Wrap(err, "failed to unlock")
	}

	if entry.ownSession {
		_ = entry.session.Close()
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "lock released", clog.String("key", key))
	}
	return nil
}

func (l *etcdLocker) etcdKey(key string) string {
	return l.cfg.Prefix + key
}

// Close 关闭 Etcd Locker，释放默认 session
func (l *etcdLocker) Close() error {
	if l.session != nil {
		return l.session.Close()
	}
	return nil
}
