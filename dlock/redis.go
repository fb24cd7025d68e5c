package dlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/xerrors"
)

// releaseScript 只有 token 匹配的持有者才能删除锁
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// renewScript 只有 token 匹配的持有者才能续期
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

type redisLocker struct {
	client *redis.Client
	cfg    *Config
	logger clog.Logger
	locks  map[string]*redisLockEntry
	mu     sync.Mutex
}

type redisLockEntry struct {
	key        string
	token      string
	expiration time.Duration
	renewStop  chan struct{}
	renewDone  chan struct{}
}

// newRedis 创建 Redis Locker 实例
func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger) (Locker, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}

	return &redisLocker{
		client: conn.GetClient(),
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]*redisLockEntry),
	}, nil
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	for {
		entry, err := l.acquire(ctx, key, opts...)
		if err != nil {
			return err
		}
		if entry != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	entry, err := l.acquire(ctx, key, opts...)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	// 停止续约
	close(entry.renewStop)
	<-entry.renewDone

	result, err := l.client.Eval(ctx, releaseScript, []string{l.redisKey(key)}, entry.token).Result()
	if err != nil {
		return xerrors.Wrap(err, "failed to release lock")
	}
	if result.(int64) == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "lock released", clog.String("key", key))
	}
	return nil
}

// acquire 执行一次 SetNX 尝试；成功返回 entry，锁被占用返回 nil, nil
func (l *redisLocker) acquire(ctx context.Context, key string, opts ...LockOption) (*redisLockEntry, error) {
	options := &lockOptions{
		TTL: l.cfg.DefaultTTL,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.TTL <= 0 {
		options.TTL = 10 * time.Second
	}

	// 本实例已持有视为锁忙，让 Lock 轮询等待持有者释放
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		return nil, nil
	}
	l.mu.Unlock()

	token := uuid.New().String()
	redisKey := l.redisKey(key)

	success, err := l.client.SetNX(ctx, redisKey, token, options.TTL).Result()
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to acquire lock")
	}
	if !success {
		return nil, nil
	}

	// 获取 Redis 锁成功后再次检查本地状态，双重检查避免竞态
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		_, _ = l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Result()
		return nil, nil
	}

	entry := &redisLockEntry{
		key:        key,
		token:      token,
		expiration: options.TTL,
		renewStop:  make(chan struct{}),
		renewDone:  make(chan struct{}),
	}
	l.locks[key] = entry
	l.mu.Unlock()

	go l.watchdog(entry, redisKey)

	if l.logger != nil {
		l.logger.InfoContext(ctx, "lock acquired", clog.String("key", key))
	}
	return entry, nil
}

// watchdog 以 TTL/3 的间隔自动续期，直到锁被释放或所有权丢失
func (l *redisLocker) watchdog(entry *redisLockEntry, redisKey string) {
	defer close(entry.renewDone)

	renewInterval := entry.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.renewStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			res, err := l.client.Eval(ctx, renewScript, []string{redisKey}, entry.token, entry.expiration.Milliseconds()).Result()
			cancel()

			if err != nil {
				if l.logger != nil {
					l.logger.Error("watchdog renew failed", clog.String("key", entry.key), clog.Error(err))
				}
				return
			}
			if res.(int64) == 0 {
				if l.logger != nil {
					l.logger.Warn("watchdog lost ownership", clog.String("key", entry.key))
				}
				return
			}
		}
	}
}

func (l *redisLocker) redisKey(key string) string {
	return l.cfg.Prefix + key
}

// Close 关闭 Redis Locker
// Redis Locker 不拥有底层连接，因此是 no-op
func (l *redisLocker) Close() error {
	return nil
}
