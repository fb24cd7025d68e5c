package dlock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// fileLocker 基于目录创建原子性的本地文件锁
// mkdir 在同一文件系统上要么成功要么因已存在而失败，两者都是原子的，
// 因此目录标记可以充当跨进程的互斥原语。
type fileLocker struct {
	dir      string
	cfg      *Config
	logger   clog.Logger
	locks    map[string]*fileLockEntry
	mu       sync.Mutex
	acquired metrics.Counter
	released metrics.Counter
}

type fileLockEntry struct {
	token   string
	markDir string
}

// newFile 创建文件锁实例，确保根目录存在
func newFile(cfg *Config, logger clog.Logger, meter metrics.Meter) (Locker, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "aegis-locks")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Wrap(err, "failed to create lock dir")
	}

	acquired, _ := meter.Counter(MetricLockAcquired, "Total locks acquired")
	released, _ := meter.Counter(MetricLockReleased, "Total locks released")

	return &fileLocker{
		dir:      dir,
		cfg:      cfg,
		logger:   logger,
		locks:    make(map[string]*fileLockEntry),
		acquired: acquired,
		released: released,
	}, nil
}

func (l *fileLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryLock(ctx, key, opts...)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *fileLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	options := &lockOptions{
		TTL: l.cfg.DefaultTTL,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.TTL <= 0 {
		options.TTL = 10 * time.Second
	}

	// 本实例已持有视为锁忙，让 Lock 轮询等待持有者释放，
	// 同一进程内共享 Locker 的多个 goroutine 由此串行化
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	markDir := l.markerPath(key)

	if err := os.Mkdir(markDir, 0755); err != nil {
		if !os.IsExist(err) {
			return false, xerrors.Wrap(err, "failed to create lock marker")
		}
		// 标记已存在：持有者崩溃后标记会永久残留，超过 TTL 视为陈旧并接管
		if !l.reclaimStale(markDir, options.TTL) {
			return false, nil
		}
		if err := os.Mkdir(markDir, 0755); err != nil {
			if os.IsExist(err) {
				return false, nil
			}
			return false, xerrors.Wrap(err, "failed to create lock marker")
		}
	}

	token := uuid.New().String()
	if err := os.WriteFile(filepath.Join(markDir, "owner"), []byte(token), 0644); err != nil {
		_ = os.RemoveAll(markDir)
		return false, xerrors.Wrap(err, "failed to write owner token")
	}

	l.mu.Lock()
	l.locks[key] = &fileLockEntry{token: token, markDir: markDir}
	l.mu.Unlock()

	if l.acquired != nil {
		l.acquired.Inc(ctx, metrics.L(LabelBackend, string(DriverFile)))
	}
	if l.logger != nil {
		l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.String("marker", markDir))
	}
	return true, nil
}

func (l *fileLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	delete(l.locks, key)
	l.mu.Unlock()

	if !exists {
		// 释放是幂等的：未持有（或已释放）直接返回
		return nil
	}

	owner, err := os.ReadFile(filepath.Join(entry.markDir, "owner"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Wrap(err, "failed to read owner token")
	}
	if string(owner) != entry.token {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	if err := os.RemoveAll(entry.markDir); err != nil {
		return xerrors.Wrap(err, "failed to remove lock marker")
	}

	if l.released != nil {
		l.released.Inc(ctx, metrics.L(LabelBackend, string(DriverFile)))
	}
	if l.logger != nil {
		l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	}
	return nil
}

// reclaimStale 尝试接管超过 TTL 未更新的陈旧标记，成功返回 true。
// 接管通过 Rename 完成：Rename 是原子的，多个竞争者中最多一个能把标记移走，
// 落败者的 Rename 以 ENOENT 失败，不会误删胜者重建的新标记。
// 移走后复核 mtime，若发现移走的其实是刚重建的新标记则原样放回。
func (l *fileLocker) reclaimStale(markDir string, ttl time.Duration) bool {
	info, err := os.Stat(markDir)
	if err != nil {
		// 标记刚被持有者释放，下一轮重试即可
		return false
	}
	if time.Since(info.ModTime()) < ttl {
		return false
	}

	trash := markDir + ".reclaim-" + uuid.New().String()
	if err := os.Rename(markDir, trash); err != nil {
		return false
	}

	if moved, err := os.Stat(trash); err == nil && time.Since(moved.ModTime()) < ttl {
		// Stat 和 Rename 之间标记被别人接管并重建了，放回去认输
		if err := os.Rename(trash, markDir); err != nil {
			_ = os.RemoveAll(trash)
		}
		return false
	}

	if l.logger != nil {
		l.logger.Warn("reclaiming stale lock marker",
			clog.String("marker", markDir),
			clog.Duration("age", time.Since(info.ModTime())))
	}
	_ = os.RemoveAll(trash)
	return true
}

func (l *fileLocker) markerPath(key string) string {
	return filepath.Join(l.dir, sanitizeKey(key)+".lock")
}

// sanitizeKey 将任意 key 转为文件系统安全的标记名
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Close 关闭文件锁，释放所有本地持有的标记
func (l *fileLocker) Close() error {
	l.mu.Lock()
	entries := l.locks
	l.locks = make(map[string]*fileLockEntry)
	l.mu.Unlock()

	for _, entry := range entries {
		_ = os.RemoveAll(entry.markDir)
	}
	return nil
}
