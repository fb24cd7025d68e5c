package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/store/serializer"
	"github.com/ceyewan/aegis/xerrors"
)

// fileStore 文件后端，每个端点一个记录文件
// 写入采用临时文件 + rename，同一文件系统上 rename 是原子的，
// 并发读者要么看到旧记录要么看到新记录，绝不会看到半截文件。
type fileStore struct {
	root   string
	ser    serializer.Serializer
	logger clog.Logger
}

func newFile(cfg *Config, ser serializer.Serializer, logger clog.Logger) (Store, error) {
	root := cfg.RootDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "aegis-state")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, xerrors.Wrap(err, "failed to create state dir")
	}

	return &fileStore{
		root:   root,
		ser:    ser,
		logger: logger,
	}, nil
}

func (s *fileStore) Load(ctx context.Context, endpoint string) (*Record, error) {
	path := s.recordPath(endpoint)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s", endpoint)
		}
		return nil, xerrors.Wrap(err, "failed to read record")
	}

	var record Record
	if err := s.ser.Unmarshal(data, &record); err != nil {
		// 损坏的记录按不存在处理；丢失 OPEN 状态可能掩盖级联故障，必须大声记录
		s.logger.ErrorContext(ctx, "corrupt state record, treating as not found",
			clog.String("endpoint", endpoint),
			clog.String("path", path),
			clog.Error(err))
		return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s: corrupt record", endpoint)
	}
	return &record, nil
}

func (s *fileStore) Save(ctx context.Context, endpoint string, record *Record) error {
	if record == nil {
		return ErrRecordNil
	}

	data, err := s.ser.Marshal(record)
	if err != nil {
		return xerrors.Wrap(err, "failed to marshal record")
	}

	path := s.recordPath(endpoint)
	tmp, err := os.CreateTemp(s.root, ".tmp-"+SanitizeEndpoint(endpoint)+"-*")
	if err != nil {
		return xerrors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return xerrors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return xerrors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return xerrors.Wrap(err, "failed to replace record")
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, endpoint string) error {
	err := os.Remove(s.recordPath(endpoint))
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Wrap(err, "failed to delete record")
	}
	return nil
}

func (s *fileStore) recordPath(endpoint string) string {
	return filepath.Join(s.root, SanitizeEndpoint(endpoint)+".state")
}

func (s *fileStore) Close() error {
	return nil
}
