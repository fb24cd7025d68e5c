package store

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("store: config is nil")

	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("store: connector is nil")

	// ErrNotFound 记录不存在（或已损坏被视为不存在）
	ErrNotFound = xerrors.New("store: record not found")

	// ErrRecordNil 记录为空
	ErrRecordNil = xerrors.New("store: record is nil")
)
