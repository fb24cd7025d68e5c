package breaker

import "github.com/ceyewan/aegis/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrStoreNil 状态存储为空
	ErrStoreNil = xerrors.New("breaker: store is nil")

	// ErrLockerNil 锁管理器为空
	ErrLockerNil = xerrors.New("breaker: locker is nil")

	// ErrEndpointEmpty 端点标识为空
	ErrEndpointEmpty = xerrors.New("breaker: endpoint is empty")

	// ErrInvalidPolicy 未知的锁超时策略
	ErrInvalidPolicy = xerrors.New("breaker: invalid lock timeout policy")

	// ErrLockTimeout 获取端点锁超时（仅 Abort 策略下返回）
	ErrLockTimeout = xerrors.New("breaker: lock acquisition timed out")
)
