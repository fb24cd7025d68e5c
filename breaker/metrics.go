package breaker

// Metrics 指标常量定义
const (
	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "breaker_state_changes_total"

	// MetricLockTimeouts 端点锁获取超时次数 (Counter)
	MetricLockTimeouts = "breaker_lock_timeouts_total"

	// LabelEndpoint 端点标签
	LabelEndpoint = "endpoint"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"
)
