package executor

// Metrics 指标常量定义
const (
	// MetricCallsTotal 调用总数，按结果分组 (Counter)
	MetricCallsTotal = "executor_calls_total"

	// MetricRejectsTotal 被熔断拒绝的调用数 (Counter)
	MetricRejectsTotal = "executor_rejects_total"

	// MetricAttempts 每次调用的尝试次数分布 (Histogram)
	MetricAttempts = "executor_attempts_per_call"

	// LabelEndpoint 端点标签
	LabelEndpoint = "endpoint"

	// LabelMethod gRPC 方法标签
	LabelMethod = "method"
)
