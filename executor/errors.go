package executor

import (
	"fmt"

	"github.com/ceyewan/aegis/xerrors"
)

// 错误定义
var (
	// ErrBreakerNil 熔断器为空
	ErrBreakerNil = xerrors.New("executor: breaker is nil")

	// ErrEndpointEmpty 端点标识为空
	ErrEndpointEmpty = xerrors.New("executor: endpoint is empty")
)

// CircuitOpenError 熔断器处于 OPEN，调用未发起任何网络请求
type CircuitOpenError struct {
	Endpoint string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("executor: circuit open for endpoint %q, call rejected", e.Endpoint)
}

// NonRetryableError 调用得到不可重试的分类（客户端错误或未知状态码），
// 立即终止，不消耗剩余尝试次数
type NonRetryableError struct {
	Endpoint string
	Status   int
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("executor: non-retryable status %d for endpoint %q", e.Status, e.Endpoint)
}

// RetriesExhaustedError 可重试的失败持续到尝试次数耗尽
type RetriesExhaustedError struct {
	Endpoint   string
	LastStatus int
	Attempts   int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("executor: retries exhausted for endpoint %q after %d attempts, last status %d",
		e.Endpoint, e.Attempts, e.LastStatus)
}

// IsCircuitOpen 判断错误是否为熔断拒绝
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return xerrors.As(err, &target)
}
