package executor

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 以连接目标为端点标识，把 gRPC 状态码映射为重试分类后交给执行器
//
// 使用示例:
//
//	conn, _ := grpc.NewClient(
//	    "localhost:9001",
//	    grpc.WithUnaryInterceptor(executor.UnaryClientInterceptor(exec)),
//	)
func UnaryClientInterceptor(exec Executor) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		endpoint := cc.Target()

		var invokeErr error
		_, err := exec.Execute(ctx, endpoint, func(ctx context.Context) (*Response, error) {
			invokeErr = invoker(ctx, method, req, reply, cc, opts...)
			return &Response{Status: httpStatusFromGRPC(invokeErr)}, nil
		})
		if err != nil {
			return err
		}
		return invokeErr
	}
}

// httpStatusFromGRPC 把 gRPC 错误映射为等价的 HTTP 状态码，
// 复用 retry 包的分类语义
func httpStatusFromGRPC(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch status.Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.ResourceExhausted:
		// 限流语义，触发 Retry-After 风格的退避
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Internal, codes.DataLoss:
		return http.StatusInternalServerError
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Canceled:
		return http.StatusBadRequest
	default:
		// Unknown 等其余情况落在标准状态码范围外，分类为未知，不重试
		return 600
	}
}
