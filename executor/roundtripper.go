package executor

import (
	"context"
	"net/http"
)

// KeyFunc 从请求推导端点标识，默认使用 URL 的 Host
type KeyFunc func(req *http.Request) string

// TransportOption RoundTripper 的选项函数
type TransportOption func(*transportOptions)

type transportOptions struct {
	keyFunc KeyFunc
}

// WithKeyFunc 自定义端点标识的推导方式
//
// 使用示例:
//
//	rt := exec.RoundTripper(http.DefaultTransport,
//	    executor.WithKeyFunc(func(req *http.Request) string {
//	        return req.URL.Host + req.URL.Path
//	    }))
func WithKeyFunc(fn KeyFunc) TransportOption {
	return func(o *transportOptions) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// RoundTripper 返回包装了熔断与重试的 http.RoundTripper，
// 普通 http.Client 用户无需改动调用代码即可获得保护：
//
//	client := &http.Client{Transport: exec.RoundTripper(http.DefaultTransport)}
//
// 注意：重试会重新发起请求，带 Body 的请求需要可重放
// （req.GetBody 非空），否则只有首次尝试携带 Body。
func (e *executorImpl) RoundTripper(base http.RoundTripper, opts ...TransportOption) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	opt := transportOptions{
		keyFunc: func(req *http.Request) string { return req.URL.Host },
	}
	for _, o := range opts {
		o(&opt)
	}

	return &resilientTransport{exec: e, base: base, keyFunc: opt.keyFunc}
}

type resilientTransport struct {
	exec    *executorImpl
	base    http.RoundTripper
	keyFunc KeyFunc
}

func (t *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := t.keyFunc(req)

	var httpResp *http.Response
	_, err := t.exec.Execute(req.Context(), endpoint, func(ctx context.Context) (*Response, error) {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			attempt.Body = body
		}

		resp, rerr := t.base.RoundTrip(attempt)
		if rerr != nil {
			return nil, rerr
		}
		// 失败响应可能被重试，先关闭本次 Body 避免连接泄漏
		if resp.StatusCode >= 400 {
			resp.Body.Close()
		}
		httpResp = resp
		return &Response{Status: resp.StatusCode, Header: resp.Header}, nil
	})
	if err != nil {
		return nil, err
	}
	return httpResp, nil
}
