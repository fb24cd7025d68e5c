// Package retry 提供 HTTP 状态码的重试分类与退避决策。
//
// 所有函数都是纯函数，不做任何 I/O，便于单元测试：
//
//	category := retry.Classify(resp.StatusCode)
//	ok, delay := retry.Decide(policy, attempt, resp.StatusCode, resp.Header)
package retry

import (
	"net/http"
	"strconv"
	"time"
)

// StatusNoResponse 连接层失败（DNS、超时、拒绝连接）的哨兵状态码
// 调用层在拿不到 HTTP 响应时上报该值，分类为可重试的服务端错误
const StatusNoResponse = 0

// Category 重试分类
type Category int

const (
	// CategoryUnknown 非标准或无法识别的状态码，默认不重试，避免
	// 在未知故障模式上无限循环
	CategoryUnknown Category = iota
	// CategorySuccess 2xx，无需重试
	CategorySuccess
	// CategoryClientError 4xx（429 除外），请求本身有问题，重试只会
	// 浪费配额并掩盖 bug，永不重试
	CategoryClientError
	// CategoryRateLimit 429，按服务端指示或固定倍率退避后重试
	CategoryRateLimit
	// CategoryServerError 5xx 或连接层失败，指数退避后重试
	CategoryServerError
)

// String 返回分类的可读名称
func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryClientError:
		return "client_error"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Retryable 分类是否允许重试
func (c Category) Retryable() bool {
	return c == CategoryRateLimit || c == CategoryServerError
}

// Classify 将 HTTP 状态码映射为重试分类
func Classify(status int) Category {
	switch {
	case status == StatusNoResponse:
		return CategoryServerError
	case status >= 200 && status < 300:
		return CategorySuccess
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= 400 && status < 500:
		return CategoryClientError
	case status >= 500 && status < 600:
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}

// Policy 退避决策参数
type Policy struct {
	// MaxAttempts 最大尝试次数（含首次），默认 3
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay 退避基准时长，默认 1s
	// 服务端错误按 BaseDelay * 2^(attempt-1) 指数增长；
	// 限流在无 Retry-After 头时使用 BaseDelay * 3。
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
}

// SetDefaults 填充零值字段
func (p *Policy) SetDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
}

// Decide 判断第 attempt 次尝试得到 status 后是否应当重试，以及重试前
// 应等待的时长。attempt 从 1 开始计数。不可重试或尝试次数耗尽时返回
// (false, 0)。
func Decide(policy Policy, attempt int, status int, headers http.Header) (bool, time.Duration) {
	policy.SetDefaults()

	category := Classify(status)
	if !category.Retryable() {
		return false, 0
	}
	if attempt >= policy.MaxAttempts {
		return false, 0
	}

	switch category {
	case CategoryRateLimit:
		return true, ParseRetryAfter(headers, policy.BaseDelay*3)
	default:
		return true, policy.BaseDelay * (1 << (attempt - 1))
	}
}

// ParseRetryAfter 解析 Retry-After 响应头
// 值为纯整数秒时采用；HTTP 日期格式、缺失或无法解析时返回 fallback
func ParseRetryAfter(headers http.Header, fallback time.Duration) time.Duration {
	if headers == nil {
		return fallback
	}
	value := headers.Get("Retry-After")
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
