package store

import (
	"strings"
	"time"
)

// State 熔断器状态枚举
type State string

const (
	// StateClosed 正常放行
	StateClosed State = "CLOSED"
	// StateOpen 快速失败
	StateOpen State = "OPEN"
	// StateHalfOpen 恢复试探
	StateHalfOpen State = "HALF_OPEN"
)

// Record 单个端点的持久化熔断状态
// 整条记录整体读写，不做字段级 patch；时间戳为 unix 秒，0 表示未设置
type Record struct {
	Endpoint           string `json:"endpoint" msgpack:"endpoint"`
	State              State  `json:"state" msgpack:"state"`
	FailureCount       int    `json:"failure_count" msgpack:"failure_count"`
	SuccessCount       int    `json:"success_count" msgpack:"success_count"`
	FailureThreshold   int    `json:"failure_threshold" msgpack:"failure_threshold"`
	OpenTimeoutSeconds int    `json:"open_timeout_seconds" msgpack:"open_timeout_seconds"`
	OpenTime           int64  `json:"open_time" msgpack:"open_time"`
	HalfOpenTime       int64  `json:"half_open_time" msgpack:"half_open_time"`
}

// NewRecord 返回端点的默认 CLOSED 记录
func NewRecord(endpoint string, failureThreshold, openTimeoutSeconds int) *Record {
	return &Record{
		Endpoint:           endpoint,
		State:              StateClosed,
		FailureThreshold:   failureThreshold,
		OpenTimeoutSeconds: openTimeoutSeconds,
	}
}

// Clone 返回记录的浅拷贝
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// OpenElapsed 返回自进入 OPEN 以来经过的时长；未处于 OPEN 计时则返回 0
func (r *Record) OpenElapsed(now time.Time) time.Duration {
	if r.OpenTime <= 0 {
		return 0
	}
	return now.Sub(time.Unix(r.OpenTime, 0))
}

// HalfOpenElapsed 返回自进入 HALF_OPEN 以来经过的时长
func (r *Record) HalfOpenElapsed(now time.Time) time.Duration {
	if r.HalfOpenTime <= 0 {
		return 0
	}
	return now.Sub(time.Unix(r.HalfOpenTime, 0))
}

// SanitizeEndpoint 将端点标识转为存储安全的 token
// 字母、数字、连字符、下划线、点保留，其余字符替换为下划线
func SanitizeEndpoint(endpoint string) string {
	var b strings.Builder
	b.Grow(len(endpoint))
	for _, r := range endpoint {
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
