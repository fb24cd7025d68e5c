package breaker

import (
	"time"

	"github.com/ceyewan/aegis/store"
)

// Observe 计算记录在 now 时刻的观测状态，不修改记录本身
//
// 持久化的 OPEN 在 open_timeout 流逝后观测为 HALF_OPEN（惰性晋升，
// 记录本身保持 OPEN 直到下一次写入）；持久化的 HALF_OPEN 在试探期
// probation 内没有任何调用完成则观测回 OPEN，防止没有后续流量时
// 试探状态永久卡住。
func Observe(r *store.Record, probation time.Duration, now time.Time) State {
	if r == nil {
		return StateClosed
	}
	switch r.State {
	case store.StateOpen:
		if openTimeoutElapsed(r, now) {
			return StateHalfOpen
		}
		return StateOpen
	case store.StateHalfOpen:
		if r.HalfOpenTime > 0 && r.HalfOpenElapsed(now) >= probation {
			return StateOpen
		}
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// resolve 在写路径上将观测状态落实到记录里
// 返回值表示本次调用是否刚完成 OPEN→HALF_OPEN 的晋升
func resolve(r *store.Record, probation time.Duration, now time.Time) bool {
	switch r.State {
	case store.StateOpen:
		if openTimeoutElapsed(r, now) {
			enterHalfOpen(r, now)
			return true
		}
	case store.StateHalfOpen:
		if r.HalfOpenTime > 0 && r.HalfOpenElapsed(now) >= probation {
			// 试探期耗尽，重新计时进入 OPEN
			enterOpen(r, now)
		}
	}
	return false
}

func openTimeoutElapsed(r *store.Record, now time.Time) bool {
	if r.OpenTime <= 0 {
		return true
	}
	return r.OpenElapsed(now) >= time.Duration(r.OpenTimeoutSeconds)*time.Second
}

func enterOpen(r *store.Record, now time.Time) {
	r.State = store.StateOpen
	r.OpenTime = now.Unix()
	r.HalfOpenTime = 0
	r.SuccessCount = 0
}

func enterHalfOpen(r *store.Record, now time.Time) {
	r.State = store.StateHalfOpen
	r.HalfOpenTime = now.Unix()
	r.SuccessCount = 0
}

func enterClosed(r *store.Record) {
	r.State = store.StateClosed
	r.FailureCount = 0
	r.SuccessCount = 0
	r.OpenTime = 0
	r.HalfOpenTime = 0
}
