package telemetry

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen 下游连续失败，暂停写入
var ErrCircuitOpen = errors.New("telemetry: sink circuit open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常写入
	BreakerOpen                         // 冷却中，跳过该下游
	BreakerHalfOpen                     // 冷却结束，放行一次试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// circuitBreaker 单个 Sink 的熔断器。只由 Hub.Run 所在 goroutine 驱动，
// 加锁是为了 Snapshot 读取状态
type circuitBreaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	trips    int64

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// allow 是否可以写入；冷却结束后仅放行一次试探
func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state, cb.probing = BreakerHalfOpen, true
		return nil
	case BreakerHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// record 记录一次写入结果，返回状态变化
func (cb *circuitBreaker) record(err error) (from, to BreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from = cb.state
	if err == nil {
		cb.state, cb.failures, cb.probing = BreakerClosed, 0, false
		return from, cb.state
	}
	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
		if cb.state != BreakerOpen {
			cb.trips++
		}
		cb.state, cb.openedAt, cb.probing = BreakerOpen, cb.now(), false
	}
	return from, cb.state
}

// SinkState 下游写入状态
type SinkState struct {
	Circuit  string `json:"circuit"`
	Failures int    `json:"consecutive_failures"`
	Trips    int64  `json:"trips"`
}

func (cb *circuitBreaker) snapshot() SinkState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return SinkState{Circuit: cb.state.String(), Failures: cb.failures, Trips: cb.trips}
}

// guardedSink Sink 与其熔断器
type guardedSink struct {
	Sink
	breaker *circuitBreaker
}
