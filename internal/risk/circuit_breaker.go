package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续执行失败上限（两腿都未确认的下单失败）。
	MaxConsecutiveErrors int64
}

// HaltState 熔断状态快照（用于持久化与展示）
type HaltState struct {
	Halted   bool      `json:"halted"`
	Reason   string    `json:"reason,omitempty"`
	HaltedAt time.Time `json:"halted_at,omitempty"`
}

// CircuitBreaker 每个配对一个。快路径使用原子变量，熔断原因用互斥锁保护。
// 部分成交（PartialExecution）直接 Halt，必须人工 Resume。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveErrors    atomic.Int64
	maxConsecutiveErrors atomic.Int64

	mu       sync.RWMutex
	reason   string
	haltedAt time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
}

// Halt 熔断并记录原因（人工介入或检测到真实敞口与内部状态不一致）。
func (cb *CircuitBreaker) Halt(reason string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	if !cb.halted.Load() {
		cb.reason = reason
		cb.haltedAt = time.Now().UTC()
	}
	cb.halted.Store(true)
	cb.mu.Unlock()
}

// Restore 从持久化状态恢复
func (cb *CircuitBreaker) Restore(st HaltState) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.halted.Store(st.Halted)
	cb.reason = st.Reason
	cb.haltedAt = st.HaltedAt
	cb.mu.Unlock()
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.halted.Store(false)
	cb.reason = ""
	cb.haltedAt = time.Time{}
	cb.mu.Unlock()
	cb.consecutiveErrors.Store(0)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	// 连续错误熔断
	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.Halt("too many consecutive execution errors")
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnSuccess 在一次执行成功后调用，用于清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 在一次执行失败后调用，用于累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// State 当前熔断状态
func (cb *CircuitBreaker) State() HaltState {
	if cb == nil {
		return HaltState{}
	}
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return HaltState{Halted: cb.halted.Load(), Reason: cb.reason, HaltedAt: cb.haltedAt}
}

// Halted 是否已熔断
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}
