package pairs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/execution"
	"github.com/betbot/pairsbot/internal/position"
	"github.com/betbot/pairsbot/internal/pricefeed"
	"github.com/betbot/pairsbot/internal/risk"
	"github.com/betbot/pairsbot/internal/signal"
	"github.com/betbot/pairsbot/internal/telemetry"
)

var log = logrus.WithField("component", "pairs")

// Executor 下单执行（execution.Engine 实现）
type Executor interface {
	Execute(ctx context.Context, intent *domain.Intent) (*execution.Result, error)
}

// StateStore 持仓与熔断持久化（store.StateStore 实现）
type StateStore interface {
	SavePosition(pair string, pos domain.Position) error
	LoadPosition(pair string) (domain.Position, bool, error)
	SaveHalt(pair string, st risk.HaltState) error
	LoadHalt(pair string) (risk.HaltState, bool, error)
	ClearHalt(pair string) error
}

// Params 单个配对的策略参数
type Params struct {
	Window     int
	Thresholds position.Thresholds
	Sizing     position.Sizing
	Breaker    risk.CircuitBreakerConfig
	// ExecutionTimeout 一次意图全部腿的下单上限，<=0 时使用 DefaultExecutionTimeout
	ExecutionTimeout time.Duration
}

// DefaultExecutionTimeout 下单阶段默认超时
const DefaultExecutionTimeout = 30 * time.Second

// Deps 外部协作者。Store 可为 nil（不持久化）。
type Deps struct {
	Source   pricefeed.Source
	Executor Executor
	Sink     telemetry.Sink
	Store    StateStore
	Now      func() time.Time
}

// Status 对外展示的配对状态快照
type Status struct {
	Pair         string          `json:"pair"`
	State        string          `json:"state"`
	Position     domain.Position `json:"position"`
	Halt         risk.HaltState  `json:"halt"`
	Samples      int             `json:"samples"`
	Window       int             `json:"window"`
	LastSampleAt time.Time       `json:"last_sample_at,omitempty"`
	Stage        signal.Stage    `json:"stage,omitempty"`
	ZScore       *float64        `json:"z_score,omitempty"`
	HeldFor      string          `json:"held_for,omitempty"`
}

// Context 一个配对的全部状态：信号窗口、持仓状态机、断路器。
// 周期由单个 goroutine 串行驱动；Status/Resume 可并发调用。
type Context struct {
	Pair     domain.Pair
	Pipeline *signal.Pipeline
	Machine  *position.Machine
	Breaker  *risk.CircuitBreaker

	deps        Deps
	execTimeout time.Duration

	mu     sync.RWMutex
	status Status
}

// NewContext 创建配对上下文，并从 Store 恢复持仓与熔断状态
func NewContext(pair domain.Pair, params Params, deps Deps) (*Context, error) {
	if params.Window < 2 {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "window %d < 2", params.Window)
	}
	if err := params.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.Multi{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	c := &Context{
		Pair:     pair,
		Pipeline: signal.NewPipeline(params.Window),
		Machine:  position.NewMachine(pair, params.Thresholds, params.Sizing),
		Breaker:  risk.NewCircuitBreaker(params.Breaker),
		deps:     deps,
	}
	c.execTimeout = params.ExecutionTimeout
	if c.execTimeout <= 0 {
		c.execTimeout = DefaultExecutionTimeout
	}

	if deps.Store != nil {
		pos, found, err := deps.Store.LoadPosition(pair.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "load position %s", pair.Name)
		}
		if found {
			c.Machine.Restore(pos)
			if pos.IsOpen() {
				log.Infof("♻️ [%s] 恢复持仓 %s unitsY=%s unitsX=%s", pair.Name, pos.Side.State(), pos.UnitsY, pos.UnitsX)
			}
		}
		halt, found, err := deps.Store.LoadHalt(pair.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "load halt %s", pair.Name)
		}
		if found && halt.Halted {
			c.Breaker.Restore(halt)
			log.Warnf("⛔ [%s] 交易仍处于熔断状态: %s（需要人工 resume）", pair.Name, halt.Reason)
		}
	}
	c.publish(nil)
	return c, nil
}

// Status 状态快照
func (c *Context) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Resume 人工对账后解除熔断
func (c *Context) Resume() error {
	c.Breaker.Resume()
	if c.deps.Store != nil {
		if err := c.deps.Store.ClearHalt(c.Pair.Name); err != nil {
			return errors.Wrapf(err, "clear halt %s", c.Pair.Name)
		}
	}
	log.Infof("▶️ [%s] 已解除熔断", c.Pair.Name)
	c.mu.Lock()
	c.status.Halt = c.Breaker.State()
	c.mu.Unlock()
	return nil
}

func (c *Context) publish(obs *signal.Observation) {
	pos := c.Machine.Position()
	st := Status{
		Pair:         c.Pair.Name,
		State:        pos.Side.State(),
		Position:     pos,
		Halt:         c.Breaker.State(),
		Samples:      c.Pipeline.SampleCount(),
		Window:       c.Pipeline.Window(),
		LastSampleAt: c.Pipeline.LastSampleAt(),
	}
	if held := position.Since(pos, c.deps.Now()); held > 0 {
		st.HeldFor = held.Truncate(time.Second).String()
	}
	if obs != nil {
		st.Stage = obs.Stage
		st.ZScore = obs.ZScore
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
