package position

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/pairsbot/internal/domain"
)

// Thresholds z-score 边界。多空出场条件不对称，保持原样。
type Thresholds struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

// Validate 要求 0 < TakeProfit < Entry < StopLoss
func (t Thresholds) Validate() error {
	if t.TakeProfit <= 0 {
		return errors.Wrapf(domain.ErrInvalidConfiguration, "take_profit 必须 > 0 (got %v)", t.TakeProfit)
	}
	if t.TakeProfit >= t.Entry {
		return errors.Wrapf(domain.ErrInvalidConfiguration, "take_profit (%v) 必须 < entry (%v)", t.TakeProfit, t.Entry)
	}
	if t.Entry >= t.StopLoss {
		return errors.Wrapf(domain.ErrInvalidConfiguration, "entry (%v) 必须 < stop_loss (%v)", t.Entry, t.StopLoss)
	}
	return nil
}

// Input 一个周期中状态机需要的全部输入（z-score 已可用）
type Input struct {
	Sample domain.PriceSample
	Hedge  domain.HedgeEstimate
	Spread float64
	Z      float64
}

// Decision Evaluate 的结果。Intent 为 nil 表示本周期无迁移。
type Decision struct {
	Intent *domain.Intent
	from   domain.Position
	next   domain.Position
}

// HasIntent 是否需要下单
func (d Decision) HasIntent() bool { return d.Intent != nil }

// Next 下单全部确认后将要进入的持仓
func (d Decision) Next() domain.Position { return d.next }

// ErrStaleDecision Commit 的决策不是基于当前持仓产生的
var ErrStaleDecision = errors.New("stale decision")

// Machine FLAT / LONG_SPREAD / SHORT_SPREAD 状态机。
// Evaluate 不修改状态；只有在所有腿都确认后调用 Commit 才迁移。
type Machine struct {
	pair       domain.Pair
	thresholds Thresholds
	sizing     Sizing
	pos        domain.Position
}

// NewMachine 创建状态机，初始为 FLAT
func NewMachine(pair domain.Pair, thresholds Thresholds, sizing Sizing) *Machine {
	return &Machine{pair: pair, thresholds: thresholds, sizing: sizing, pos: domain.FlatPosition()}
}

// Position 当前持仓（值拷贝）
func (m *Machine) Position() domain.Position { return m.pos }

// Restore 从持久化状态恢复持仓
func (m *Machine) Restore(pos domain.Position) { m.pos = pos }

// Thresholds 返回阈值
func (m *Machine) Thresholds() Thresholds { return m.thresholds }

// Evaluate 根据本周期 z-score 计算决策。每周期至多一次迁移。
func (m *Machine) Evaluate(in Input) (Decision, error) {
	d := Decision{from: m.pos, next: m.pos}
	th := m.thresholds

	if !m.pos.IsOpen() {
		var side domain.SpreadSide
		switch {
		case in.Z > th.Entry:
			side = domain.SideShort
		case in.Z < -th.Entry:
			side = domain.SideLong
		default:
			return d, nil
		}
		unitsY, unitsX, err := m.sizing.Units(in.Sample, in.Hedge)
		if err != nil {
			return d, err
		}
		d.Intent = m.intent(in, domain.TransitionEntry, side, domain.ExitNone, in.Hedge.Roles, unitsY, unitsX)
		d.next = domain.Position{
			Open:        true,
			Side:        side,
			EntryZScore: in.Z,
			UnitsY:      unitsY,
			UnitsX:      unitsX,
			Hedge:       in.Hedge,
			OpenedAt:    in.Sample.Timestamp,
		}
		return d, nil
	}

	reason := exitReason(m.pos.Side, in.Z, th)
	if reason == domain.ExitNone {
		return d, nil
	}
	// 平仓按开仓时冻结的数量与角色反向，避免 beta 翻转后平错腿
	d.Intent = m.intent(in, domain.TransitionExit, m.pos.Side, reason, m.pos.Hedge.Roles, m.pos.UnitsY, m.pos.UnitsX)
	d.next = domain.FlatPosition()
	return d, nil
}

// Commit 在所有腿确认后应用决策
func (m *Machine) Commit(d Decision) error {
	if d.Intent == nil {
		return nil
	}
	if !samePosition(d.from, m.pos) {
		return errors.Wrapf(ErrStaleDecision, "decision from %s, current %s", d.from.Side.State(), m.pos.Side.State())
	}
	m.pos = d.next
	return nil
}

func (m *Machine) intent(in Input, kind domain.TransitionKind, side domain.SpreadSide, reason domain.ExitReason,
	roles domain.RoleAssignment, unitsY, unitsX decimal.Decimal) *domain.Intent {
	return &domain.Intent{
		Pair:       m.pair.Name,
		Kind:       kind,
		Side:       side,
		ExitReason: reason,
		ZScore:     in.Z,
		Spread:     in.Spread,
		Hedge:      in.Hedge,
		UnitsY:     unitsY,
		UnitsX:     unitsX,
		Legs:       domain.BuildLegs(kind, side, roles, m.pair, unitsY, unitsX),
		Timestamp:  in.Sample.Timestamp,
	}
}

func exitReason(side domain.SpreadSide, z float64, th Thresholds) domain.ExitReason {
	switch side {
	case domain.SideShort:
		if z <= th.TakeProfit {
			return domain.ExitMeanReversion
		}
		if z >= th.StopLoss {
			return domain.ExitStopLoss
		}
	case domain.SideLong:
		if z >= -th.TakeProfit {
			return domain.ExitMeanReversion
		}
		if z <= -th.StopLoss {
			return domain.ExitStopLoss
		}
	}
	return domain.ExitNone
}

func samePosition(a, b domain.Position) bool {
	return a.Open == b.Open &&
		a.Side == b.Side &&
		a.UnitsY.Equal(b.UnitsY) &&
		a.UnitsX.Equal(b.UnitsX) &&
		a.OpenedAt.Equal(b.OpenedAt)
}

// Since 持仓时长
func Since(pos domain.Position, now time.Time) time.Duration {
	if !pos.IsOpen() || pos.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(pos.OpenedAt)
}
