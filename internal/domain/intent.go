package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransitionKind 状态迁移类型
type TransitionKind string

const (
	TransitionEntry TransitionKind = "entry"
	TransitionExit  TransitionKind = "exit"
)

// ExitReason 平仓触发的边界
type ExitReason string

const (
	ExitNone          ExitReason = ""
	ExitMeanReversion ExitReason = "mean_reversion"
	ExitStopLoss      ExitReason = "stop_loss"
)

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// LegRole 腿在价差公式中的角色
type LegRole string

const (
	LegY LegRole = "Y"
	LegX LegRole = "X"
)

// Leg 一条腿（市价单）
type Leg struct {
	Role       LegRole         `json:"role"`
	Instrument Instrument      `json:"instrument"`
	Side       OrderSide       `json:"side"`
	Size       decimal.Decimal `json:"size"`
}

// Intent 状态机产出的交易意图。所有腿都确认后才能提交状态迁移。
type Intent struct {
	Pair       string          `json:"pair"`
	Kind       TransitionKind  `json:"kind"`
	Side       SpreadSide      `json:"side"`
	ExitReason ExitReason      `json:"exit_reason,omitempty"`
	ZScore     float64         `json:"z_score"`
	Spread     float64         `json:"spread"`
	Hedge      HedgeEstimate   `json:"hedge"`
	UnitsY     decimal.Decimal `json:"units_y"`
	UnitsX     decimal.Decimal `json:"units_x"`
	Legs       []Leg           `json:"legs"`
	Timestamp  time.Time       `json:"timestamp"`
}

// BuildLegs 根据迁移类型与方向生成两条腿（Y' 在前）
func BuildLegs(kind TransitionKind, side SpreadSide, roles RoleAssignment, pair Pair, unitsY, unitsX decimal.Decimal) []Leg {
	y, x := roles.Instruments(pair)
	// 空价差开仓 / 多价差平仓：卖 Y' 买 X'
	ySide, xSide := OrderSideBuy, OrderSideSell
	if (kind == TransitionEntry && side == SideShort) || (kind == TransitionExit && side == SideLong) {
		ySide, xSide = OrderSideSell, OrderSideBuy
	}
	return []Leg{
		{Role: LegY, Instrument: y, Side: ySide, Size: unitsY},
		{Role: LegX, Instrument: x, Side: xSide, Size: unitsX},
	}
}
