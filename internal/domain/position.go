package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpreadSide 价差方向
type SpreadSide string

const (
	SideFlat  SpreadSide = ""      // 无持仓
	SideLong  SpreadSide = "long"  // 多价差：买 Y'，卖 X'
	SideShort SpreadSide = "short" // 空价差：卖 Y'，买 X'
)

// State 返回状态机名称（FLAT / LONG_SPREAD / SHORT_SPREAD）
func (s SpreadSide) State() string {
	switch s {
	case SideLong:
		return "LONG_SPREAD"
	case SideShort:
		return "SHORT_SPREAD"
	default:
		return "FLAT"
	}
}

// Position 唯一的跨周期可变状态。
// 开仓时的数量与角色分配被冻结，平仓时按原样反向。
type Position struct {
	Open        bool            `json:"open"`
	Side        SpreadSide      `json:"side,omitempty"`
	EntryZScore float64         `json:"entry_z_score,omitempty"`
	UnitsY      decimal.Decimal `json:"units_y"`
	UnitsX      decimal.Decimal `json:"units_x"`
	Hedge       HedgeEstimate   `json:"hedge"`
	OpenedAt    time.Time       `json:"opened_at,omitempty"`
}

// IsOpen 是否持仓
func (p Position) IsOpen() bool { return p.Open }

// FlatPosition 空仓
func FlatPosition() Position {
	return Position{UnitsY: decimal.Zero, UnitsX: decimal.Zero}
}
