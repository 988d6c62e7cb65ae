package telemetry

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/pairsbot/internal/domain"
)

// CycleRecord 每个周期一条。可空字段为 nil 表示该阶段未产出（预热或分布退化）。
type CycleRecord struct {
	Pair      string    `json:"pair"`
	Timestamp time.Time `json:"timestamp"`
	PriceY    float64   `json:"price_y"`
	PriceX    float64   `json:"price_x"`
	BetaRaw   *float64  `json:"beta_raw"`
	Spread    *float64  `json:"spread"`
	Mean      *float64  `json:"mean"`
	StdDev    *float64  `json:"std_dev"`
	ZScore    *float64  `json:"z_score"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	Halted    bool      `json:"halted"`
}

// TransitionRecord 每次状态迁移（所有腿确认后）一条
type TransitionRecord struct {
	Pair       string                `json:"pair"`
	Timestamp  time.Time             `json:"timestamp"`
	Kind       domain.TransitionKind `json:"kind"`
	Side       domain.SpreadSide     `json:"side"`
	ExitReason domain.ExitReason     `json:"exit_reason,omitempty"`
	ZScore     float64               `json:"z_score"`
	Spread     float64               `json:"spread"`
	BetaRaw    float64               `json:"beta_raw"`
	BetaUsed   float64               `json:"beta_used"`
	Inverted   bool                  `json:"inverted"`
	UnitsY     decimal.Decimal       `json:"units_y"`
	UnitsX     decimal.Decimal       `json:"units_x"`
	Legs       []domain.Leg          `json:"legs"`
	OrderIDs   []string              `json:"order_ids,omitempty"`
}

// TransitionFromIntent 由已确认的意图生成迁移记录
func TransitionFromIntent(in *domain.Intent, orderIDs []string) TransitionRecord {
	return TransitionRecord{
		Pair:       in.Pair,
		Timestamp:  in.Timestamp,
		Kind:       in.Kind,
		Side:       in.Side,
		ExitReason: in.ExitReason,
		ZScore:     in.ZScore,
		Spread:     in.Spread,
		BetaRaw:    in.Hedge.BetaRaw,
		BetaUsed:   in.Hedge.BetaUsed,
		Inverted:   in.Hedge.Inverted(),
		UnitsY:     in.UnitsY,
		UnitsX:     in.UnitsX,
		Legs:       in.Legs,
		OrderIDs:   orderIDs,
	}
}
