package execution

import (
	"fmt"
	"strings"

	"github.com/betbot/pairsbot/internal/domain"
)

// LegResult 单腿执行结果
type LegResult struct {
	Leg   domain.Leg
	Order Order
	Ack   *Ack
	Err   error
}

// Acked 该腿是否已确认
func (r LegResult) Acked() bool { return r.Err == nil && r.Ack != nil }

// PartialExecutionError 部分腿确认、部分腿失败：真实敞口已与内部持仓不一致。
// errors.Is(err, domain.ErrPartialExecution) 为 true。
type PartialExecutionError struct {
	Pair string
	Kind domain.TransitionKind
	Side domain.SpreadSide
	Legs []LegResult
}

func (e *PartialExecutionError) Error() string {
	parts := make([]string, 0, len(e.Legs))
	for _, l := range e.Legs {
		if l.Acked() {
			parts = append(parts, fmt.Sprintf("%s %s %s %s acked(%s)", l.Leg.Role, l.Leg.Side, l.Leg.Size, l.Leg.Instrument.MarketID, l.Ack.OrderID))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s %s %s failed(%v)", l.Leg.Role, l.Leg.Side, l.Leg.Size, l.Leg.Instrument.MarketID, l.Err))
		}
	}
	return fmt.Sprintf("partial execution: pair=%s %s %s: %s", e.Pair, e.Kind, e.Side, strings.Join(parts, "; "))
}

func (e *PartialExecutionError) Unwrap() error { return domain.ErrPartialExecution }

// AckedLegs 已确认的腿（人工对账用）
func (e *PartialExecutionError) AckedLegs() []LegResult {
	var out []LegResult
	for _, l := range e.Legs {
		if l.Acked() {
			out = append(out, l)
		}
	}
	return out
}
