package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/domain"
)

var log = logrus.WithField("component", "execution")

// Engine 多腿执行引擎（in-flight 去重 + 并发下单 + 部分成交识别）。
//
// - 所有腿并发 PlaceOrder，减少跨腿时差
// - 同一意图短窗口内只允许提交一次
// - 只有全部腿确认才返回成功；部分确认返回 *PartialExecutionError，由上层熔断
type Engine struct {
	venue    Venue
	inFlight *InFlightDeduper
	now      func() time.Time
}

// Result 全部腿确认后的结果
type Result struct {
	Legs []LegResult
}

// OrderIDs 交易所订单号（按腿顺序）
func (r *Result) OrderIDs() []string {
	ids := make([]string, 0, len(r.Legs))
	for _, l := range r.Legs {
		if l.Ack != nil {
			ids = append(ids, l.Ack.OrderID)
		}
	}
	return ids
}

func NewEngine(venue Venue) *Engine {
	return &Engine{
		venue:    venue,
		inFlight: NewInFlightDeduper(DefaultDedupeTTL),
		now:      time.Now,
	}
}

// Execute 执行一个意图的所有腿。
// 全部确认 -> (*Result, nil)；全部失败 -> 普通错误；部分确认 -> *PartialExecutionError。
func (e *Engine) Execute(ctx context.Context, intent *domain.Intent) (*Result, error) {
	if e == nil || e.venue == nil {
		return nil, errors.New("execution engine not initialized")
	}
	if intent == nil {
		return nil, errors.New("nil intent")
	}
	if len(intent.Legs) < 1 {
		return nil, errors.New("需要至少 1 条腿")
	}
	for i, leg := range intent.Legs {
		if leg.Instrument.MarketID == "" || !leg.Size.IsPositive() {
			return nil, errors.Errorf("invalid leg %d: market=%q size=%s", i, leg.Instrument.MarketID, leg.Size)
		}
	}

	// in-flight gate：同一配对同向迁移去重
	key := IntentKey(intent)
	if err := e.inFlight.TryAcquire(key); err != nil {
		return nil, err
	}

	results := e.placeAllLegs(ctx, intent)

	acked := 0
	var firstErr error
	for _, r := range results {
		if r.Acked() {
			acked++
			continue
		}
		if firstErr == nil {
			firstErr = r.Err
		}
	}

	if acked == 0 {
		e.inFlight.Release(key)
	} else {
		e.inFlight.Settle(key)
	}

	switch {
	case acked == len(results):
		log.Infof("✅ [%s] %s %s 全部 %d 条腿已确认", intent.Pair, intent.Kind, intent.Side, acked)
		return &Result{Legs: results}, nil
	case acked == 0:
		return nil, errors.Wrapf(firstErr, "%s %s: no leg acknowledged", intent.Kind, intent.Side)
	default:
		return nil, &PartialExecutionError{Pair: intent.Pair, Kind: intent.Kind, Side: intent.Side, Legs: results}
	}
}

func (e *Engine) placeAllLegs(ctx context.Context, intent *domain.Intent) []LegResult {
	results := make([]LegResult, len(intent.Legs))

	var wg sync.WaitGroup
	wg.Add(len(intent.Legs))
	for i := range intent.Legs {
		i := i
		leg := intent.Legs[i]
		go func() {
			defer wg.Done()
			order := Order{
				ClientOrderID: uuid.NewString(),
				Pair:          intent.Pair,
				Kind:          intent.Kind,
				Role:          leg.Role,
				MarketID:      leg.Instrument.MarketID,
				Side:          leg.Side,
				Size:          leg.Size,
				CreatedAt:     e.now().UTC(),
			}
			res := LegResult{Leg: leg, Order: order}
			ack, err := e.venue.PlaceOrder(ctx, order)
			if err == nil && ack == nil {
				err = errors.New("venue returned no ack")
			}
			if err != nil {
				log.Warnf("⚠️ [%s] leg %s %s %s %s 下单失败: %v", intent.Pair, leg.Role, leg.Side, leg.Size, leg.Instrument.MarketID, err)
				res.Err = err
			} else {
				res.Ack = ack
			}
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}
