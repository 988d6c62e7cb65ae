package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperVenue 纸面交易：只记录订单并立即确认（dry run）。
// FailWhen 非 nil 时可对指定订单注入失败，用于演练部分成交。
type PaperVenue struct {
	FailWhen func(order Order) error

	mu     sync.Mutex
	orders []Order
}

func NewPaperVenue() *PaperVenue { return &PaperVenue{} }

func (p *PaperVenue) PlaceOrder(ctx context.Context, order Order) (*Ack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FailWhen != nil {
		if err := p.FailWhen(order); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	log.Infof("📝 [paper] %s %s %s %s size=%s", order.Pair, order.Kind, order.Side, order.MarketID, order.Size)
	return &Ack{
		OrderID:       "paper-" + uuid.NewString(),
		ClientOrderID: order.ClientOrderID,
		Status:        "filled",
		AckedAt:       time.Now().UTC(),
	}, nil
}

// Orders 已确认订单的拷贝
func (p *PaperVenue) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Order(nil), p.orders...)
}
