package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/pairsbot/internal/domain"
)

// Order 一条腿对应的市价单
type Order struct {
	ClientOrderID string                `json:"client_order_id"`
	Pair          string                `json:"pair"`
	Kind          domain.TransitionKind `json:"kind"`
	Role          domain.LegRole        `json:"role"`
	MarketID      string                `json:"market"`
	Side          domain.OrderSide      `json:"side"`
	Size          decimal.Decimal       `json:"size"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Ack 交易所确认
type Ack struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Status        string    `json:"status"`
	AckedAt       time.Time `json:"acked_at"`
}

// Venue 下单接口。返回 nil error 即视为该腿已确认。
type Venue interface {
	PlaceOrder(ctx context.Context, order Order) (*Ack, error)
}

// VenueFunc 适配函数为 Venue
type VenueFunc func(ctx context.Context, order Order) (*Ack, error)

func (f VenueFunc) PlaceOrder(ctx context.Context, order Order) (*Ack, error) { return f(ctx, order) }
