package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/pairsbot/internal/domain"
)

// Source 单个标的的价格源。失败或无报价时返回 ErrDataUnavailable（可 errors.Is）。
type Source interface {
	GetPrice(ctx context.Context, id string) (float64, error)
}

// FetchPair 并发获取两条腿的价格。任意一腿失败则整体失败，绝不用旧价或合成价替代。
func FetchPair(ctx context.Context, src Source, pair domain.Pair, now time.Time) (domain.PriceSample, error) {
	var py, px float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := src.GetPrice(gctx, pair.Y.PriceID)
		if err != nil {
			return errors.Wrapf(err, "price %s", pair.Y.PriceID)
		}
		py = p
		return nil
	})
	g.Go(func() error {
		p, err := src.GetPrice(gctx, pair.X.PriceID)
		if err != nil {
			return errors.Wrapf(err, "price %s", pair.X.PriceID)
		}
		px = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.PriceSample{}, err
	}
	return domain.PriceSample{Timestamp: now.UTC(), PriceY: py, PriceX: px}, nil
}

// StaticSource 内存价格源（测试与回放）
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewStaticSource(prices map[string]float64) *StaticSource {
	m := make(map[string]float64, len(prices))
	for k, v := range prices {
		m[k] = v
	}
	return &StaticSource{prices: m}
}

// Set 设置价格
func (s *StaticSource) Set(id string, price float64) {
	s.mu.Lock()
	s.prices[id] = price
	s.mu.Unlock()
}

// Delete 删除价格（模拟无报价）
func (s *StaticSource) Delete(id string) {
	s.mu.Lock()
	delete(s.prices, id)
	s.mu.Unlock()
}

func (s *StaticSource) GetPrice(ctx context.Context, id string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(domain.ErrDataUnavailable, err.Error())
	}
	s.mu.RLock()
	p, ok := s.prices[id]
	s.mu.RUnlock()
	if !ok {
		return 0, errors.Wrapf(domain.ErrDataUnavailable, "no price for %s", id)
	}
	return p, nil
}
