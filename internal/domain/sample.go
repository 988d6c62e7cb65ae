package domain

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Instrument 交易标的：价格源 ID 与交易所市场 ID 分开配置
type Instrument struct {
	PriceID  string `json:"price_id" yaml:"price_id"`   // 价格源中的标识（例如 mint 地址）
	MarketID string `json:"market_id" yaml:"market_id"` // 交易所市场（例如 POPCAT-USD）
}

// Pair 一对配对交易标的。Y/X 为配置时的原始角色，运行中可能被 RoleAssignment 交换。
type Pair struct {
	Name string     `json:"name" yaml:"name"`
	Y    Instrument `json:"y" yaml:"y"`
	X    Instrument `json:"x" yaml:"x"`
}

// PriceSample 一次采样（不可变）
type PriceSample struct {
	Timestamp time.Time
	PriceY    float64
	PriceX    float64
}

// Validate 校验价格必须为正的有限数
func (s PriceSample) Validate() error {
	if !validPrice(s.PriceY) {
		return errors.Wrapf(ErrInvalidSample, "priceY=%v", s.PriceY)
	}
	if !validPrice(s.PriceX) {
		return errors.Wrapf(ErrInvalidSample, "priceX=%v", s.PriceX)
	}
	if s.Timestamp.IsZero() {
		return errors.Wrap(ErrInvalidSample, "timestamp is zero")
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
