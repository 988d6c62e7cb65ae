package position

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/pairsbot/internal/domain"
)

// Sizing 开仓规模参数。资金为注入的固定值，不跟踪实时余额。
type Sizing struct {
	TotalCapital decimal.Decimal // 账户资金
	RiskPerTrade decimal.Decimal // 单笔风险比例 (0,1]
	ScaleFactor  decimal.Decimal // 额外缩减除数（默认 10）
}

// TradeCapital 单笔交易资金 = TotalCapital × RiskPerTrade
func (s Sizing) TradeCapital() decimal.Decimal {
	return s.TotalCapital.Mul(s.RiskPerTrade)
}

// Units 计算两条腿的数量：
// unitsY' = (tradeCapital / (priceY' + beta·priceX')) / ScaleFactor
// unitsX' = unitsY' × beta
func (s Sizing) Units(sample domain.PriceSample, hedge domain.HedgeEstimate) (decimal.Decimal, decimal.Decimal, error) {
	if !s.ScaleFactor.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Wrap(domain.ErrInvalidConfiguration, "sizing scale factor must be > 0")
	}
	y, x := hedge.Roles.Prices(sample)
	beta := decimal.NewFromFloat(hedge.BetaUsed)
	denom := decimal.NewFromFloat(y).Add(beta.Mul(decimal.NewFromFloat(x)))
	if !denom.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Errorf("sizing: non-positive notional per unit %s", denom)
	}
	unitsY := s.TradeCapital().Div(denom).Div(s.ScaleFactor)
	unitsX := unitsY.Mul(beta)
	return unitsY, unitsX, nil
}
