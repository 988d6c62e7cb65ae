package signal

import (
	"math"

	"github.com/betbot/pairsbot/internal/domain"
)

// SpreadTracker 维护价差窗口及其分布。
// 只有当窗口在本次更新之前就已填满时才给出统计量，
// 因此第一次 z-score 出现在第 2*N 个样本（价格窗口 N 个 + 价差窗口 N 个）。
type SpreadTracker struct {
	window *RollingWindow[float64]
	pushed int
}

// NewSpreadTracker 创建价差窗口
func NewSpreadTracker(capacity int) *SpreadTracker {
	return &SpreadTracker{window: NewRollingWindow[float64](capacity)}
}

// Spread 按角色计算 Y' - beta*X'
func Spread(sample domain.PriceSample, hedge domain.HedgeEstimate) float64 {
	y, x := hedge.Roles.Prices(sample)
	return y - hedge.BetaUsed*x
}

// Update 推入新价差
func (t *SpreadTracker) Update(spread float64) {
	t.window.Push(spread)
	t.pushed++
}

// Ready 窗口已稳定（本次更新前已满）
func (t *SpreadTracker) Ready() bool { return t.pushed > t.window.Cap() }

// Stats 返回窗口均值与总体标准差；未就绪时 ok=false
func (t *SpreadTracker) Stats() (domain.SpreadStats, bool) {
	if !t.Ready() {
		return domain.SpreadStats{}, false
	}
	return Describe(t.window.Values()), true
}

// Len 窗口当前长度
func (t *SpreadTracker) Len() int { return t.window.Len() }

// Values 窗口拷贝
func (t *SpreadTracker) Values() []float64 { return t.window.Values() }

// Describe 均值与总体标准差
func Describe(values []float64) domain.SpreadStats {
	n := len(values)
	if n == 0 {
		return domain.SpreadStats{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return domain.SpreadStats{Mean: mean, StdDev: math.Sqrt(ss / float64(n))}
}

// ZScore (spread-mean)/stdDev；标准差为 0 或非有限时无信号
func ZScore(spread float64, stats domain.SpreadStats) (float64, bool) {
	if stats.StdDev == 0 || math.IsNaN(stats.StdDev) || math.IsInf(stats.StdDev, 0) {
		return 0, false
	}
	z := (spread - stats.Mean) / stats.StdDev
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, false
	}
	return z, true
}
