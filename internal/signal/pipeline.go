package signal

import (
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
)

// Stage 本周期信号计算走到的阶段
type Stage string

const (
	StageRaw      Stage = "raw"      // 价格窗口未满，只有原始价格
	StageSpread   Stage = "spread"   // 已有 beta 与价差，价差窗口未稳定
	StageNoSignal Stage = "nosignal" // 分布退化（方差为 0）
	StageScored   Stage = "scored"   // 得到 z-score
)

// Observation 一次采样经过信号管线后的结果。nil 字段表示该阶段未产出。
type Observation struct {
	Sample domain.PriceSample
	Stage  Stage
	Hedge  *domain.HedgeEstimate
	Spread *float64
	Stats  *domain.SpreadStats
	ZScore *float64
	// Reason 没有 z-score 的原因（ErrInsufficientHistory / ErrDegenerateDistribution）
	Reason error
}

// Scored 是否得到可用 z-score
func (o Observation) Scored() bool { return o.Stage == StageScored && o.ZScore != nil }

// Pipeline SampleBuffer -> HedgeEstimator -> SpreadTracker -> SignalNormalizer。
// 非并发安全：每个配对独占一个实例，单写者调用。
type Pipeline struct {
	window  int
	samples *SampleBuffer
	spreads *SpreadTracker
}

// NewPipeline 创建信号管线，window 为滚动窗口长度
func NewPipeline(window int) *Pipeline {
	return &Pipeline{
		window:  window,
		samples: NewSampleBuffer(window),
		spreads: NewSpreadTracker(window),
	}
}

// Observe 处理一个新样本。仅当样本非法时返回错误（此时内部状态不变）。
func (p *Pipeline) Observe(sample domain.PriceSample) (Observation, error) {
	if err := p.samples.Append(sample); err != nil {
		return Observation{}, err
	}
	obs := Observation{Sample: sample, Stage: StageRaw}

	if !p.samples.Full() {
		obs.Reason = errors.Wrapf(domain.ErrInsufficientHistory, "price window %d/%d", p.samples.Len(), p.window)
		return obs, nil
	}

	ys, xs, err := p.samples.Recent(p.window)
	if err != nil {
		obs.Reason = err
		return obs, nil
	}
	hedge, err := EstimateHedge(ys, xs)
	if err != nil {
		obs.Stage = StageNoSignal
		obs.Reason = err
		return obs, nil
	}
	obs.Hedge = &hedge

	spread := Spread(sample, hedge)
	p.spreads.Update(spread)
	obs.Spread = &spread
	obs.Stage = StageSpread

	stats, ok := p.spreads.Stats()
	if !ok {
		obs.Reason = errors.Wrapf(domain.ErrInsufficientHistory, "spread window %d/%d", p.spreads.Len(), p.window)
		return obs, nil
	}
	obs.Stats = &stats

	z, ok := ZScore(spread, stats)
	if !ok {
		obs.Stage = StageNoSignal
		obs.Reason = errors.Wrap(domain.ErrDegenerateDistribution, "spread std dev is zero")
		return obs, nil
	}
	obs.ZScore = &z
	obs.Stage = StageScored
	return obs, nil
}

// Window 窗口长度
func (p *Pipeline) Window() int { return p.window }

// SampleCount 累计样本数
func (p *Pipeline) SampleCount() int { return p.samples.Total() }

// LastSampleAt 最近一次样本时间
func (p *Pipeline) LastSampleAt() time.Time {
	if p.samples.Len() == 0 {
		return time.Time{}
	}
	return p.samples.samples.At(p.samples.Len() - 1).Timestamp
}

// Clone 深拷贝，用于对同一窗口的重复评估
func (p *Pipeline) Clone() *Pipeline {
	c := NewPipeline(p.window)
	for _, s := range p.samples.samples.Values() {
		c.samples.samples.Push(s)
	}
	c.samples.total = p.samples.total
	for _, v := range p.spreads.window.Values() {
		c.spreads.window.Push(v)
	}
	c.spreads.pushed = p.spreads.pushed
	return c
}

// Replay 用一组样本从零构建管线并返回最后一次观测
func Replay(window int, samples []domain.PriceSample) (Observation, error) {
	p := NewPipeline(window)
	var last Observation
	for _, s := range samples {
		obs, err := p.Observe(s)
		if err != nil {
			return Observation{}, err
		}
		last = obs
	}
	return last, nil
}
