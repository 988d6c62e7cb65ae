package signal

import (
	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
)

// SampleBuffer 保存两个标的最近 capacity 个原始价格
type SampleBuffer struct {
	samples *RollingWindow[domain.PriceSample]
	total   int // 累计接收的样本数（不受窗口容量限制）
}

// NewSampleBuffer 创建采样缓冲区
func NewSampleBuffer(capacity int) *SampleBuffer {
	return &SampleBuffer{samples: NewRollingWindow[domain.PriceSample](capacity)}
}

// Append 追加一个样本。价格非法或时间戳不递增时拒绝（不做任何修正）。
func (b *SampleBuffer) Append(s domain.PriceSample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if b.samples.Len() > 0 {
		last := b.samples.At(b.samples.Len() - 1)
		if !s.Timestamp.After(last.Timestamp) {
			return errors.Wrapf(domain.ErrInvalidSample, "timestamp %s not after %s",
				s.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), last.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
		}
	}
	b.samples.Push(s)
	b.total++
	return nil
}

// Recent 返回最近 n 个样本的 Y、X 序列
func (b *SampleBuffer) Recent(n int) ([]float64, []float64, error) {
	if n <= 0 || n > b.samples.Cap() {
		return nil, nil, errors.Errorf("recent: n=%d out of range (capacity=%d)", n, b.samples.Cap())
	}
	if b.samples.Len() < n {
		return nil, nil, errors.Wrapf(domain.ErrInsufficientHistory, "have %d samples, need %d", b.samples.Len(), n)
	}
	window := b.samples.Last(n)
	ys := make([]float64, n)
	xs := make([]float64, n)
	for i, s := range window {
		ys[i] = s.PriceY
		xs[i] = s.PriceX
	}
	return ys, xs, nil
}

// Len 窗口内样本数
func (b *SampleBuffer) Len() int { return b.samples.Len() }

// Total 累计样本数
func (b *SampleBuffer) Total() int { return b.total }

// Full 窗口是否已满
func (b *SampleBuffer) Full() bool { return b.samples.Full() }

// Capacity 窗口容量
func (b *SampleBuffer) Capacity() int { return b.samples.Cap() }
