package telemetry

import (
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/domain"
)

var log = logrus.WithField("component", "telemetry")

// Sink 只追加的观测输出，核心从不回读。
type Sink interface {
	RecordCycle(rec CycleRecord) error
	RecordTransition(rec TransitionRecord) error
	Close() error
}

// Multi 扇出到多个 Sink；单个 Sink 失败只记日志，不影响其它 Sink。
type Multi []Sink

func (m Multi) RecordCycle(rec CycleRecord) error {
	for _, s := range m {
		if err := s.RecordCycle(rec); err != nil {
			log.Warnf("⚠️ [%s] 写入周期数据失败 (%T): %v", rec.Pair, s, err)
		}
	}
	return nil
}

func (m Multi) RecordTransition(rec TransitionRecord) error {
	for _, s := range m {
		if err := s.RecordTransition(rec); err != nil {
			log.Warnf("⚠️ [%s] 写入迁移记录失败 (%T): %v", rec.Pair, s, err)
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogSink 写入 logrus：周期数据为 Debug，迁移为 Info
type LogSink struct {
	Logger logrus.FieldLogger
}

func NewLogSink() *LogSink { return &LogSink{Logger: log} }

func (s *LogSink) RecordCycle(rec CycleRecord) error {
	fields := logrus.Fields{
		"pair":    rec.Pair,
		"price_y": rec.PriceY,
		"price_x": rec.PriceX,
		"stage":   rec.Stage,
		"state":   rec.State,
	}
	if rec.BetaRaw != nil {
		fields["beta"] = *rec.BetaRaw
	}
	if rec.ZScore != nil {
		fields["z"] = *rec.ZScore
	}
	if rec.Halted {
		fields["halted"] = true
	}
	s.Logger.WithFields(fields).Debug("cycle")
	return nil
}

func (s *LogSink) RecordTransition(rec TransitionRecord) error {
	entry := s.Logger.WithFields(logrus.Fields{
		"pair":      rec.Pair,
		"z":         rec.ZScore,
		"spread":    rec.Spread,
		"beta_raw":  rec.BetaRaw,
		"beta_used": rec.BetaUsed,
		"inverted":  rec.Inverted,
		"units_y":   rec.UnitsY.String(),
		"units_x":   rec.UnitsX.String(),
	})
	switch {
	case rec.Kind == domain.TransitionEntry:
		entry.Infof("📈 开仓 %s", rec.Side.State())
	case rec.ExitReason == domain.ExitStopLoss:
		entry.Warnf("🛑 止损平仓 %s", rec.Side.State())
	default:
		entry.Infof("🎯 均值回归平仓 %s", rec.Side.State())
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
