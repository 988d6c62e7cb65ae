package telemetry

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/domain"
)

var ts = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func rawCycle() CycleRecord {
	return CycleRecord{Pair: "p", Timestamp: ts, PriceY: 10, PriceX: 5, Stage: "raw", State: "FLAT"}
}

func scoredCycle() CycleRecord {
	return CycleRecord{
		Pair: "p", Timestamp: ts.Add(time.Minute), PriceY: 10.5, PriceX: 5.1,
		BetaRaw: f(1.2), Spread: f(0.3), Mean: f(0.1), StdDev: f(0.05), ZScore: f(4),
		Stage: "scored", State: "FLAT",
	}
}

func transition() TransitionRecord {
	return TransitionRecord{
		Pair: "p", Timestamp: ts, Kind: domain.TransitionExit, Side: domain.SideShort, ExitReason: domain.ExitStopLoss,
		ZScore: 4.5, Spread: 1, BetaRaw: -2, BetaUsed: 2, Inverted: true,
		UnitsY: decimal.RequireFromString("0.025"), UnitsX: decimal.RequireFromString("0.05"),
		OrderIDs: []string{"a", "b"},
	}
}

func TestCSVSinkWritesHeaderAndEmptyCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "p.csv")
	s, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCycle(rawCycle()))
	require.NoError(t, s.RecordCycle(scoredCycle()))
	require.NoError(t, s.RecordTransition(transition()))
	require.NoError(t, s.Close())
	assert.Error(t, s.RecordCycle(rawCycle()))

	// 重新打开追加，不重复表头
	s, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCycle(rawCycle()))
	require.NoError(t, s.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2025-01-01T12:00:00Z", "10", "5", "", "", "", "", ""}, rows[1])
	assert.Equal(t, []string{"2025-01-01T12:01:00Z", "10.5", "5.1", "1.2", "0.3", "0.1", "0.05", "4"}, rows[2])
}

func TestSQLiteSink(t *testing.T) {
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordCycle(rawCycle()))
	require.NoError(t, s.RecordCycle(scoredCycle()))
	entry := transition()
	entry.Kind, entry.ExitReason = domain.TransitionEntry, domain.ExitNone
	require.NoError(t, s.RecordTransition(entry))
	require.NoError(t, s.RecordTransition(transition()))

	ctx := context.Background()
	n, err := s.CycleCount(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var nullBeta int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cycles WHERE beta_raw IS NULL`).Scan(&nullBeta))
	assert.Equal(t, 1, nullBeta)

	sums, err := s.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].Entries)
	assert.Equal(t, 1, sums[0].StopLoss)
	assert.Equal(t, 0, sums[0].MeanReversion)
}

func TestHubPublishesDataAndTrade(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	require.NoError(t, h.RecordCycle(rawCycle()))
	require.NoError(t, h.RecordCycle(scoredCycle()))
	require.NoError(t, h.RecordTransition(transition()))

	ev := <-ch
	assert.Equal(t, EventData, ev.Type)
	data := ev.Data.(DataEvent)
	assert.Equal(t, 4.0, data.ZScore)
	assert.Equal(t, 0.1, data.RollingMean)

	ev = <-ch
	assert.Equal(t, EventTrade, ev.Type)
	trade := ev.Data.(TradeEvent)
	assert.Equal(t, "exit", trade.Type)
	assert.Equal(t, "short", trade.PositionType)
	assert.Equal(t, "stop_loss", trade.ExitReason)
	assert.True(t, trade.HedgeInverted)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	snap, ok := h.Pair("p")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Cycles)
	assert.Equal(t, int64(1), snap.Transitions)
	assert.Equal(t, 10.5, snap.LastCycle.PriceY)
	assert.Len(t, h.Snapshot(), 1)
}

func TestHubCloseThenCancel(t *testing.T) {
	h := NewHub(1)
	_, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())
	require.NoError(t, h.Close())
	assert.NotPanics(t, cancel)
	assert.Equal(t, 0, h.Subscribers())
}

type failingSink struct{ closed bool }

func (s *failingSink) RecordCycle(CycleRecord) error { return errors.New("boom") }

func (s *failingSink) RecordTransition(TransitionRecord) error { return errors.New("boom") }

func (s *failingSink) Close() error {
	s.closed = true
	return nil
}

func TestMultiIsolatesFailures(t *testing.T) {
	h := NewHub(4)
	bad := &failingSink{}
	m := Multi{bad, h, NewLogSink()}
	assert.NoError(t, m.RecordCycle(rawCycle()))
	assert.NoError(t, m.RecordTransition(transition()))
	_, ok := h.Pair("p")
	assert.True(t, ok)
	assert.NoError(t, m.Close())
	assert.True(t, bad.closed)
}

func TestTransitionFromIntent(t *testing.T) {
	in := &domain.Intent{
		Pair: "p", Kind: domain.TransitionEntry, Side: domain.SideLong, ZScore: -3.3, Spread: -0.4,
		Hedge: domain.NewHedgeEstimate(-1.5), UnitsY: decimal.NewFromInt(1), UnitsX: decimal.RequireFromString("1.5"),
		Timestamp: ts,
	}
	rec := TransitionFromIntent(in, []string{"o1"})
	assert.Equal(t, -1.5, rec.BetaRaw)
	assert.Equal(t, 1.5, rec.BetaUsed)
	assert.True(t, rec.Inverted)
	assert.Equal(t, []string{"o1"}, rec.OrderIDs)
}
