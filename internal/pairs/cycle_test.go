package pairs

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/execution"
	"github.com/betbot/pairsbot/internal/position"
	"github.com/betbot/pairsbot/internal/pricefeed"
	"github.com/betbot/pairsbot/internal/store"
	"github.com/betbot/pairsbot/internal/telemetry"
)

const window = 50

var (
	t0       = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testPair = domain.Pair{
		Name: "popcat-wif",
		Y:    domain.Instrument{PriceID: "mintY", MarketID: "POPCAT-USD"},
		X:    domain.Instrument{PriceID: "mintX", MarketID: "WIF-USD"},
	}
)

type recordingSink struct {
	mu          sync.Mutex
	cycles      []telemetry.CycleRecord
	transitions []telemetry.TransitionRecord
}

func (r *recordingSink) RecordCycle(rec telemetry.CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, rec)
	return nil
}

func (r *recordingSink) RecordTransition(rec telemetry.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, rec)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func params() Params {
	return Params{
		Window:     window,
		Thresholds: position.Thresholds{Entry: 3, TakeProfit: 0.2, StopLoss: 4},
		Sizing: position.Sizing{
			TotalCapital: decimal.NewFromInt(50),
			RiskPerTrade: decimal.RequireFromString("0.02"),
			ScaleFactor:  decimal.NewFromInt(10),
		},
	}
}

func newTestContext(t *testing.T, venue execution.Venue, st StateStore) (*Context, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	c, err := NewContext(testPair, params(), Deps{
		Executor: execution.NewEngine(venue),
		Sink:     sink,
		Store:    st,
		Now:      func() time.Time { return t0 },
	})
	require.NoError(t, err)
	return c, sink
}

func at(i int, y, x float64) domain.PriceSample {
	return domain.PriceSample{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), PriceY: y, PriceX: x}
}

// curveY 对数斜率恰为 2：ln(Y) = ln(0.4) + 2·ln(X)
func curveY(x float64) float64 { return 0.4 * x * x }

// warmUp 喂入 2N-1 个沿曲线的样本，返回价差窗口中将保留的价差
func warmUp(t *testing.T, c *Context) []float64 {
	t.Helper()
	var spreads []float64
	for i := 1; i < 2*window; i++ {
		x := 5 + 0.5*math.Sin(float64(i))
		out, err := c.Process(context.Background(), at(i, curveY(x), x))
		require.NoError(t, err)
		require.Nil(t, out.Intent)
		require.Nil(t, out.Observation.ZScore, "sample %d", i)
		if out.Observation.Spread != nil {
			spreads = append(spreads, *out.Observation.Spread)
		}
	}
	// 第 2N 个样本推入后窗口保留最近 N-1 个旧价差
	return spreads[len(spreads)-(window-1):]
}

func zWith(prev []float64, s float64) float64 {
	all := append(append([]float64(nil), prev...), s)
	var mean float64
	for _, v := range all {
		mean += v
	}
	mean /= float64(len(all))
	var ss float64
	for _, v := range all {
		ss += (v - mean) * (v - mean)
	}
	return (s - mean) / math.Sqrt(ss/float64(len(all)))
}

// spreadForZ 二分求使 z 等于 target 的价差（z 对 s 单调）
func spreadForZ(prev []float64, target float64) float64 {
	lo, hi := prev[0], prev[0]
	for _, v := range prev {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	hi += 100 * (hi - lo)
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if zWith(prev, mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// sampleForZ 构造第 2N 个样本：仍在曲线上（beta=2），价差对应目标 z
func sampleForZ(prev []float64, target float64) domain.PriceSample {
	return sampleForZAt(2*window, prev, target)
}

func sampleForZAt(i int, prev []float64, target float64) domain.PriceSample {
	s := spreadForZ(prev, target)
	// 0.4x² - 2x = s 的正根
	x := (2 + math.Sqrt(4+1.6*s)) / 0.8
	return at(i, curveY(x), x)
}

func TestScenarioWarmupEmitsRawTelemetryOnly(t *testing.T) {
	calls := 0
	venue := execution.VenueFunc(func(ctx context.Context, o execution.Order) (*execution.Ack, error) {
		calls++
		return &execution.Ack{OrderID: "x"}, nil
	})
	c, sink := newTestContext(t, venue, nil)

	for i := 1; i <= 49; i++ {
		out, err := c.Process(context.Background(), at(i, 10, 5))
		require.NoError(t, err)
		assert.Nil(t, out.Observation.Hedge)
	}
	require.Len(t, sink.cycles, 49)
	for _, rec := range sink.cycles {
		assert.Equal(t, 10.0, rec.PriceY)
		assert.Equal(t, 5.0, rec.PriceX)
		assert.Nil(t, rec.BetaRaw)
		assert.Nil(t, rec.Spread)
		assert.Nil(t, rec.Mean)
		assert.Nil(t, rec.StdDev)
		assert.Nil(t, rec.ZScore)
		assert.Equal(t, "FLAT", rec.State)
	}
	assert.Empty(t, sink.transitions)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 49, c.Status().Samples)
}

func TestScenarioEntryShortAtWarmedUpSample(t *testing.T) {
	venue := execution.NewPaperVenue()
	st, err := store.Open(store.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer st.Close()
	c, sink := newTestContext(t, venue, st)

	prev := warmUp(t, c)
	out, err := c.Process(context.Background(), sampleForZ(prev, 3.5))
	require.NoError(t, err)

	obs := out.Observation
	require.True(t, obs.Scored())
	assert.InDelta(t, 3.5, *obs.ZScore, 1e-6)
	assert.InDelta(t, 2.0, obs.Hedge.BetaUsed, 1e-9)
	assert.False(t, obs.Hedge.Inverted())

	require.NotNil(t, out.Intent)
	assert.Equal(t, domain.TransitionEntry, out.Intent.Kind)
	assert.Equal(t, domain.SideShort, out.Intent.Side)

	pos := c.Machine.Position()
	require.True(t, pos.IsOpen())
	assert.Equal(t, "SHORT_SPREAD", pos.Side.State())
	assert.True(t, pos.UnitsX.Equal(pos.UnitsY.Mul(decimal.NewFromFloat(obs.Hedge.BetaUsed))))
	assert.InDelta(t, 2.0, pos.UnitsX.Div(pos.UnitsY).InexactFloat64(), 1e-9)

	orders := venue.Orders()
	require.Len(t, orders, 2)
	require.Len(t, sink.transitions, 1)
	assert.Len(t, sink.transitions[0].OrderIDs, 2)
	assert.Len(t, sink.cycles, 2*window)

	saved, found, err := st.LoadPosition(testPair.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.SideShort, saved.Side)
	assert.True(t, saved.UnitsY.Equal(pos.UnitsY))
}

func TestScenarioPartialExecutionHaltsPair(t *testing.T) {
	venue := execution.NewPaperVenue()
	venue.FailWhen = func(o execution.Order) error {
		if o.Role == domain.LegX {
			return errors.New("leg rejected")
		}
		return nil
	}
	st, err := store.Open(store.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer st.Close()
	c, sink := newTestContext(t, venue, st)

	prev := warmUp(t, c)
	out, err := c.Process(context.Background(), sampleForZ(prev, 3.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPartialExecution))
	assert.Nil(t, out.Intent)

	// 持仓不变，且断路器已打开并持久化
	assert.False(t, c.Machine.Position().IsOpen())
	assert.True(t, c.Breaker.Halted())
	assert.Empty(t, sink.transitions)
	halt, found, err := st.LoadHalt(testPair.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, halt.Halted)
	assert.Contains(t, halt.Reason, "partial execution")
	assert.True(t, c.Status().Halt.Halted)

	// 熔断期间继续采样与输出，但不下单
	venue.FailWhen = nil
	x := 6.5
	out, err = c.Process(context.Background(), at(2*window+1, curveY(x), x))
	require.NoError(t, err)
	assert.Nil(t, out.Intent)
	assert.True(t, sink.cycles[len(sink.cycles)-1].Halted)
	assert.Len(t, venue.Orders(), 1)

	// 重启后仍是熔断状态
	c2, _ := newTestContext(t, venue, st)
	assert.True(t, c2.Breaker.Halted())

	require.NoError(t, c2.Resume())
	assert.False(t, c2.Breaker.Halted())
	_, found, err = st.LoadHalt(testPair.Name)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPartialExitKeepsPositionOpenAndHalts(t *testing.T) {
	venue := execution.NewPaperVenue()
	st, err := store.Open(store.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer st.Close()
	c, sink := newTestContext(t, venue, st)

	prev := warmUp(t, c)
	out, err := c.Process(context.Background(), sampleForZ(prev, 3.5))
	require.NoError(t, err)
	require.NotNil(t, out.Intent)
	entered := c.Machine.Position()
	require.Equal(t, domain.SideShort, entered.Side)

	// 平仓时 X 腿被拒
	venue.FailWhen = func(o execution.Order) error {
		if o.Role == domain.LegX {
			return errors.New("leg rejected")
		}
		return nil
	}
	next := append(append([]float64(nil), prev[1:]...), *out.Observation.Spread)
	out, err = c.Process(context.Background(), sampleForZAt(2*window+1, next, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPartialExecution))
	assert.Nil(t, out.Intent)

	pos := c.Machine.Position()
	assert.True(t, pos.IsOpen())
	assert.Equal(t, domain.SideShort, pos.Side)
	assert.True(t, pos.UnitsY.Equal(entered.UnitsY))
	assert.True(t, c.Breaker.Halted())
	assert.Len(t, sink.transitions, 1)

	saved, found, err := st.LoadPosition(testPair.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, saved.IsOpen())
	halt, found, err := st.LoadHalt(testPair.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, halt.Halted)
	assert.Contains(t, halt.Reason, "partial execution")
}

func TestCancelledCycleContextDoesNotAbortOrders(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	venue := execution.VenueFunc(func(ctx context.Context, o execution.Order) (*execution.Ack, error) {
		if o.Role == domain.LegX {
			once.Do(func() { close(started) })
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &execution.Ack{OrderID: o.ClientOrderID, Status: "filled"}, nil
	})
	c, _ := newTestContext(t, venue, nil)
	prev := warmUp(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Process(ctx, sampleForZ(prev, 3.5))
		done <- result{out, err}
	}()

	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.out.Intent)
	assert.True(t, c.Machine.Position().IsOpen())
	assert.False(t, c.Breaker.Halted())
}

func TestExecutionFailureKeepsPositionFlat(t *testing.T) {
	venue := execution.VenueFunc(func(ctx context.Context, o execution.Order) (*execution.Ack, error) {
		return nil, errors.New("gateway timeout")
	})
	c, sink := newTestContext(t, venue, nil)

	prev := warmUp(t, c)
	_, err := c.Process(context.Background(), sampleForZ(prev, 3.5))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPartialExecution))
	assert.False(t, c.Machine.Position().IsOpen())
	assert.False(t, c.Breaker.Halted())
	assert.Empty(t, sink.transitions)
}

func TestRestoresOpenPositionFromStore(t *testing.T) {
	st, err := store.Open(store.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer st.Close()
	pos := domain.Position{Open: true, Side: domain.SideLong, UnitsY: decimal.NewFromInt(1), UnitsX: decimal.NewFromInt(2), OpenedAt: t0.Add(-time.Hour)}
	require.NoError(t, st.SavePosition(testPair.Name, pos))

	c, _ := newTestContext(t, execution.NewPaperVenue(), st)
	assert.Equal(t, "LONG_SPREAD", c.Status().State)
	assert.Equal(t, "1h0m0s", c.Status().HeldFor)
}

func TestRunCycleSkipsWhenPriceMissing(t *testing.T) {
	src := pricefeed.NewStaticSource(map[string]float64{"mintY": 10})
	sink := &recordingSink{}
	c, err := NewContext(testPair, params(), Deps{
		Source:   src,
		Executor: execution.NewEngine(execution.NewPaperVenue()),
		Sink:     sink,
		Now:      func() time.Time { return t0 },
	})
	require.NoError(t, err)

	out, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, errors.Is(out.Skipped, domain.ErrDataUnavailable))
	assert.Empty(t, sink.cycles)
	assert.Equal(t, 0, c.Pipeline.SampleCount())

	src.Set("mintX", 5)
	out, err = c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Skipped)
	require.Len(t, sink.cycles, 1)
	assert.Equal(t, 5.0, sink.cycles[0].PriceX)
}

func TestNewContextRejectsBadParams(t *testing.T) {
	p := params()
	p.Thresholds.TakeProfit = 3
	_, err := NewContext(testPair, p, Deps{Executor: execution.NewEngine(execution.NewPaperVenue())})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	p = params()
	p.Window = 1
	_, err = NewContext(testPair, p, Deps{Executor: execution.NewEngine(execution.NewPaperVenue())})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
