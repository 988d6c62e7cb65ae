package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/pkg/ratelimit"
)

var testPair = domain.Pair{
	Name: "popcat-wif",
	Y:    domain.Instrument{PriceID: "mintY", MarketID: "POPCAT-USD"},
	X:    domain.Instrument{PriceID: "mintX", MarketID: "WIF-USD"},
}

func jupiterServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/v2", r.URL.Path)
		assert.Equal(t, USDCMint, r.URL.Query().Get("vsToken"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("ids") {
		case "mintY":
			_, _ = w.Write([]byte(`{"data":{"mintY":{"id":"mintY","type":"derivedPrice","price":"0.8125"}},"timeTaken":0.001}`))
		case "mintX":
			_, _ = w.Write([]byte(`{"data":{"mintX":{"id":"mintX","type":"derivedPrice","price":"2.5"}},"timeTaken":0.001}`))
		case "missing":
			_, _ = w.Write([]byte(`{"data":{"missing":null},"timeTaken":0.001}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
}

func TestJupiterGetPrice(t *testing.T) {
	srv := jupiterServer(t)
	defer srv.Close()
	src := NewJupiterSource(JupiterConfig{BaseURL: srv.URL})

	p, err := src.GetPrice(context.Background(), "mintY")
	require.NoError(t, err)
	assert.Equal(t, 0.8125, p)

	_, err = src.GetPrice(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
}

func TestFetchPair(t *testing.T) {
	srv := jupiterServer(t)
	defer srv.Close()
	src := NewJupiterSource(JupiterConfig{BaseURL: srv.URL})

	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.FixedZone("x", 3600))
	s, err := FetchPair(context.Background(), src, testPair, now)
	require.NoError(t, err)
	assert.Equal(t, 0.8125, s.PriceY)
	assert.Equal(t, 2.5, s.PriceX)
	assert.Equal(t, time.UTC, s.Timestamp.Location())
	assert.True(t, s.Timestamp.Equal(now))
}

func TestFetchPairFailsWhenEitherLegMissing(t *testing.T) {
	src := NewStaticSource(map[string]float64{"mintY": 1})
	_, err := FetchPair(context.Background(), src, testPair, time.Now())
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))

	src.Set("mintX", 2)
	s, err := FetchPair(context.Background(), src, testPair, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.PriceX)

	src.Delete("mintY")
	_, err = FetchPair(context.Background(), src, testPair, time.Now())
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
}

func TestJupiterRespectsRateLimit(t *testing.T) {
	srv := jupiterServer(t)
	defer srv.Close()
	limiter := ratelimit.NewSlidingWindow(1, time.Hour)
	src := NewJupiterSource(JupiterConfig{BaseURL: srv.URL, Limiter: limiter})

	_, err := src.GetPrice(context.Background(), "mintY")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.GetPrice(ctx, "mintX")
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
}
