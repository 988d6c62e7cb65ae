package store

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/risk"
)

func TestPositionRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(OpenOptions{Path: dir})
	require.NoError(t, err)

	_, found, err := s.LoadPosition("p")
	require.NoError(t, err)
	assert.False(t, found)

	opened := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := domain.Position{
		Open: true, Side: domain.SideShort, EntryZScore: 3.4,
		UnitsY: decimal.RequireFromString("0.025"), UnitsX: decimal.RequireFromString("0.05"),
		Hedge: domain.NewHedgeEstimate(-2), OpenedAt: opened,
	}
	require.NoError(t, s.SavePosition("p", pos))
	require.NoError(t, s.Close())

	s, err = Open(OpenOptions{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	got, found, err := s.LoadPosition("p")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.SideShort, got.Side)
	assert.True(t, got.UnitsY.Equal(pos.UnitsY))
	assert.True(t, got.UnitsX.Equal(pos.UnitsX))
	assert.Equal(t, domain.RolesInverted, got.Hedge.Roles)
	assert.True(t, got.OpenedAt.Equal(opened))
}

func TestHaltSaveLoadClear(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	st := risk.HaltState{Halted: true, Reason: "partial execution", HaltedAt: time.Now().UTC()}
	require.NoError(t, s.SaveHalt("a", st))
	require.NoError(t, s.SavePosition("b", domain.FlatPosition()))

	got, found, err := s.LoadHalt("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Halted)
	assert.Equal(t, "partial execution", got.Reason)

	pairs, err := s.Pairs()
	require.NoError(t, err)
	sort.Strings(pairs)
	assert.Equal(t, []string{"a", "b"}, pairs)

	require.NoError(t, s.ClearHalt("a"))
	_, found, err = s.LoadHalt("a")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, s.SavePosition("", domain.FlatPosition()))
}
