package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/dashboard"
	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/risk"
	"github.com/betbot/pairsbot/internal/telemetry"
)

func TestDecodeEvent(t *testing.T) {
	raw, err := json.Marshal(telemetry.Event{Type: telemetry.EventTrade, Data: telemetry.TradeEvent{
		Pair: "popcat-pnut", Type: "entry", PositionType: "SHORT_SPREAD", ZScore: 3.5,
	}})
	require.NoError(t, err)

	ev, err := decodeEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Trade)
	assert.Equal(t, "SHORT_SPREAD", ev.Trade.PositionType)
	assert.Nil(t, ev.Data)

	_, err = decodeEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestModelUpdateAndView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newModel(dashboard.NewClient(srv.URL, time.Second), nil)

	next, _ := m.Update(stateMsg{state: &dashboard.StateResponse{
		Pairs: []pairs.Status{
			{Pair: "a", State: "FLAT", Samples: 10, Window: 50},
			{Pair: "b", State: "SHORT_SPREAD", Samples: 120, Window: 50, Halt: risk.HaltState{Halted: true, Reason: "partial execution"}},
		},
		Time: time.Now(),
	}})
	m = next.(model)
	require.Len(t, m.statuses, 2)

	next, _ = m.Update(eventMsg{Type: telemetry.EventData, Data: &telemetry.DataEvent{Pair: "b", ZScore: 3.25}})
	m = next.(model)
	for i := 0; i < maxTrades+2; i++ {
		next, _ = m.Update(eventMsg{Type: telemetry.EventTrade, Trade: &telemetry.TradeEvent{Pair: "b", Type: "exit", ExitReason: "stop_loss"}})
		m = next.(model)
	}
	assert.Len(t, m.trades, maxTrades)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	assert.Equal(t, 1, m.selected)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = next.(model)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.notice, "b")

	view := m.View()
	assert.Contains(t, view, "HALTED")
	assert.Contains(t, view, "预热: 10/100")
	assert.Contains(t, view, "3.250")
	assert.True(t, strings.Contains(view, "stop_loss"))
}
