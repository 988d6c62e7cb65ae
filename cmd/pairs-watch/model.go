package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/betbot/pairsbot/internal/dashboard"
	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/telemetry"
)

const (
	maxTrades     = 8
	pollInterval  = 5 * time.Second
	reconnectWait = 3 * time.Second
)

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	longStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	shortStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	haltStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))

	selectedBorderStyle = borderStyle.
				BorderForeground(lipgloss.Color("62"))
)

// stateMsg /api/state 结果
type stateMsg struct {
	state *dashboard.StateResponse
	err   error
}

// eventMsg WebSocket 推送
type eventMsg struct {
	Type  string
	Data  *telemetry.DataEvent
	Trade *telemetry.TradeEvent
}

// wsStatusMsg 连接状态变化
type wsStatusMsg struct {
	connected bool
	err       error
}

// resumeMsg resume 请求结果
type resumeMsg struct {
	pair string
	err  error
}

type pollMsg time.Time

// model 是应用程序的状态
type model struct {
	client *dashboard.Client
	events <-chan tea.Msg

	statuses  []pairs.Status
	latest    map[string]telemetry.DataEvent
	trades    []telemetry.TradeEvent
	selected  int
	connected bool
	updatedAt time.Time
	notice    string
	err       error
}

func newModel(client *dashboard.Client, events <-chan tea.Msg) model {
	return model{
		client: client,
		events: events,
		latest: make(map[string]telemetry.DataEvent),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStateCmd(m.client), waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.statuses)-1 {
				m.selected++
			}
		case "r":
			if st, ok := m.current(); ok && st.Halt.Halted {
				m.notice = fmt.Sprintf("正在解除 %s 的熔断...", st.Pair)
				return m, resumeCmd(m.client, st.Pair)
			}
		}
		return m, nil

	case pollMsg:
		return m, fetchStateCmd(m.client)

	case stateMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.statuses = msg.state.Pairs
			m.updatedAt = msg.state.Time
			if m.selected >= len(m.statuses) {
				m.selected = max(0, len(m.statuses)-1)
			}
		}
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })

	case eventMsg:
		switch msg.Type {
		case telemetry.EventData:
			if msg.Data != nil {
				m.latest[msg.Data.Pair] = *msg.Data
			}
		case telemetry.EventTrade:
			if msg.Trade != nil {
				m.trades = append([]telemetry.TradeEvent{*msg.Trade}, m.trades...)
				if len(m.trades) > maxTrades {
					m.trades = m.trades[:maxTrades]
				}
				// 成交后立即刷新持仓
				return m, tea.Batch(waitForEvent(m.events), fetchStateCmd(m.client))
			}
		}
		return m, waitForEvent(m.events)

	case wsStatusMsg:
		m.connected = msg.connected
		if msg.err != nil {
			m.notice = fmt.Sprintf("推送断开: %v", msg.err)
		} else if msg.connected {
			m.notice = ""
		}
		return m, waitForEvent(m.events)

	case resumeMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("解除熔断失败: %v", msg.err)
		} else {
			m.notice = fmt.Sprintf("%s 已解除熔断", msg.pair)
		}
		return m, fetchStateCmd(m.client)
	}
	return m, nil
}

func (m model) current() (pairs.Status, bool) {
	if m.selected < 0 || m.selected >= len(m.statuses) {
		return pairs.Status{}, false
	}
	return m.statuses[m.selected], true
}

func (m model) View() string {
	var s strings.Builder

	ws := shortStyle.Render("● 推送断开")
	if m.connected {
		ws = longStyle.Render("● 推送已连接")
	}
	updated := "--"
	if !m.updatedAt.IsZero() {
		updated = m.updatedAt.Local().Format("15:04:05")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("pairsbot | %d 个配对 | 更新于 %s", len(m.statuses), updated)))
	s.WriteString("  " + ws + "\n\n")

	if m.err != nil {
		s.WriteString(shortStyle.Render(fmt.Sprintf("错误: %v", m.err)))
		s.WriteString("\n\n")
	}

	boxes := make([]string, 0, len(m.statuses))
	for i, st := range m.statuses {
		boxes = append(boxes, m.renderPair(st, i == m.selected))
	}
	if len(boxes) > 0 {
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
		s.WriteString("\n\n")
	} else if m.err == nil {
		s.WriteString("等待数据...\n\n")
	}

	s.WriteString(titleStyle.Render("最近交易"))
	s.WriteString("\n")
	if len(m.trades) == 0 {
		s.WriteString(dimStyle.Render("  --"))
		s.WriteString("\n")
	}
	for _, t := range m.trades {
		s.WriteString("  " + renderTrade(t) + "\n")
	}

	if m.notice != "" {
		s.WriteString("\n" + dimStyle.Render(m.notice) + "\n")
	}
	s.WriteString("\n↑/↓ 选择  r 解除熔断  q 退出")
	return s.String()
}

func (m model) renderPair(st pairs.Status, selected bool) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(st.Pair))
	s.WriteString("  ")
	s.WriteString(stateStyle(st.State).Render(st.State))
	s.WriteString("\n\n")

	if st.Halt.Halted {
		s.WriteString(haltStyle.Render(" HALTED "))
		s.WriteString(" " + st.Halt.Reason + "\n\n")
	}

	warm := 2 * st.Window
	if st.Samples < warm {
		s.WriteString(fmt.Sprintf("预热: %d/%d\n", st.Samples, warm))
	} else {
		s.WriteString(fmt.Sprintf("样本: %d\n", st.Samples))
	}
	if d, ok := m.latest[st.Pair]; ok {
		s.WriteString(fmt.Sprintf("z:      %8.3f\n", d.ZScore))
		s.WriteString(fmt.Sprintf("spread: %8.5f\n", d.Spread))
		s.WriteString(fmt.Sprintf("mean:   %8.5f\n", d.RollingMean))
	} else if st.ZScore != nil {
		s.WriteString(fmt.Sprintf("z:      %8.3f\n", *st.ZScore))
	} else {
		s.WriteString(dimStyle.Render("z:      --") + "\n")
	}

	if st.Position.IsOpen() {
		s.WriteString(fmt.Sprintf("\nunitsY: %s\nunitsX: %s\n", st.Position.UnitsY, st.Position.UnitsX))
		if st.HeldFor != "" {
			s.WriteString(fmt.Sprintf("持仓:   %s\n", st.HeldFor))
		}
	}

	if selected {
		return selectedBorderStyle.Render(s.String())
	}
	return borderStyle.Render(s.String())
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "LONG_SPREAD":
		return longStyle
	case "SHORT_SPREAD":
		return shortStyle
	default:
		return dimStyle
	}
}

func renderTrade(t telemetry.TradeEvent) string {
	line := fmt.Sprintf("%s %-12s %-5s %-13s z=%6.3f β=%.4f",
		t.Timestamp.Local().Format("01-02 15:04"), t.Pair, t.Type, t.PositionType, t.ZScore, t.UsedBeta)
	if t.ExitReason != "" {
		line += " (" + t.ExitReason + ")"
	}
	if t.HedgeInverted {
		line += " [inverted]"
	}
	if t.Type == "entry" {
		return longStyle.Render(line)
	}
	return line
}

// Commands

func fetchStateCmd(c *dashboard.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		st, err := c.State(ctx)
		return stateMsg{state: st, err: err}
	}
}

func resumeCmd(c *dashboard.Client, pair string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := c.Resume(ctx, pair)
		return resumeMsg{pair: pair, err: err}
	}
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// decodeEvent 解析看板推送 {"event": "...", "data": {...}}
func decodeEvent(raw []byte) (eventMsg, error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return eventMsg{}, err
	}
	out := eventMsg{Type: env.Event}
	switch env.Event {
	case telemetry.EventData:
		out.Data = &telemetry.DataEvent{}
		return out, json.Unmarshal(env.Data, out.Data)
	case telemetry.EventTrade:
		out.Trade = &telemetry.TradeEvent{}
		return out, json.Unmarshal(env.Data, out.Trade)
	}
	return out, nil
}

// streamEvents 连接 /ws 并把事件转为 tea.Msg，断开后自动重连，直到 ctx 结束
func streamEvents(ctx context.Context, wsURL string, out chan<- tea.Msg) {
	defer close(out)
	send := func(msg tea.Msg) bool {
		select {
		case out <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for ctx.Err() == nil {
		conn, _, err := gorillaWS.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if !send(wsStatusMsg{connected: false, err: err}) {
				return
			}
		} else {
			if !send(wsStatusMsg{connected: true}) {
				conn.Close()
				return
			}
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					stop()
					conn.Close()
					if ctx.Err() != nil || !send(wsStatusMsg{connected: false, err: err}) {
						return
					}
					break
				}
				ev, err := decodeEvent(raw)
				if err != nil {
					continue
				}
				if !send(ev) {
					stop()
					conn.Close()
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}
