package telemetry

import (
	"sort"
	"sync"
	"time"
)

// 推送事件名（与看板前端约定）
const (
	EventData  = "data"
	EventTrade = "trade"
)

// Event 推送给订阅者的事件
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// DataEvent z-score 可用时推送
type DataEvent struct {
	Pair        string    `json:"pair"`
	Timestamp   time.Time `json:"timestamp"`
	Spread      float64   `json:"spread"`
	RollingMean float64   `json:"rollingMean"`
	ZScore      float64   `json:"zScore"`
}

// TradeEvent 开仓 / 平仓时推送
type TradeEvent struct {
	Pair          string    `json:"pair"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	PositionType  string    `json:"positionType"`
	ExitReason    string    `json:"exitReason,omitempty"`
	ZScore        float64   `json:"zScore"`
	Spread        float64   `json:"spread"`
	OriginalBeta  float64   `json:"originalBeta"`
	UsedBeta      float64   `json:"usedBeta"`
	HedgeInverted bool      `json:"hedgeInverted"`
}

// PairSnapshot 每个配对最近一次的观测
type PairSnapshot struct {
	Pair           string            `json:"pair"`
	LastCycle      *CycleRecord      `json:"last_cycle,omitempty"`
	LastTransition *TransitionRecord `json:"last_transition,omitempty"`
	Cycles         int64             `json:"cycles"`
	Transitions    int64             `json:"transitions"`
}

// Hub 进程内广播：作为 Sink 接收记录，维护每个配对的快照，推送事件给订阅者。
// 看板只读快照，从不触碰信号窗口。
type Hub struct {
	mu     sync.RWMutex
	pairs  map[string]*PairSnapshot
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{pairs: make(map[string]*PairSnapshot), subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe 订阅事件；返回的 cancel 关闭通道。慢订阅者会丢事件。
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			// Close 可能已经关闭了该通道
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) RecordCycle(rec CycleRecord) error {
	h.mu.Lock()
	snap := h.snapshotLocked(rec.Pair)
	r := rec
	snap.LastCycle = &r
	snap.Cycles++
	h.mu.Unlock()

	if rec.ZScore == nil || rec.Spread == nil || rec.Mean == nil {
		return nil
	}
	h.publish(Event{Type: EventData, Data: DataEvent{
		Pair:        rec.Pair,
		Timestamp:   rec.Timestamp,
		Spread:      *rec.Spread,
		RollingMean: *rec.Mean,
		ZScore:      *rec.ZScore,
	}})
	return nil
}

func (h *Hub) RecordTransition(rec TransitionRecord) error {
	h.mu.Lock()
	snap := h.snapshotLocked(rec.Pair)
	r := rec
	snap.LastTransition = &r
	snap.Transitions++
	h.mu.Unlock()

	h.publish(Event{Type: EventTrade, Data: TradeEvent{
		Pair:          rec.Pair,
		Timestamp:     rec.Timestamp,
		Type:          string(rec.Kind),
		PositionType:  string(rec.Side),
		ExitReason:    string(rec.ExitReason),
		ZScore:        rec.ZScore,
		Spread:        rec.Spread,
		OriginalBeta:  rec.BetaRaw,
		UsedBeta:      rec.BetaUsed,
		HedgeInverted: rec.Inverted,
	}})
	return nil
}

// Close 关闭所有订阅
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	return nil
}

// Snapshot 所有配对快照（按名称排序）
func (h *Hub) Snapshot() []PairSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]PairSnapshot, 0, len(h.pairs))
	for _, p := range h.pairs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Pair 单个配对快照
func (h *Hub) Pair(name string) (PairSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pairs[name]
	if !ok {
		return PairSnapshot{}, false
	}
	return *p, true
}

func (h *Hub) snapshotLocked(pair string) *PairSnapshot {
	p, ok := h.pairs[pair]
	if !ok {
		p = &PairSnapshot{Pair: pair}
		h.pairs[pair] = p
	}
	return p
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Debugf("订阅者缓冲区已满，丢弃 %s 事件", ev.Type)
		}
	}
}
