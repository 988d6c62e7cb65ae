package execution

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
)

// ErrDuplicateInFlight 同一配对的同向迁移仍在执行中，或刚成交仍在保护窗口内。
var ErrDuplicateInFlight = errors.New("duplicate in-flight")

// InFlightDeduper 按 配对+迁移类型+方向 去重。
//
// 下单期间占用 key；全部腿失败时立即释放（下个周期可重试），
// 有腿成交时保留到 TTL 过期，拦截重放或重复提交的同一意图。
type InFlightDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	holders map[string]time.Time // key -> expiresAt，零值表示执行中
}

// NewInFlightDeduper ttl<=0 时使用 DefaultDedupeTTL
func NewInFlightDeduper(ttl time.Duration) *InFlightDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &InFlightDeduper{ttl: ttl, now: time.Now, holders: make(map[string]time.Time)}
}

// DefaultDedupeTTL 成交后的保护窗口
const DefaultDedupeTTL = 10 * time.Second

// IntentKey 去重 key。不含时间戳：同一配对同时只可能有一个同向迁移。
func IntentKey(intent *domain.Intent) string {
	return intent.Pair + "|" + string(intent.Kind) + "|" + intent.Side.State()
}

// TryAcquire 占用 key；已占用且未过期时返回 ErrDuplicateInFlight
func (d *InFlightDeduper) TryAcquire(key string) error {
	if d == nil || key == "" {
		return nil
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.holders[key]; ok && (exp.IsZero() || exp.After(now)) {
		return errors.Wrap(ErrDuplicateInFlight, key)
	}
	d.holders[key] = time.Time{}
	return nil
}

// Release 立即释放 key（没有产生敞口）
func (d *InFlightDeduper) Release(key string) {
	if d == nil || key == "" {
		return
	}
	d.mu.Lock()
	delete(d.holders, key)
	d.mu.Unlock()
}

// Settle 有腿成交：key 保留到 TTL 过期
func (d *InFlightDeduper) Settle(key string) {
	if d == nil || key == "" {
		return
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holders[key] = now.Add(d.ttl)
	for k, exp := range d.holders {
		if !exp.IsZero() && !exp.After(now) {
			delete(d.holders, k)
		}
	}
}
