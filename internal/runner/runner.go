package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/pairs"
)

var log = logrus.WithField("component", "runner")

// ErrUnknownPair 配对不存在
var ErrUnknownPair = errors.New("unknown pair")

// Runner 每个配对一个轮询 goroutine，配对之间不共享任何可变状态。
type Runner struct {
	interval time.Duration
	contexts map[string]*pairs.Context

	loopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(interval time.Duration, contexts ...*pairs.Context) *Runner {
	m := make(map[string]*pairs.Context, len(contexts))
	for _, c := range contexts {
		m[c.Pair.Name] = c
	}
	return &Runner{interval: interval, contexts: m}
}

// Start 启动所有配对的轮询（只会启动一次）。首个周期立即执行。
func (r *Runner) Start(parent context.Context) {
	r.loopOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(parent)
		r.cancel = cancel
		for _, c := range r.contexts {
			r.wg.Add(1)
			go func(c *pairs.Context) {
				defer r.wg.Done()
				r.loop(loopCtx, c)
			}(c)
		}
		log.Infof("🚀 已启动 %d 个配对，轮询间隔 %s", len(r.contexts), r.interval)
	})
}

// Stop 停止轮询并等待当前周期结束
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, c *pairs.Context) {
	var tickC <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	r.runOnce(ctx, c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			r.runOnce(ctx, c)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, c *pairs.Context) {
	if ctx.Err() != nil {
		return
	}
	out, err := c.RunCycle(ctx)
	switch {
	case err == nil:
		if out.Intent != nil {
			log.Infof("✅ [%s] %s %s 已提交，当前 %s", c.Pair.Name, out.Intent.Kind, out.Intent.Side, c.Machine.Position().Side.State())
		}
	case errors.Is(err, domain.ErrPartialExecution):
		log.Errorf("🚨 [%s] 自动交易已停止，人工对账后执行 pairsbot resume: %v", c.Pair.Name, err)
	default:
		log.Warnf("[%s] 周期执行失败: %v", c.Pair.Name, err)
	}
}

// Statuses 所有配对状态（按名称排序）
func (r *Runner) Statuses() []pairs.Status {
	out := make([]pairs.Status, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Status 单个配对状态
func (r *Runner) Status(pair string) (pairs.Status, bool) {
	c, ok := r.contexts[pair]
	if !ok {
		return pairs.Status{}, false
	}
	return c.Status(), true
}

// Resume 解除指定配对的熔断
func (r *Runner) Resume(pair string) error {
	c, ok := r.contexts[pair]
	if !ok {
		return errors.Wrap(ErrUnknownPair, pair)
	}
	return c.Resume()
}
