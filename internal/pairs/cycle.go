package pairs

import (
	"context"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/execution"
	"github.com/betbot/pairsbot/internal/metrics"
	"github.com/betbot/pairsbot/internal/position"
	"github.com/betbot/pairsbot/internal/pricefeed"
	"github.com/betbot/pairsbot/internal/signal"
	"github.com/betbot/pairsbot/internal/telemetry"
)

// Outcome 一个周期的结果
type Outcome struct {
	Observation signal.Observation
	// Intent 已全部确认并提交的意图；nil 表示本周期没有迁移
	Intent *domain.Intent
	// Skipped 整个周期被跳过的原因（无报价 / 非法样本）
	Skipped error
}

// RunCycle 获取一次价格并处理。价格获取失败时不触碰任何内部状态。
func (c *Context) RunCycle(ctx context.Context) (Outcome, error) {
	metrics.Cycles.Add(1)
	if c.deps.Source == nil {
		return Outcome{}, errors.New("price source not configured")
	}
	sample, err := pricefeed.FetchPair(ctx, c.deps.Source, c.Pair, c.deps.Now())
	if err != nil {
		metrics.CyclesSkipped.Add("data_unavailable", 1)
		log.Debugf("[%s] 跳过本周期: %v", c.Pair.Name, err)
		return Outcome{Skipped: err}, nil
	}
	return c.Process(ctx, sample)
}

// Process 处理一个样本：信号计算 -> 观测输出 -> 状态机 -> 下单 -> 提交。
// 数据不足、分布退化、非法样本都只是本周期无操作；
// 返回的 error 只来自执行阶段（下单失败、部分成交）。
func (c *Context) Process(ctx context.Context, sample domain.PriceSample) (Outcome, error) {
	obs, err := c.Pipeline.Observe(sample)
	if err != nil {
		metrics.CyclesSkipped.Add("invalid_sample", 1)
		log.Debugf("[%s] 丢弃样本: %v", c.Pair.Name, err)
		return Outcome{Skipped: err}, nil
	}
	out := Outcome{Observation: obs}
	defer c.publish(&obs)

	halted := c.Breaker.Halted()
	if err := c.deps.Sink.RecordCycle(c.cycleRecord(obs, halted)); err != nil {
		log.Warnf("[%s] 写入周期数据失败: %v", c.Pair.Name, err)
	}

	if !obs.Scored() {
		metrics.CyclesSkipped.Add(skipReason(obs), 1)
		log.Debugf("[%s] 无信号 (%s): %v", c.Pair.Name, obs.Stage, obs.Reason)
		return out, nil
	}
	metrics.Signals.Add(1)

	// 熔断时继续采样与输出观测，但不产生意图
	if err := c.Breaker.AllowTrading(); err != nil {
		metrics.HaltedCycles.Add(1)
		if !halted {
			c.persistHalt()
		}
		log.Debugf("[%s] 已熔断，跳过状态机 z=%.4f", c.Pair.Name, *obs.ZScore)
		return out, nil
	}

	decision, err := c.Machine.Evaluate(position.Input{
		Sample: sample,
		Hedge:  *obs.Hedge,
		Spread: *obs.Spread,
		Z:      *obs.ZScore,
	})
	if err != nil {
		log.Warnf("[%s] 状态机评估失败: %v", c.Pair.Name, err)
		return out, nil
	}
	if !decision.HasIntent() {
		return out, nil
	}

	intent := decision.Intent
	log.Infof("🔔 [%s] %s %s z=%.4f spread=%.6f beta=%.4f inverted=%v",
		c.Pair.Name, intent.Kind, intent.Side.State(), intent.ZScore, intent.Spread, intent.Hedge.BetaUsed, intent.Hedge.Inverted())

	// 下单阶段不继承周期的取消，只受 execTimeout 约束
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.execTimeout)
	res, err := c.deps.Executor.Execute(execCtx, intent)
	cancel()
	if err != nil {
		return out, c.onExecutionError(intent, err)
	}
	c.Breaker.OnSuccess()

	if err := c.Machine.Commit(decision); err != nil {
		return out, errors.Wrap(err, "commit")
	}
	out.Intent = intent
	c.persistPosition()

	switch intent.Kind {
	case domain.TransitionEntry:
		metrics.Entries.Add(1)
	case domain.TransitionExit:
		metrics.Exits.Add(string(intent.ExitReason), 1)
	}
	if err := c.deps.Sink.RecordTransition(telemetry.TransitionFromIntent(intent, res.OrderIDs())); err != nil {
		log.Warnf("[%s] 写入迁移记录失败: %v", c.Pair.Name, err)
	}
	return out, nil
}

func (c *Context) onExecutionError(intent *domain.Intent, err error) error {
	var partial *execution.PartialExecutionError
	if errors.As(err, &partial) {
		// 真实敞口已与内部持仓不一致：不猜测，保持持仓不变并熔断，等待人工对账
		metrics.PartialExecutions.Add(1)
		c.Breaker.Halt("partial execution: " + partial.Error())
		c.persistHalt()
		log.Errorf("🚨 [%s] 部分成交，已熔断，需要人工对账: %v", c.Pair.Name, err)
		return err
	}
	if errors.Is(err, execution.ErrDuplicateInFlight) {
		log.Warnf("[%s] 重复意图已忽略: %v", c.Pair.Name, err)
		return nil
	}

	metrics.ExecutionErrors.Add(1)
	c.Breaker.OnError()
	log.Warnf("⚠️ [%s] %s 下单失败（未产生敞口），持仓保持 %s: %v",
		c.Pair.Name, intent.Kind, c.Machine.Position().Side.State(), err)
	return errors.Wrapf(err, "execute %s %s", intent.Kind, intent.Side)
}

func (c *Context) persistPosition() {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.SavePosition(c.Pair.Name, c.Machine.Position()); err != nil {
		metrics.StateSaveErrors.Add(1)
		log.Errorf("[%s] 保存持仓失败: %v", c.Pair.Name, err)
	}
}

func (c *Context) persistHalt() {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.SaveHalt(c.Pair.Name, c.Breaker.State()); err != nil {
		metrics.StateSaveErrors.Add(1)
		log.Errorf("[%s] 保存熔断状态失败: %v", c.Pair.Name, err)
	}
}

func (c *Context) cycleRecord(obs signal.Observation, halted bool) telemetry.CycleRecord {
	rec := telemetry.CycleRecord{
		Pair:      c.Pair.Name,
		Timestamp: obs.Sample.Timestamp,
		PriceY:    obs.Sample.PriceY,
		PriceX:    obs.Sample.PriceX,
		Spread:    obs.Spread,
		ZScore:    obs.ZScore,
		Stage:     string(obs.Stage),
		State:     c.Machine.Position().Side.State(),
		Halted:    halted,
	}
	if obs.Hedge != nil {
		beta := obs.Hedge.BetaRaw
		rec.BetaRaw = &beta
	}
	if obs.Stats != nil {
		mean, sd := obs.Stats.Mean, obs.Stats.StdDev
		rec.Mean, rec.StdDev = &mean, &sd
	}
	return rec
}

func skipReason(obs signal.Observation) string {
	switch {
	case errors.Is(obs.Reason, domain.ErrDegenerateDistribution):
		return "degenerate_distribution"
	case errors.Is(obs.Reason, domain.ErrInsufficientHistory):
		return "insufficient_history"
	default:
		return string(obs.Stage)
	}
}
