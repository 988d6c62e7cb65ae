package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/dashboard"
	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/risk"
	"github.com/betbot/pairsbot/internal/store"
	"github.com/betbot/pairsbot/internal/telemetry"
	"github.com/betbot/pairsbot/pkg/config"
)

const adminTimeout = 3 * time.Second

// resumeCommand 优先通过运行中进程的看板 API 解除熔断；进程未运行时直接改写状态库。
func resumeCommand(args []string) error {
	cfg, fs, err := setup("resume", args, true)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("用法: pairsbot resume [-config path] <pair>")
	}
	pair := fs.Arg(0)
	if !configured(cfg, pair) {
		return errors.Errorf("未配置的交易对: %s", pair)
	}

	if cfg.DashboardAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
		defer cancel()
		st, err := dashboard.NewClient(cfg.DashboardAddr, adminTimeout).Resume(ctx, pair)
		switch {
		case err == nil:
			fmt.Printf("▶️  %s 已解除熔断（运行中进程），当前 %s\n", pair, st.State)
			return nil
		case dashboard.IsNotFound(err):
			return errors.Errorf("运行中进程没有交易对 %s", pair)
		}
	}

	st, err := store.Open(store.OpenOptions{Path: cfg.StorePath})
	if err != nil {
		return errors.Wrap(err, "看板不可达且无法打开状态库（进程是否仍在运行？）")
	}
	defer st.Close()

	halt, found, err := st.LoadHalt(pair)
	if err != nil {
		return err
	}
	if !found || !halt.Halted {
		fmt.Printf("%s 未处于熔断状态\n", pair)
		return nil
	}
	if err := st.ClearHalt(pair); err != nil {
		return err
	}
	fmt.Printf("▶️  %s 已解除熔断（原因: %s），下次启动生效\n", pair, halt.Reason)
	return nil
}

// statusCommand 优先读取运行中进程的状态；否则读取状态库与 SQLite 遥测。
func statusCommand(args []string) error {
	cfg, _, err := setup("status", args, true)
	if err != nil {
		return err
	}

	if cfg.DashboardAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
		defer cancel()
		if state, err := dashboard.NewClient(cfg.DashboardAddr, adminTimeout).State(ctx); err == nil {
			printStatuses(state.Pairs, "运行中")
			return nil
		}
	}

	st, err := store.Open(store.OpenOptions{Path: cfg.StorePath, ReadOnly: true})
	if err != nil {
		return errors.Wrap(err, "看板不可达且无法打开状态库")
	}
	defer st.Close()

	statuses := make([]pairs.Status, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		s := pairs.Status{Pair: p.Name, Window: cfg.Strategy.RollingWindowSize, Position: domain.FlatPosition()}
		if pos, found, err := st.LoadPosition(p.Name); err != nil {
			return err
		} else if found {
			s.Position = pos
		}
		s.State = s.Position.Side.State()
		if halt, found, err := st.LoadHalt(p.Name); err != nil {
			return err
		} else if found {
			s.Halt = halt
		}
		statuses = append(statuses, s)
	}
	printStatuses(statuses, "已停止")

	if cfg.Telemetry.SQLitePath != "" {
		if _, err := os.Stat(cfg.Telemetry.SQLitePath); err == nil {
			return printSummaries(cfg)
		}
	}
	return nil
}

func configured(cfg *config.Config, pair string) bool {
	for _, p := range cfg.Pairs {
		if p.Name == pair {
			return true
		}
	}
	return false
}

func printStatuses(statuses []pairs.Status, source string) {
	fmt.Printf("进程状态: %s\n\n", source)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tSTATE\tUNITS_Y\tUNITS_X\tSAMPLES\tZ\tHALT")
	for _, s := range statuses {
		z := "-"
		if s.ZScore != nil {
			z = fmt.Sprintf("%.3f", *s.ZScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			s.Pair, s.State, s.Position.UnitsY, s.Position.UnitsX, s.Samples, 2*s.Window, z, haltText(s.Halt))
	}
	_ = w.Flush()
}

func haltText(h risk.HaltState) string {
	if !h.Halted {
		return "-"
	}
	return fmt.Sprintf("⛔ %s (%s)", h.Reason, h.HaltedAt.Format(time.RFC3339))
}

func printSummaries(cfg *config.Config) error {
	db, err := telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	summaries, err := db.Summaries(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tCYCLES\tENTRIES\tMEAN_REVERSION\tSTOP_LOSS\tLAST")
	for _, s := range summaries {
		cycles, err := db.CycleCount(ctx, s.Pair)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", s.Pair, cycles, s.Entries, s.MeanReversion, s.StopLoss, s.LastAt)
	}
	return w.Flush()
}
