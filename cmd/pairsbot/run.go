package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/betbot/pairsbot/internal/dashboard"
	"github.com/betbot/pairsbot/internal/execution"
	"github.com/betbot/pairsbot/internal/metrics"
	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/pricefeed"
	"github.com/betbot/pairsbot/internal/runner"
	"github.com/betbot/pairsbot/internal/store"
	"github.com/betbot/pairsbot/internal/telemetry"
	"github.com/betbot/pairsbot/pkg/config"
	"github.com/betbot/pairsbot/pkg/logger"
	"github.com/betbot/pairsbot/pkg/ratelimit"
	"github.com/betbot/pairsbot/pkg/shutdown"
)

const shutdownTimeout = 10 * time.Second

func runCommand(args []string) error {
	cfg, _, err := setup("run", args, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm := shutdown.NewManager()

	// 持仓 / 熔断状态
	st, err := store.Open(store.OpenOptions{Path: cfg.StorePath})
	if err != nil {
		return err
	}
	sm.OnShutdown("store", func(context.Context) error { return st.Close() })

	// 遥测：日志 + 看板推送 + SQLite，CSV 按配对单独一个文件
	hub := telemetry.NewHub(256)
	shared := telemetry.Multi{telemetry.NewLogSink(), hub}
	sm.OnShutdown("hub", func(context.Context) error { return hub.Close() })
	if cfg.Telemetry.SQLitePath != "" {
		db, err := telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
		if err != nil {
			sm.ShutdownWithTimeout(shutdownTimeout)
			return err
		}
		shared = append(shared, db)
		sm.OnShutdownParallel("sqlite", func(context.Context) error { return db.Close() })
	}

	limits := ratelimit.NewManager()
	venue, err := newVenue(cfg, limits)
	if err != nil {
		sm.ShutdownWithTimeout(shutdownTimeout)
		return err
	}
	engine := execution.NewEngine(venue)
	source := pricefeed.NewJupiterSource(pricefeed.JupiterConfig{
		BaseURL: cfg.PriceFeed.BaseURL,
		VsToken: cfg.PriceFeed.VsToken,
		Timeout: cfg.PriceFeed.Timeout,
		Limiter: limits.GetLimiter(ratelimit.JupiterPrice),
	})

	params := pairParams(cfg)
	contexts := make([]*pairs.Context, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		sink := append(telemetry.Multi{}, shared...)
		if cfg.Telemetry.CSVDir != "" {
			csvSink, err := telemetry.NewCSVSink(filepath.Join(cfg.Telemetry.CSVDir, p.Name+".csv"))
			if err != nil {
				sm.ShutdownWithTimeout(shutdownTimeout)
				return err
			}
			sink = append(sink, csvSink)
			sm.OnShutdownParallel("csv:"+p.Name, func(context.Context) error { return csvSink.Close() })
		}
		pc, err := pairs.NewContext(p, params, pairs.Deps{
			Source:   source,
			Executor: engine,
			Sink:     sink,
			Store:    st,
		})
		if err != nil {
			sm.ShutdownWithTimeout(shutdownTimeout)
			return err
		}
		contexts = append(contexts, pc)
	}

	r := runner.New(cfg.PollInterval, contexts...)

	if cfg.DashboardAddr != "" {
		srv, err := dashboard.New(r, hub).StartAsync(ctx, cfg.DashboardAddr)
		if err != nil {
			sm.ShutdownWithTimeout(shutdownTimeout)
			return err
		}
		sm.OnShutdown("dashboard", srv.Shutdown)
	}
	if cfg.MetricsAddr != "" {
		srv, err := metrics.StartAsync(ctx, cfg.MetricsAddr)
		if err != nil {
			sm.ShutdownWithTimeout(shutdownTimeout)
			return err
		}
		logger.Infof("📈 metrics 监听 %s (/debug/vars, /debug/pprof)", srv.Addr)
		sm.OnShutdownParallel("metrics", srv.Shutdown)
	}

	r.Start(ctx)
	sm.OnShutdown("runner", func(context.Context) error {
		r.Stop()
		return nil
	})
	logger.Infof("🤖 pairsbot 已启动: %d 个配对, 执行模式=%s, 轮询=%s", len(contexts), cfg.Execution.Mode, cfg.PollInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到信号 %s，开始退出", sig)

	cancel()
	sm.ShutdownWithTimeout(shutdownTimeout)
	return nil
}

func newVenue(cfg *config.Config, limits *ratelimit.Manager) (execution.Venue, error) {
	switch cfg.Execution.Mode {
	case config.ExecutionPaper:
		logger.Warn("📝 纸交易模式：订单只记录不发送")
		return execution.NewPaperVenue(), nil
	case config.ExecutionREST:
		rc := cfg.Execution.REST
		return execution.NewRESTVenue(execution.RESTVenueConfig{
			BaseURL:   rc.BaseURL,
			OrderPath: rc.OrderPath,
			APIKey:    rc.APIKey,
			Timeout:   rc.Timeout,
			Limiter:   limits.GetLimiter(ratelimit.VenueOrder),
		})
	default:
		return nil, fmt.Errorf("未知的执行模式: %s", cfg.Execution.Mode)
	}
}
