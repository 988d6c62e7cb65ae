package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/internal/position"
	"github.com/betbot/pairsbot/internal/risk"
	"github.com/betbot/pairsbot/pkg/config"
	"github.com/betbot/pairsbot/pkg/logger"
)

const usage = `用法: pairsbot <command> [flags]

commands:
  run                 启动配对交易循环（看板 + 遥测）
  resume <pair>       人工对账后解除某个配对的熔断
  status              查看各配对持仓与熔断状态

flags:
  -config <path>      配置文件路径（.yaml / .yml / .json）
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(args)
	case "resume":
		err = resumeCommand(args)
	case "status":
		err = statusCommand(args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logrus.Errorf("❌ %v", err)
		os.Exit(1)
	}
}

// setup 解析公共参数、加载配置并初始化日志。
// quiet=true 时只输出到控制台（管理命令不写日志文件）。
func setup(name string, args []string, quiet bool) (*config.Config, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := logger.InitDefault(); err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	path := *configPath
	if path == "" {
		// 默认配置集中在 yml/ 下
		for _, p := range []string{"yml/pairsbot.yaml", "pairsbot.yaml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.Logging
	if quiet {
		logCfg = logger.Config{Level: "warn", NoColor: cfg.Logging.NoColor}
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if path != "" && !quiet {
		logger.Infof("使用配置文件: %s", path)
	}
	return cfg, fs, nil
}

// pairParams 把配置转换为每个配对的策略参数
func pairParams(cfg *config.Config) pairs.Params {
	s := cfg.Strategy
	return pairs.Params{
		Window: s.RollingWindowSize,
		Thresholds: position.Thresholds{
			Entry:      s.EntryThreshold,
			TakeProfit: s.TakeProfitThreshold,
			StopLoss:   s.StopLossThreshold,
		},
		Sizing: position.Sizing{
			TotalCapital: decimal.NewFromFloat(s.TotalCapital),
			RiskPerTrade: decimal.NewFromFloat(s.RiskPerTrade),
			ScaleFactor:  decimal.NewFromFloat(s.SizingScaleFactor),
		},
		Breaker: risk.CircuitBreakerConfig{
			MaxConsecutiveErrors: int64(cfg.Execution.MaxConsecutiveErrors),
		},
	}
}
