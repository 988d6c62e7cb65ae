package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/pkg/logger"
)

// 执行模式
const (
	ExecutionPaper = "paper"
	ExecutionREST  = "rest"
)

// StrategyConfig 配对策略参数（默认值与原始常量一致）
type StrategyConfig struct {
	EntryThreshold      float64 `yaml:"entry_threshold" json:"entry_threshold"`             // 开仓 z 阈值，默认 3
	TakeProfitThreshold float64 `yaml:"take_profit_threshold" json:"take_profit_threshold"` // 均值回归平仓阈值，默认 0.2
	StopLossThreshold   float64 `yaml:"stop_loss_threshold" json:"stop_loss_threshold"`     // 止损阈值，默认 4
	RollingWindowSize   int     `yaml:"rolling_window_size" json:"rolling_window_size"`     // 滚动窗口 N，默认 50
	RiskPerTrade        float64 `yaml:"risk_per_trade" json:"risk_per_trade"`               // 单笔风险占比，默认 0.02
	SizingScaleFactor   float64 `yaml:"sizing_scale_factor" json:"sizing_scale_factor"`     // 下单数量缩放，默认 10
	TotalCapital        float64 `yaml:"total_capital" json:"total_capital"`                 // 总资金（USDC），默认 50
}

// PriceFeedConfig 价格源配置
type PriceFeedConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	VsToken string        `yaml:"vs_token" json:"vs_token"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RESTConfig REST 下单接口
type RESTConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	OrderPath string        `yaml:"order_path" json:"order_path"`
	APIKey    string        `yaml:"api_key" json:"-"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// ExecutionConfig 执行配置
type ExecutionConfig struct {
	Mode                 string     `yaml:"mode" json:"mode"` // paper | rest
	REST                 RESTConfig `yaml:"rest" json:"rest"`
	MaxConsecutiveErrors int        `yaml:"max_consecutive_errors" json:"max_consecutive_errors"` // 连续执行失败熔断（0=关闭）
}

// TelemetryConfig 遥测输出
type TelemetryConfig struct {
	CSVDir     string `yaml:"csv_dir" json:"csv_dir"`         // 每个配对一个 CSV，空=不写
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"` // 空=不写
}

// Config 运行配置（启动时读取一次，之后只读）
type Config struct {
	Pairs         []domain.Pair   `yaml:"pairs" json:"pairs"`
	Strategy      StrategyConfig  `yaml:"strategy" json:"strategy"`
	PollInterval  time.Duration   `yaml:"poll_interval" json:"poll_interval"`
	PriceFeed     PriceFeedConfig `yaml:"price_feed" json:"price_feed"`
	Execution     ExecutionConfig `yaml:"execution" json:"execution"`
	Telemetry     TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	StorePath     string          `yaml:"store_path" json:"store_path"`
	DashboardAddr string          `yaml:"dashboard_addr" json:"dashboard_addr"` // 空=不启动
	MetricsAddr   string          `yaml:"metrics_addr" json:"metrics_addr"`     // 空=不启动
	Logging       logger.Config   `yaml:"logging" json:"logging"`
}

// Default 默认配置：POPCAT / PNUT，每 5 分钟采样
func Default() *Config {
	return &Config{
		Pairs: []domain.Pair{{
			Name: "popcat-pnut",
			Y:    domain.Instrument{PriceID: "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr", MarketID: "POPCAT-USD"},
			X:    domain.Instrument{PriceID: "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump", MarketID: "PNUT-USD"},
		}},
		Strategy: StrategyConfig{
			EntryThreshold:      3,
			TakeProfitThreshold: 0.2,
			StopLossThreshold:   4,
			RollingWindowSize:   50,
			RiskPerTrade:        0.02,
			SizingScaleFactor:   10,
			TotalCapital:        50,
		},
		PollInterval: 5 * time.Minute,
		PriceFeed: PriceFeedConfig{
			BaseURL: "https://api.jup.ag",
			VsToken: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Timeout: 10 * time.Second,
		},
		Execution: ExecutionConfig{
			Mode: ExecutionPaper,
			REST: RESTConfig{OrderPath: "/orders", Timeout: 10 * time.Second},
		},
		Telemetry: TelemetryConfig{
			CSVDir:     "data",
			SQLitePath: "data/telemetry.db",
		},
		StorePath:     "data/state",
		DashboardAddr: ":3000",
		Logging:       logger.Config{Level: "info", OutputFile: "logs/pairsbot.log"},
	}
}

// Load 加载配置：默认值 → 配置文件 → .env / 环境变量（PAIRSBOT_*），然后校验
func Load(filePath string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, errors.Wrapf(err, "加载配置文件失败 %s", filePath)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），未出现的字段保留默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrap(err, "读取配置文件失败")
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "解析 YAML 配置文件失败")
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "解析 JSON 配置文件失败")
		}
	default:
		return errors.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖（优先级最高）
func applyEnv(c *Config) {
	s := &c.Strategy
	s.EntryThreshold = parseFloatEnv("PAIRSBOT_ENTRY_THRESHOLD", s.EntryThreshold)
	s.TakeProfitThreshold = parseFloatEnv("PAIRSBOT_TAKE_PROFIT_THRESHOLD", s.TakeProfitThreshold)
	s.StopLossThreshold = parseFloatEnv("PAIRSBOT_STOP_LOSS_THRESHOLD", s.StopLossThreshold)
	s.RollingWindowSize = parseIntEnv("PAIRSBOT_ROLLING_WINDOW_SIZE", s.RollingWindowSize)
	s.RiskPerTrade = parseFloatEnv("PAIRSBOT_RISK_PER_TRADE", s.RiskPerTrade)
	s.SizingScaleFactor = parseFloatEnv("PAIRSBOT_SIZING_SCALE_FACTOR", s.SizingScaleFactor)
	s.TotalCapital = parseFloatEnv("PAIRSBOT_TOTAL_CAPITAL", s.TotalCapital)

	c.PollInterval = parseDurationEnv("PAIRSBOT_POLL_INTERVAL", c.PollInterval)
	c.PriceFeed.BaseURL = getEnv("PAIRSBOT_PRICE_FEED_URL", c.PriceFeed.BaseURL)
	c.PriceFeed.VsToken = getEnv("PAIRSBOT_PRICE_FEED_VS_TOKEN", c.PriceFeed.VsToken)

	c.Execution.Mode = strings.ToLower(getEnv("PAIRSBOT_EXECUTION_MODE", c.Execution.Mode))
	c.Execution.REST.BaseURL = getEnv("PAIRSBOT_REST_BASE_URL", c.Execution.REST.BaseURL)
	c.Execution.REST.APIKey = getEnv("PAIRSBOT_REST_API_KEY", c.Execution.REST.APIKey)
	c.Execution.MaxConsecutiveErrors = parseIntEnv("PAIRSBOT_MAX_CONSECUTIVE_ERRORS", c.Execution.MaxConsecutiveErrors)

	c.Telemetry.CSVDir = getEnv("PAIRSBOT_CSV_DIR", c.Telemetry.CSVDir)
	c.Telemetry.SQLitePath = getEnv("PAIRSBOT_SQLITE_PATH", c.Telemetry.SQLitePath)
	c.StorePath = getEnv("PAIRSBOT_STORE_PATH", c.StorePath)
	c.DashboardAddr = getEnv("PAIRSBOT_DASHBOARD_ADDR", c.DashboardAddr)
	c.MetricsAddr = getEnv("PAIRSBOT_METRICS_ADDR", c.MetricsAddr)
	c.Logging.Level = getEnv("PAIRSBOT_LOG_LEVEL", c.Logging.Level)
	c.Logging.OutputFile = getEnv("PAIRSBOT_LOG_FILE", c.Logging.OutputFile)
}

// Validate 验证配置，错误均包装 domain.ErrInvalidConfiguration
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(domain.ErrInvalidConfiguration, format, args...)
	}

	s := c.Strategy
	if !(s.TakeProfitThreshold > 0 && s.TakeProfitThreshold < s.EntryThreshold && s.EntryThreshold < s.StopLossThreshold) {
		return invalid("阈值必须满足 0 < take_profit(%v) < entry(%v) < stop_loss(%v)",
			s.TakeProfitThreshold, s.EntryThreshold, s.StopLossThreshold)
	}
	if s.RollingWindowSize < 2 {
		return invalid("rolling_window_size 必须 >= 2，当前 %d", s.RollingWindowSize)
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 1 {
		return invalid("risk_per_trade 必须在 (0, 1] 之间，当前 %v", s.RiskPerTrade)
	}
	if s.SizingScaleFactor <= 0 {
		return invalid("sizing_scale_factor 必须大于 0")
	}
	if s.TotalCapital <= 0 {
		return invalid("total_capital 必须大于 0")
	}
	if c.PollInterval <= 0 {
		return invalid("poll_interval 必须大于 0")
	}
	if c.Execution.MaxConsecutiveErrors < 0 {
		return invalid("max_consecutive_errors 不能为负数")
	}

	if len(c.Pairs) == 0 {
		return invalid("至少需要配置一个交易对")
	}
	names := make(map[string]struct{}, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Name == "" {
			return invalid("交易对 name 不能为空")
		}
		if _, dup := names[p.Name]; dup {
			return invalid("交易对名称重复: %s", p.Name)
		}
		names[p.Name] = struct{}{}
		if p.Y.PriceID == "" || p.X.PriceID == "" || p.Y.MarketID == "" || p.X.MarketID == "" {
			return invalid("交易对 %s 的 price_id / market_id 不能为空", p.Name)
		}
		if p.Y.PriceID == p.X.PriceID || p.Y.MarketID == p.X.MarketID {
			return invalid("交易对 %s 的 Y 与 X 必须是不同标的", p.Name)
		}
	}

	switch c.Execution.Mode {
	case ExecutionPaper:
	case ExecutionREST:
		if c.Execution.REST.BaseURL == "" {
			return invalid("execution.mode=rest 时 execution.rest.base_url 不能为空")
		}
	default:
		return invalid("未知的执行模式: %s", c.Execution.Mode)
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 解析时长环境变量（例如 5m）
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
