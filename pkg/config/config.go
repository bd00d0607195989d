// Package config 加载机器人配置。
//
// 优先级：环境变量 > 配置文件 > 默认值。敏感项（API key）不写进
// 配置文件，从环境变量读取，缺失时回退到加密凭证库；.env 由 main
// 里的 godotenv 加载。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/aakaka525-design/auto-trade/pkg/secretstore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// VenueConfig 交易所接入配置
type VenueConfig struct {
	Name          string `yaml:"name"` // lighter 或 paper
	BaseURL       string `yaml:"base_url"`
	WsURL         string `yaml:"ws_url"`
	AccountID     int64  `yaml:"account_id"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	MaxReconnects int    `yaml:"max_reconnects"`

	// APIKey 只从环境变量 LIGHTER_API_KEY 读取
	APIKey string `yaml:"-"`
}

// EngineConfig 执行引擎配置
type EngineConfig struct {
	Workers            int     `yaml:"workers"`
	QueueSize          int     `yaml:"queue_size"`
	PlaceWeight        float64 `yaml:"place_weight"`
	CancelWeight       float64 `yaml:"cancel_weight"`
	QueryWeight        float64 `yaml:"query_weight"`
	OrderTTLSec        int     `yaml:"order_ttl_sec"`
	CleanupIntervalSec int     `yaml:"cleanup_interval_sec"`
	CleanupGraceSec    int     `yaml:"cleanup_grace_sec"`
	PendingFillTTLSec  int     `yaml:"pending_fill_ttl_sec"`
	AssumeFilledOnAck  bool    `yaml:"assume_filled_on_ack"`
}

// RiskConfig 风控配置（数值用字符串承载，避免 YAML 浮点精度问题）
type RiskConfig struct {
	MaxPositionPerSymbol string `yaml:"max_position_per_symbol"`
	MaxOrderNotional     string `yaml:"max_order_notional"`
	MaxConsecutiveLosses int    `yaml:"max_consecutive_losses"`
	DailyLossLimit       string `yaml:"daily_loss_limit"`
	CooldownSec          int    `yaml:"cooldown_sec"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Capacity   float64 `yaml:"capacity"`
	RefillRate float64 `yaml:"refill_rate"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxRetries  int  `yaml:"max_retries"`
	BaseDelayMs int  `yaml:"base_delay_ms"`
	MaxDelaySec int  `yaml:"max_delay_sec"`
	Jitter      bool `yaml:"jitter"`
}

// PersistenceConfig 持久化配置
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // json 或 badger
	Dir     string `yaml:"dir"`
}

// SecretsConfig 加密凭证库配置。path 非空时，环境变量里找不到的
// 敏感项会从凭证库读取（由 secret-init 命令导入）。
type SecretsConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config 应用配置
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Venue       VenueConfig       `yaml:"venue"`
	Engine      EngineConfig      `yaml:"engine"`
	Risk        RiskConfig        `yaml:"risk"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			File:       "logs/trade.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Venue: VenueConfig{
			Name:          "paper",
			TimeoutSec:    15,
			MaxReconnects: 10,
		},
		Engine: EngineConfig{
			Workers:            4,
			QueueSize:          256,
			PlaceWeight:        6,
			CancelWeight:       6,
			QueryWeight:        300,
			CleanupIntervalSec: 60,
			CleanupGraceSec:    600,
			PendingFillTTLSec:  120,
		},
		Risk: RiskConfig{
			MaxPositionPerSymbol: "10",
			MaxOrderNotional:     "10000",
			MaxConsecutiveLosses: 5,
			DailyLossLimit:       "500",
			CooldownSec:          300,
		},
		// 容量必须覆盖最重的单次请求（查单权重 300），否则该请求永远拿不到令牌
		RateLimit: RateLimitConfig{
			Capacity:   600,
			RefillRate: 10,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 200,
			MaxDelaySec: 10,
			Jitter:      true,
		},
		Persistence: PersistenceConfig{
			Backend: "json",
			Dir:     "data",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:6060",
		},
	}
}

// Load 从 YAML 文件加载配置；path 为空时只用默认值加环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := applySecrets(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖（敏感项与部署相关项）
func applyEnv(cfg *Config) {
	cfg.Venue.APIKey = os.Getenv("LIGHTER_API_KEY")
	if v := os.Getenv("LIGHTER_BASE_URL"); v != "" {
		cfg.Venue.BaseURL = v
	}
	if v := os.Getenv("LIGHTER_WS_URL"); v != "" {
		cfg.Venue.WsURL = v
	}
	if v := parseInt64Env("LIGHTER_ACCOUNT_ID"); v != 0 {
		cfg.Venue.AccountID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// applySecrets 环境变量缺失时回退到加密凭证库
func applySecrets(cfg *Config) error {
	if cfg.Venue.APIKey != "" || cfg.Secrets.Path == "" {
		return nil
	}
	key, err := secretstore.ParseKey(os.Getenv("AUTOTRADE_SECRET_KEY"))
	if err != nil {
		return err
	}
	store, err := secretstore.Open(secretstore.Options{
		Path:     cfg.Secrets.Path,
		Key:      key,
		ReadOnly: true,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	val, found, err := store.Get(secretstore.EnvPrefix + "LIGHTER_API_KEY")
	if err != nil {
		return err
	}
	if found {
		cfg.Venue.APIKey = val
	}
	return nil
}

func parseInt64Env(key string) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Validate 校验配置自洽性
func (c *Config) Validate() error {
	switch c.Venue.Name {
	case "paper":
	case "lighter":
		if c.Venue.BaseURL == "" {
			return fmt.Errorf("venue.base_url 不能为空")
		}
		if !c.Engine.AssumeFilledOnAck && c.Venue.WsURL == "" {
			return fmt.Errorf("venue.ws_url 不能为空（或开启 engine.assume_filled_on_ack）")
		}
		if c.Venue.APIKey == "" {
			return fmt.Errorf("缺少环境变量 LIGHTER_API_KEY")
		}
	default:
		return fmt.Errorf("不支持的 venue: %s", c.Venue.Name)
	}

	for name, raw := range map[string]string{
		"risk.max_position_per_symbol": c.Risk.MaxPositionPerSymbol,
		"risk.max_order_notional":      c.Risk.MaxOrderNotional,
		"risk.daily_loss_limit":        c.Risk.DailyLossLimit,
	} {
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("%s 不是合法数值: %q", name, raw)
		}
	}

	switch c.Persistence.Backend {
	case "json", "badger":
	default:
		return fmt.Errorf("不支持的持久化后端: %s", c.Persistence.Backend)
	}
	return nil
}

// RiskDecimal 读取风控配置中的数值项（Validate 之后调用不会失败）
func (c *Config) RiskDecimal(raw string) decimal.Decimal {
	v, _ := decimal.NewFromString(raw)
	return v
}

// Duration 辅助
func (c *EngineConfig) OrderTTL() time.Duration {
	return time.Duration(c.OrderTTLSec) * time.Second
}

func (c *EngineConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

func (c *EngineConfig) CleanupGrace() time.Duration {
	return time.Duration(c.CleanupGraceSec) * time.Second
}

func (c *EngineConfig) PendingFillTTL() time.Duration {
	return time.Duration(c.PendingFillTTLSec) * time.Second
}

func (c *RiskConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

func (c *RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySec) * time.Second
}

func (c *VenueConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
