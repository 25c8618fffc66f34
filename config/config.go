package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine configuration loaded from environment variables.
type Config struct {
	// Trading
	TradingMode    string // PAPER or REAL
	StartingFunds  int64  // paise, seed for a fresh paper ledger
	SlippageMaxBps int64  // max simulated slippage in basis points
	EvalDelayMin   time.Duration
	EvalDelayMax   time.Duration

	// Angel One credentials, required only in REAL mode.
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string
	BrokerTimeout   time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	TickWSURL     string
	MetricsAddr   string
	APIAddr       string

	// Pre-trade risk limits. Zero disables a check.
	RiskMaxOrderQty      int64
	RiskMaxOrderValue    int64 // paise
	RiskMaxOpenPositions int64
	RiskMaxExposure      int64 // paise

	// Notifications (optional)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		TradingMode:    strings.ToUpper(getEnv("TRADING_MODE", "PAPER")),
		StartingFunds:  getEnvInt64("STARTING_FUNDS", 10_000_000_00), // 10 lakh rupees in paise
		SlippageMaxBps: getEnvInt64("SLIPPAGE_MAX_BPS", 5),
		EvalDelayMin:   getEnvMillis("EVAL_DELAY_MIN_MS", 200),
		EvalDelayMax:   getEnvMillis("EVAL_DELAY_MAX_MS", 1500),

		BrokerTimeout: getEnvMillis("BROKER_TIMEOUT_MS", 5000),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/simengine.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/trades.db"),
		TickWSURL:     getEnv("TICK_WS_URL", "ws://localhost:8081/ticks"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		RiskMaxOrderQty:      getEnvInt64("RISK_MAX_ORDER_QTY", 0),
		RiskMaxOrderValue:    getEnvInt64("RISK_MAX_ORDER_VALUE", 0),
		RiskMaxOpenPositions: getEnvInt64("RISK_MAX_OPEN_POSITIONS", 0),
		RiskMaxExposure:      getEnvInt64("RISK_MAX_EXPOSURE", 0),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}

	if cfg.TradingMode != "PAPER" && cfg.TradingMode != "REAL" {
		log.Fatalf("[config] TRADING_MODE must be PAPER or REAL, got %q", cfg.TradingMode)
	}
	if cfg.EvalDelayMax < cfg.EvalDelayMin {
		log.Fatalf("[config] EVAL_DELAY_MAX_MS (%v) < EVAL_DELAY_MIN_MS (%v)", cfg.EvalDelayMax, cfg.EvalDelayMin)
	}

	// Broker credentials are only exercised on the live path.
	if cfg.TradingMode == "REAL" {
		cfg.AngelAPIKey = mustEnv("ANGEL_API_KEY")
		cfg.AngelClientCode = mustEnv("ANGEL_CLIENT_CODE")
		cfg.AngelPassword = mustEnv("ANGEL_PASSWORD")
		cfg.AngelTOTPSecret = mustEnv("ANGEL_TOTP_SECRET")
	}

	return cfg
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("[config] %s: invalid integer %q", key, v)
	}
	return n
}

func getEnvMillis(key string, fallback int64) time.Duration {
	return time.Duration(getEnvInt64(key, fallback)) * time.Millisecond
}
