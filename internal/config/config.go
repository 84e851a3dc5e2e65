// Package config loads runtime configuration for the decision and
// execution pipeline from environment variables, with an optional .env
// file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable the orchestrator and its components need.
type Config struct {
	DataDir       string
	StateFilePath string
	HealthLogDir  string
	AuditLogDir   string

	Watchlist []string

	DailyInvestment      float64
	PaperTrading         bool
	EnableBrokerFailover bool

	YFinanceMaxRetries         int
	YFinanceTimeoutSecs        int
	YFinanceInitialBackoffSecs int

	AlpacaAPIKey             string
	AlpacaAPISecret          string
	AlpacaBaseURL            string
	AlpacaMaxRetries         int
	AlpacaInitialBackoffSecs int

	AlphaVantageAPIKey      string
	AlphaVantageMaxPerDay   int
	AlphaVantageMinInterval int
	AlphaVantageMaxRetries  int
	AlphaVantageBackoffSecs int

	CacheTTLSeconds int
	CacheMaxAgeDays int
	CacheDiskDir    string

	CircuitFailThreshold   int
	CircuitCooldownSeconds int
	CircuitDailyLossPct    float64
	CircuitMaxConsecLosses int
	CircuitMaxAPIErrors    int

	ExecutorMaxRetries         int
	ExecutorInitialBackoffSecs int

	RiskBasePercent        float64
	RiskMaxPositionPercent float64
	RiskKellyFractionCap   float64
	RiskTargetVolatility   float64

	StateExpiryHours int

	TradernetAPIKey    string
	TradernetAPISecret string
	TradernetBaseURL   string
	TradernetWSURL     string

	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeoutSecs int

	AuditS3Bucket string
	AuditS3Region          string
	AuditS3Endpoint        string
	AuditS3AccessKeyID     string
	AuditS3SecretAccessKey string

	HTTPStatusAddr string

	LogLevel string
	LogPretty bool
}

// Load reads configuration from the environment, optionally seeded by a
// .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		DataDir:       dataDir,
		StateFilePath: getEnv("STATE_FILE_PATH", dataDir+"/state.json"),
		HealthLogDir:  getEnv("HEALTH_LOG_DIR", dataDir+"/health"),
		AuditLogDir:   getEnv("AUDIT_LOG_DIR", dataDir+"/audit"),

		Watchlist: getEnvAsList("WATCHLIST", []string{"SPY", "QQQ", "IWM"}),

		DailyInvestment:      getEnvAsFloat("DAILY_INVESTMENT", 100.0),
		PaperTrading:         getEnvAsBool("PAPER_TRADING", true),
		EnableBrokerFailover: getEnvAsBool("ENABLE_BROKER_FAILOVER", true),

		YFinanceMaxRetries:         getEnvAsInt("YFINANCE_MAX_RETRIES", 3),
		YFinanceTimeoutSecs:        getEnvAsInt("YFINANCE_TIMEOUT_SECONDS", 10),
		YFinanceInitialBackoffSecs: getEnvAsInt("YFINANCE_INITIAL_BACKOFF_SECONDS", 1),

		AlpacaAPIKey:             getEnv("ALPACA_API_KEY", ""),
		AlpacaAPISecret:          getEnv("ALPACA_API_SECRET", ""),
		AlpacaBaseURL:            getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		AlpacaMaxRetries:         getEnvAsInt("ALPACA_MAX_RETRIES", 3),
		AlpacaInitialBackoffSecs: getEnvAsInt("ALPACA_INITIAL_BACKOFF_SECONDS", 1),

		AlphaVantageAPIKey:      getEnv("ALPHAVANTAGE_API_KEY", ""),
		AlphaVantageMaxPerDay:   getEnvAsInt("ALPHAVANTAGE_MAX_PER_DAY", 25),
		AlphaVantageMinInterval: getEnvAsInt("ALPHAVANTAGE_MIN_INTERVAL_SECONDS", 12),
		AlphaVantageMaxRetries:  getEnvAsInt("ALPHAVANTAGE_MAX_RETRIES", 3),
		AlphaVantageBackoffSecs: getEnvAsInt("ALPHAVANTAGE_BACKOFF_SECONDS", 15),

		CacheTTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 900),
		CacheMaxAgeDays: getEnvAsInt("CACHE_MAX_AGE_DAYS", 7),
		CacheDiskDir:    getEnv("CACHE_DISK_DIR", dataDir+"/history"),

		CircuitFailThreshold:   getEnvAsInt("CIRCUIT_FAIL_THRESHOLD", 5),
		CircuitCooldownSeconds: getEnvAsInt("CIRCUIT_COOLDOWN_SECONDS", 300),
		CircuitDailyLossPct:    getEnvAsFloat("CIRCUIT_DAILY_LOSS_PCT", -0.02),
		CircuitMaxConsecLosses: getEnvAsInt("CIRCUIT_MAX_CONSEC_LOSSES", 3),
		CircuitMaxAPIErrors:    getEnvAsInt("CIRCUIT_MAX_API_ERRORS", 5),

		ExecutorMaxRetries:         getEnvAsInt("EXECUTOR_MAX_RETRIES", 2),
		ExecutorInitialBackoffSecs: getEnvAsInt("EXECUTOR_INITIAL_BACKOFF_SECONDS", 1),

		RiskBasePercent:        getEnvAsFloat("RISK_BASE_PCT", 0.02),
		RiskMaxPositionPercent: getEnvAsFloat("RISK_MAX_POSITION_PERCENT", 0.10),
		RiskKellyFractionCap:   getEnvAsFloat("RISK_KELLY_SAFETY", 0.25),
		RiskTargetVolatility:   getEnvAsFloat("RISK_TARGET_VOLATILITY", 0.16),

		StateExpiryHours: getEnvAsInt("STATE_EXPIRY_HOURS", 72),

		TradernetAPIKey:    getEnv("TRADERNET_API_KEY", ""),
		TradernetAPISecret: getEnv("TRADERNET_API_SECRET", ""),
		TradernetBaseURL:   getEnv("TRADERNET_BASE_URL", "http://localhost:8001"),
		TradernetWSURL:     getEnv("TRADERNET_WS_URL", ""),

		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSecs: getEnvAsInt("LLM_TIMEOUT_SECONDS", 20),

		AuditS3Bucket:          getEnv("AUDIT_S3_BUCKET", ""),
		AuditS3Region:          getEnv("AUDIT_S3_REGION", "us-east-1"),
		AuditS3Endpoint:        getEnv("AUDIT_S3_ENDPOINT", ""),
		AuditS3AccessKeyID:     getEnv("AUDIT_S3_ACCESS_KEY_ID", ""),
		AuditS3SecretAccessKey: getEnv("AUDIT_S3_SECRET_ACCESS_KEY", ""),

		HTTPStatusAddr: getEnv("HTTP_STATUS_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks for configuration combinations that would make a run
// unsafe to start.
func (c *Config) Validate() error {
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("WATCHLIST must name at least one symbol")
	}
	if c.DailyInvestment <= 0 {
		return fmt.Errorf("DAILY_INVESTMENT must be positive")
	}
	if !c.PaperTrading && c.TradernetAPIKey == "" {
		return fmt.Errorf("TRADERNET_API_KEY is required when PAPER_TRADING=false")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
