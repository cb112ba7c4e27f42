// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"signal-enginev1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	HTTPAddr      string
	MetricsAddr   string
	LogLevel      string

	// Strategy defaults; instruments override per row.
	ShortSpan      int
	LongSpan       int
	CandleCount    int
	TrailingWindow int
	Interval       string
	MarketTZ       string
	StrictParsing  bool

	// Evaluation cadence (6-field cron spec, seconds first).
	EvalCron string

	// ForceSignal overrides every computed signal when set to BUY or SELL.
	// Manual test hook; leave empty in production.
	ForceSignal string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is merged in first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		AngelAPIKey:     mustEnv("ANGEL_API_KEY"),
		AngelClientCode: mustEnv("ANGEL_CLIENT_CODE"),
		AngelPassword:   mustEnv("ANGEL_PASSWORD"),
		AngelTOTPSecret: mustEnv("ANGEL_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/instruments.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ShortSpan:      getEnvInt("SHORT_SPAN", 9),
		LongSpan:       getEnvInt("LONG_SPAN", 21),
		CandleCount:    getEnvInt("CANDLE_COUNT", 100),
		TrailingWindow: getEnvInt("TRAILING_WINDOW", 5),
		Interval:       getEnv("INTERVAL", "ONE_MINUTE"),
		MarketTZ:       getEnv("MARKET_TZ", "Asia/Kolkata"),
		StrictParsing:  getEnvBool("STRICT_PARSING", false),

		EvalCron: getEnv("EVAL_CRON", "0 * * * * *"),

		ForceSignal: getEnv("FORCE_SIGNAL", ""),
	}
}

// Location resolves MarketTZ, falling back to a fixed IST zone when the
// tzdata lookup fails (stripped containers).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTZ)
	if err != nil {
		log.Printf("[config] cannot load timezone %q, using fixed IST: %v", c.MarketTZ, err)
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// ForcedAction validates ForceSignal, returning "" for anything but BUY or
// SELL.
func (c *Config) ForcedAction() model.Action {
	switch model.Action(c.ForceSignal) {
	case model.ActionBuy, model.ActionSell:
		return model.Action(c.ForceSignal)
	default:
		if c.ForceSignal != "" {
			log.Printf("[config] ignoring invalid FORCE_SIGNAL %q", c.ForceSignal)
		}
		return ""
	}
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

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return b
}
