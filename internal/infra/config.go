package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	GeoIPDBPath string
	JWTSecret   string

	// Background loop intervals. Loops add jitter on top of these.
	ReconcileInterval time.Duration
	ReapInterval      time.Duration
	ProviderPollDelay time.Duration

	// StaleAfter is how long a job may sit in pending before the reaper
	// fails it.
	StaleAfter time.Duration

	// RetentionDays controls the daily terminal-job sweep. Zero disables it.
	RetentionDays int

	// CapacityWaitTimeout bounds the blocking account-picker variant.
	CapacityWaitTimeout  time.Duration
	CapacityWaitInterval time.Duration

	// MaxDispatchAttempts bounds promoter retries of a failing dispatch.
	MaxDispatchAttempts int

	// SlowModels lists model ids that always classify as slow.
	SlowModels []string

	DashScopeAPIKey  string
	DashScopeBaseURL string
	DashScopeModels  []string
	FalAPIKey        string
	FalBaseURL       string
	FalModels        []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		GeoIPDBPath:          os.Getenv("GEOIP_DB_PATH"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 15*time.Second),
		ReapInterval:         getEnvDuration("REAP_INTERVAL", 5*time.Minute),
		ProviderPollDelay:    getEnvDuration("PROVIDER_POLL_DELAY", 500*time.Millisecond),
		StaleAfter:           getEnvDuration("STALE_AFTER", 45*time.Minute),
		RetentionDays:        getEnvInt("RETENTION_DAYS", 0),
		CapacityWaitTimeout:  getEnvDuration("CAPACITY_WAIT_TIMEOUT", 30*time.Second),
		CapacityWaitInterval: getEnvDuration("CAPACITY_WAIT_INTERVAL", 2*time.Second),
		MaxDispatchAttempts:  getEnvInt("MAX_DISPATCH_ATTEMPTS", 5),
		SlowModels:           getEnvList("SLOW_MODELS", nil),
		DashScopeAPIKey:      os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL:     getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
		DashScopeModels:      getEnvList("DASHSCOPE_MODELS", []string{"wanx2.1-t2i-turbo", "wanx2.1-t2v-turbo"}),
		FalAPIKey:            os.Getenv("FAL_API_KEY"),
		FalBaseURL:           getEnv("FAL_BASE_URL", "https://queue.fal.run"),
		FalModels:            getEnvList("FAL_MODELS", []string{"fal-ai/flux/dev", "fal-ai/kling-video/v1/standard"}),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("STALE_AFTER must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
