package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port               string
	Env                string // development, staging, production, test
	ServerWriteTimeout time.Duration

	// Upstream services
	LLM        LLMConfig
	JobService JobServiceConfig
	Token      TokenConfig

	// Optional infrastructure
	Database DatabaseConfig
	Redis    RedisConfig

	// Screening policy (YAML, optional)
	PolicyFile string

	// Logging
	LogLevel  string
	LogFormat string
}

// LLMConfig holds the OpenAI-compatible chat API configuration.
// Per-request settings from the caller take precedence over these values.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TranslateModel string
	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 = unlimited
	RateBurst      int
}

// JobServiceConfig holds the stock-screening job service configuration.
// The base URL is never overridable by the caller.
type JobServiceConfig struct {
	BaseURL         string
	SubmitPath      string
	StatusPath      string // {taskId} placeholder, empty disables synthesis
	ResultPath      string // {taskId} placeholder, empty disables synthesis
	SymbolTimeout   time.Duration
	UniverseTimeout time.Duration
	PollTimeout     time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimit       int // submissions per minute (Redis), 0 = unlimited
	WarmupSchedule  string
	ResultCacheTTL  time.Duration
}

// TokenConfig controls continuation token encoding
type TokenConfig struct {
	Secret       string
	TTL          time.Duration
	StrictOrigin bool
}

// DatabaseConfig holds PostgreSQL configuration (run history)
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled returns whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RedisConfig holds Redis configuration. URL (redis:// or rediss://) takes
// precedence over the host/port fields; setting it also enables Redis.
type RedisConfig struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		ServerWriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "16m"),

		LLM: LLMConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
			Model:          getEnv("OPENAI_MODEL", "qwen3-plus"),
			TranslateModel: getEnv("TRANSLATE_MODEL", "qwen-mt-turbo"),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", "2m"),
			RateLimit:      getEnvAsFloat("LLM_RATE_LIMIT", 5),
			RateBurst:      getEnvAsInt("LLM_RATE_BURST", 10),
		},

		JobService: JobServiceConfig{
			BaseURL:         strings.TrimRight(getEnv("JOB_SERVICE_URL", getEnv("PYTHON_SERVICE_URL", "https://stock-service-vi7q.onrender.com")), "/"),
			SubmitPath:      getEnv("JOB_SERVICE_SUBMIT_PATH", "/api/stock-analysis"),
			StatusPath:      getEnvAllowEmpty("JOB_SERVICE_STATUS_PATH", "/api/stock-analysis/tasks/{taskId}"),
			ResultPath:      getEnvAllowEmpty("JOB_SERVICE_RESULT_PATH", "/api/stock-analysis/tasks/{taskId}/result"),
			SymbolTimeout:   getEnvAsDuration("JOB_SERVICE_SYMBOL_TIMEOUT", "3m"),
			UniverseTimeout: getEnvAsDuration("JOB_SERVICE_UNIVERSE_TIMEOUT", "15m"),
			PollTimeout:     getEnvAsDuration("JOB_SERVICE_POLL_TIMEOUT", "30s"),
			MaxRetries:      getEnvAsInt("JOB_SERVICE_MAX_RETRIES", 2),
			RetryDelay:      getEnvAsDuration("JOB_SERVICE_RETRY_DELAY", "2s"),
			RateLimit:       getEnvAsInt("JOB_SERVICE_RATE_LIMIT", 0),
			WarmupSchedule:  getEnvAllowEmpty("JOB_SERVICE_WARMUP_SCHEDULE", "0 */10 * * * *"),
			ResultCacheTTL:  getEnvAsDuration("JOB_SERVICE_RESULT_CACHE_TTL", "10m"),
		},

		Token: TokenConfig{
			Secret:       getEnv("POLL_TOKEN_SECRET", ""),
			TTL:          getEnvAsDuration("POLL_TOKEN_TTL", "1h"),
			StrictOrigin: getEnvAsBool("POLL_TOKEN_STRICT_ORIGIN", false),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 5),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", os.Getenv("REDIS_URL") != ""),
		},

		PolicyFile: getEnv("SCREENING_POLICY_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required values and ranges
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	u, err := url.Parse(c.JobService.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("JOB_SERVICE_URL must be an absolute http(s) URL, got %q", c.JobService.BaseURL)
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}

	if c.JobService.SymbolTimeout <= 0 || c.JobService.UniverseTimeout <= 0 || c.JobService.PollTimeout <= 0 {
		return fmt.Errorf("job service timeouts must be positive")
	}

	if c.JobService.MaxRetries < 0 {
		return fmt.Errorf("JOB_SERVICE_MAX_RETRIES must not be negative")
	}

	if c.Token.Secret != "" && len(c.Token.Secret) < 16 {
		return fmt.Errorf("POLL_TOKEN_SECRET must be at least 16 characters")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes "unset" from "set to empty" so a path
// template can be switched off explicitly.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
