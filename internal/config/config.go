package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	FAQ      FAQConfig
	Notify   NotifyConfig
	Relay    RelayConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines credential parameters.
type AuthConfig struct {
	JWTSecret            string
	CredentialTTLMinutes int
}

// FAQConfig selects and configures the automated answer pipeline.
type FAQConfig struct {
	AnswersFile  string
	Provider     string
	OpenAIAPIKey string
	OpenAIModel  string
}

// NotifyConfig configures the outbound notification channel.
type NotifyConfig struct {
	OutboxPrefix string
}

// RelayConfig bounds long-poll behavior.
type RelayConfig struct {
	MaxWaitSeconds    int
	BufferIdleMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "escalation-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 45),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", "dev-secret"),
			CredentialTTLMinutes: getEnvAsInt("AUTH_CREDENTIAL_TTL_MINUTES", 60),
		},
		FAQ: FAQConfig{
			AnswersFile:  getEnv("FAQ_ANSWERS_FILE", "answers.md"),
			Provider:     getEnv("FAQ_PROVIDER", "markdown"),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:  getEnv("FAQ_OPENAI_MODEL", "gpt-4o-mini"),
		},
		Notify: NotifyConfig{
			OutboxPrefix: getEnv("NOTIFY_OUTBOX_PREFIX", "relay:outbox"),
		},
		Relay: RelayConfig{
			MaxWaitSeconds:    getEnvAsInt("RELAY_MAX_WAIT_SECONDS", 20),
			BufferIdleMinutes: getEnvAsInt("RELAY_BUFFER_IDLE_MINUTES", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// MaxWait returns the upper bound a single long-poll may block for.
func (r RelayConfig) MaxWait() time.Duration {
	if r.MaxWaitSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(r.MaxWaitSeconds) * time.Second
}

// BufferIdle returns how long an untouched ticket buffer stays cached.
func (r RelayConfig) BufferIdle() time.Duration {
	if r.BufferIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(r.BufferIdleMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
