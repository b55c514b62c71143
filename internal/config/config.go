package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay. It is loaded once at
// start and never mutated afterwards.
type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	Relay    RelayConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
}

// AppConfig controls the HTTP side of the process.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// TelegramConfig identifies the bot and the chats it bridges.
type TelegramConfig struct {
	BotToken           string
	SupportChannelID   int64
	DiscussionGroupID  int64
	StaffIDs           []int64
	PollTimeoutSeconds int
	Debug              bool
}

// RelayConfig tunes the correlation engine and the command surface.
type RelayConfig struct {
	DescriptionTimeoutSeconds int
	TimezoneOffsetHours       int
	MaxConcurrentUpdates      int
	LockBackend               string
	LockTTLSeconds            int
}

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// StorageConfig selects where tickets and conversations live.
type StorageConfig struct {
	Backend           string
	TrackingFile      string
	ConversationsFile string
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

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	PostCacheTTLHrs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig protects the admin HTTP API. An empty secret disables it.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// KafkaConfig enables the lifecycle event sink when brokers are set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	channelID, err := getEnvAsInt64("SUPPORT_CHANNEL_ID")
	if err != nil {
		return nil, err
	}
	groupID, err := getEnvAsInt64("DISCUSSION_GROUP_ID")
	if err != nil {
		return nil, err
	}
	staffIDs, err := parseIDList(os.Getenv("SUPPORT_STAFF_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUPPORT_STAFF_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-ticket-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Telegram: TelegramConfig{
			BotToken:           os.Getenv("BOT_TOKEN"),
			SupportChannelID:   channelID,
			DiscussionGroupID:  groupID,
			StaffIDs:           staffIDs,
			PollTimeoutSeconds: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 60),
			Debug:              getEnvAsBool("TELEGRAM_DEBUG", false),
		},
		Relay: RelayConfig{
			DescriptionTimeoutSeconds: getEnvAsInt("DESCRIPTION_TIMEOUT_SECONDS", 300),
			TimezoneOffsetHours:       getEnvAsInt("TIMEZONE_OFFSET_HOURS", 7),
			MaxConcurrentUpdates:      getEnvAsInt("MAX_CONCURRENT_UPDATES", 64),
			LockBackend:               strings.ToLower(getEnv("LOCK_BACKEND", LockLocal)),
			LockTTLSeconds:            getEnvAsInt("LOCK_TTL_SECONDS", 30),
		},
		Storage: StorageConfig{
			Backend:           strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
			TrackingFile:      getEnv("TRACKING_FILE", "Database/message_tracking.json"),
			ConversationsFile: getEnv("CONVERSATIONS_FILE", "Database/conversations.json"),
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
			Addr:            os.Getenv("REDIS_ADDR"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			PostCacheTTLHrs: getEnvAsInt("REDIS_POST_CACHE_TTL_HOURS", 24*30),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "support-ticket-events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the relay cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.Telegram.SupportChannelID == 0 {
		errs = append(errs, errors.New("SUPPORT_CHANNEL_ID is required"))
	}
	if c.Telegram.DiscussionGroupID == 0 {
		errs = append(errs, errors.New("DISCUSSION_GROUP_ID is required"))
	}
	if len(c.Telegram.StaffIDs) == 0 {
		errs = append(errs, errors.New("SUPPORT_STAFF_IDS must list at least one staff id"))
	}
	switch c.Storage.Backend {
	case StorageFile:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	switch c.Relay.LockBackend {
	case LockLocal:
	case LockRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.Relay.LockBackend))
	}
	return errors.Join(errs...)
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

// DescriptionTimeout bounds the wait for a ticket description.
func (r RelayConfig) DescriptionTimeout() time.Duration {
	if r.DescriptionTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(r.DescriptionTimeoutSeconds) * time.Second
}

// LockTTL is the expiry of a distributed per-user lock.
func (r RelayConfig) LockTTL() time.Duration {
	if r.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.LockTTLSeconds) * time.Second
}

// PostCacheTTL is how long channel post contents are kept in Redis.
func (r RedisConfig) PostCacheTTL() time.Duration {
	return time.Duration(r.PostCacheTTLHrs) * time.Hour
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

func getEnvAsInt64(key string) (int64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseIDList(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
