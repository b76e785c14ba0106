package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Tickets      TicketConfig
	Catalog      CatalogConfig
	Images       ImageConfig
	Settings     SettingsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	StaticDir             string
}

// PostgresConfig holds DB connection values. An empty DSN selects the SQLite store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values. An empty Addr keeps sessions in memory.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines the shared admin secret and the admin chat identities.
type AuthConfig struct {
	BotToken   string
	AdminToken string
	AdminIDs   []int64
}

// NotificationConfig holds outbound chat delivery settings.
type NotificationConfig struct {
	WebhookURL     string
	Timeout        time.Duration
	SupportChatID  int64
	ReferralChatID int64
	ReviewChatID   int64
}

// TicketConfig holds the inactivity and retention policy.
type TicketConfig struct {
	SoftPromptTimeout time.Duration
	HardCloseTimeout  time.Duration
	SnoozeDuration    time.Duration
	RetentionDays     int
	SweepSchedule     string
	RetentionSchedule string
}

// CatalogConfig drives the refresh coordinator and its fetcher.
type CatalogConfig struct {
	MirrorPath       string
	RefreshSchedule  string
	FailureCooldown  time.Duration
	SourceURL        string
	SourceExpression string
	ChromePath       string
	FetchTimeout     time.Duration
	ImagePathPrefix  string
}

// ImageConfig drives the image proxy.
type ImageConfig struct {
	CacheDir     string
	Origin       string
	FetchTimeout time.Duration
	MinBytes     int
}

// SettingsConfig locates the webapp settings mirror.
type SettingsConfig struct {
	FilePath string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	adminIDs, err := parseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "orderdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			StaticDir:             os.Getenv("STATIC_DIR"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("DB_FILE", "bot_database.db"),
		},
		Redis: RedisConfig{
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			BotToken:   os.Getenv("BOT_TOKEN"),
			AdminToken: os.Getenv("ADMIN_TOKEN"),
			AdminIDs:   adminIDs,
		},
		Notification: NotificationConfig{
			WebhookURL:     os.Getenv("NOTIFY_WEBHOOK_URL"),
			Timeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			SupportChatID:  getEnvAsInt64("SUPPORT_GROUP_ID", 0),
			ReferralChatID: getEnvAsInt64("REFERRAL_CHAT_ID", 0),
			ReviewChatID:   getEnvAsInt64("REVIEW_CHANNEL_ID", 0),
		},
		Tickets: TicketConfig{
			SoftPromptTimeout: getEnvAsDuration("TICKET_PROMPT_AFTER", 24*time.Hour),
			HardCloseTimeout:  getEnvAsDuration("TICKET_CLOSE_AFTER", 14*24*time.Hour),
			SnoozeDuration:    getEnvAsDuration("TICKET_SNOOZE", 4*time.Hour),
			RetentionDays:     getEnvAsInt("RETENTION_DAYS", 15),
			SweepSchedule:     getEnv("TICKET_SWEEP_SCHEDULE", "@every 1m"),
			RetentionSchedule: getEnv("TICKET_RETENTION_SCHEDULE", "@every 24h"),
		},
		Catalog: CatalogConfig{
			MirrorPath:       getEnv("CATALOG_MIRROR_PATH", "scraped_products.json"),
			RefreshSchedule:  getEnv("CATALOG_REFRESH_SCHEDULE", "@every 6h"),
			FailureCooldown:  getEnvAsDuration("CATALOG_FAILURE_COOLDOWN", time.Hour),
			SourceURL:        os.Getenv("CATALOG_SOURCE_URL"),
			SourceExpression: getEnv("CATALOG_SOURCE_EXPRESSION", "window.__CATALOG__"),
			ChromePath:       os.Getenv("CHROME_PATH"),
			FetchTimeout:     getEnvAsDuration("CATALOG_FETCH_TIMEOUT", 10*time.Minute),
			ImagePathPrefix:  getEnv("CATALOG_IMAGE_PATH_PREFIX", "/uploads/products/"),
		},
		Images: ImageConfig{
			CacheDir:     getEnv("IMAGE_CACHE_DIR", "cached_images"),
			Origin:       getEnv("IMAGE_ORIGIN", "https://chadsflooring.bz"),
			FetchTimeout: getEnvAsDuration("IMAGE_FETCH_TIMEOUT", 15*time.Second),
			MinBytes:     getEnvAsInt("IMAGE_MIN_BYTES", 500),
		},
		Settings: SettingsConfig{
			FilePath: getEnv("SETTINGS_FILE", "webapp_settings.json"),
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

// IsAdmin reports whether the chat identity belongs to staff.
func (a AuthConfig) IsAdmin(userID int64) bool {
	for _, id := range a.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
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

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
