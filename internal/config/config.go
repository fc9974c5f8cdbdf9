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
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Lifecycle    LifecycleConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	APIPrefix             string
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

	// ConnectAttempts bounds startup retries while the database comes up.
	ConnectAttempts int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// EventsChannel is the pub/sub channel ticket events are mirrored to.
	EventsChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
	Service     string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string

	// Workers > 0 moves delivery onto a background queue of QueueSize events.
	Workers   int
	QueueSize int
}

// SLAConfig drives due dates, the overdue sweep and stats caching.
type SLAConfig struct {
	AutoDueDate          bool
	WorkStartHour        int
	WorkEndHour          int
	Workdays             []time.Weekday
	Holidays             []string
	Location             *time.Location
	SweepSchedule        string
	StatsRefreshSchedule string
	StatsCacheTTLSeconds int
}

// LifecycleConfig holds state machine policy switches.
type LifecycleConfig struct {
	AssignPromotesOpen bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	location, err := time.LoadLocation(getEnv("SLA_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_TIMEZONE: %w", err)
	}
	workdays, err := parseWeekdays(getEnvAsList("SLA_WORKDAYS", []string{"mon", "tue", "wed", "thu", "fri"}))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_WORKDAYS: %w", err)
	}
	workStart := getEnvAsInt("SLA_WORK_START_HOUR", 9)
	workEnd := getEnvAsInt("SLA_WORK_END_HOUR", 17)
	if workStart < 0 || workEnd > 24 || workStart >= workEnd {
		return nil, fmt.Errorf("invalid SLA work hours %d-%d", workStart, workEnd)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			APIPrefix:             strings.TrimRight(getEnv("APP_API_PREFIX", "/api/v1/support"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,

			ConnectAttempts: getEnvAsInt("POSTGRES_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "support-desk:events"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: getEnv("APP_ENV", "development") != "production",
			Service:     getEnv("APP_NAME", "support-desk"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_ISSUER", "support-desk"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Workers:    getEnvAsInt("NOTIFY_WORKERS", 2),
			QueueSize:  getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
		SLA: SLAConfig{
			AutoDueDate:          getEnvAsBool("SLA_AUTO_DUE_DATE", true),
			WorkStartHour:        workStart,
			WorkEndHour:          workEnd,
			Workdays:             workdays,
			Holidays:             getEnvAsList("SLA_HOLIDAYS", nil),
			Location:             location,
			SweepSchedule:        getEnv("SLA_SWEEP_SCHEDULE", "@every 5m"),
			StatsRefreshSchedule: getEnv("SLA_STATS_REFRESH_SCHEDULE", "@every 1m"),
			StatsCacheTTLSeconds: getEnvAsInt("SLA_STATS_CACHE_TTL_SECONDS", 60),
		},
		Lifecycle: LifecycleConfig{
			AssignPromotesOpen: getEnvAsBool("LIFECYCLE_ASSIGN_PROMOTES_OPEN", true),
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

// WorkStart returns the start of the working day as an offset from midnight.
func (s SLAConfig) WorkStart() time.Duration {
	return time.Duration(s.WorkStartHour) * time.Hour
}

// WorkEnd returns the end of the working day as an offset from midnight.
func (s SLAConfig) WorkEnd() time.Duration {
	return time.Duration(s.WorkEndHour) * time.Hour
}

// StatsCacheTTL returns how long a cached stats snapshot stays fresh.
func (s SLAConfig) StatsCacheTTL() time.Duration {
	if s.StatsCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.StatsCacheTTLSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdays[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		out = append(out, d)
	}
	return out, nil
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
