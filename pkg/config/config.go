package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App              AppConfig
	Service          ServiceConfig
	DB               DBConfig
	Redis            RedisConfig
	JWT              JWTConfig
	CheckIn          CheckInConfig
	Booking          BookingConfig
	CheckInRateLimit CheckInRateLimitConfig
	FeatureFlags     FeatureFlagsConfig
	Eventing         EventingConfig
	GCP              GCPConfig
	PubSub           PubSubConfig
	BigQuery         BigQueryConfig
	Stripe           StripeConfig
	Outbox           OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.Stripe.Secret != "" && cfg.Stripe.Environment() != "live" {
		return nil, fmt.Errorf("stripe env must be live when app env is %s", AppEnvProd)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LUGGAGE_APP_ENV" required:"true"`
	Port         string `envconfig:"LUGGAGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LUGGAGE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LUGGAGE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LUGGAGE_LOG_WARN_STACK" default:"false"`
	// CORSOrigins overrides the dashboard origins allowed by the API.
	CORSOrigins []string `envconfig:"LUGGAGE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LUGGAGE_SERVICE_KIND" default:"api"`
	// MetricsAddr exposes /metrics from the background workers; empty disables it.
	MetricsAddr     string        `envconfig:"LUGGAGE_METRICS_ADDR"`
	ShutdownTimeout time.Duration `envconfig:"LUGGAGE_SHUTDOWN_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	DSN string `envconfig:"LUGGAGE_DB_DSN"`
	// SlowQueryThreshold logs statements slower than this at warn; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"LUGGAGE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`

	LegacyHost     string `envconfig:"LUGGAGE_DB_HOST"`
	LegacyPort     int    `envconfig:"LUGGAGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LUGGAGE_DB_USER"`
	LegacyPassword string `envconfig:"LUGGAGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LUGGAGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LUGGAGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUGGAGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUGGAGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUGGAGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUGGAGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUGGAGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LUGGAGE_REDIS_ADDR"`
	Password     string        `envconfig:"LUGGAGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUGGAGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUGGAGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUGGAGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUGGAGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUGGAGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUGGAGE_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"LUGGAGE_REDIS_KEY_PREFIX" default:"ld"`
}

// JWTConfig covers staff bearer tokens issued by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"LUGGAGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUGGAGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LUGGAGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckInConfig covers the QR check-in tokens handed to customers.
type CheckInConfig struct {
	Secret  string        `envconfig:"LUGGAGE_CHECKIN_JWT_SECRET" required:"true"`
	Issuer  string        `envconfig:"LUGGAGE_CHECKIN_JWT_ISSUER" default:"luggage-deposit"`
	TTL     time.Duration `envconfig:"LUGGAGE_CHECKIN_TOKEN_TTL" default:"720h"`
	BaseURL string        `envconfig:"LUGGAGE_CHECKIN_BASE_URL" default:"https://dashboard.luggagedepositrome.com/#/scan"`
}

// URL returns the kiosk scan link for a minted token.
func (c CheckInConfig) URL(token string) string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" || token == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

type BookingConfig struct {
	ArchiveCutoffDays       int           `envconfig:"LUGGAGE_BOOKING_ARCHIVE_CUTOFF_DAYS" default:"7"`
	ArchiveBatchSize        int           `envconfig:"LUGGAGE_BOOKING_ARCHIVE_BATCH_SIZE" default:"200"`
	CancelledRetentionDays  int           `envconfig:"LUGGAGE_BOOKING_CANCELLED_RETENTION_DAYS" default:"0"`
	CronInterval            time.Duration `envconfig:"LUGGAGE_BOOKING_CRON_INTERVAL" default:"1h"`
	DefaultCurrency         string        `envconfig:"LUGGAGE_BOOKING_DEFAULT_CURRENCY" default:"eur"`
	ReportTimezone          string        `envconfig:"LUGGAGE_BOOKING_REPORT_TIMEZONE" default:"Europe/Rome"`
	OutboxRetentionDays     int           `envconfig:"LUGGAGE_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionAttempts int           `envconfig:"LUGGAGE_OUTBOX_RETENTION_MIN_ATTEMPTS" default:"5"`
	OutboxDLQRetentionDays  int           `envconfig:"LUGGAGE_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

// Location resolves the reporting timezone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(b.ReportTimezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func (b BookingConfig) validate() error {
	if b.ArchiveCutoffDays < 0 {
		return fmt.Errorf("%s must be >= 0", EnvBookingArchiveCutoffDays)
	}
	if b.CancelledRetentionDays < 0 {
		return fmt.Errorf("%s must be >= 0", EnvBookingCancelledRetention)
	}
	return nil
}

type CheckInRateLimitConfig struct {
	Window  time.Duration `envconfig:"LUGGAGE_CHECKIN_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit int           `envconfig:"LUGGAGE_CHECKIN_RATE_LIMIT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LUGGAGE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LUGGAGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LUGGAGE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LUGGAGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LUGGAGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic          string `envconfig:"LUGGAGE_PUBSUB_BOOKING_TOPIC" default:"booking-events"`
	AnalyticsTopic        string `envconfig:"LUGGAGE_PUBSUB_ANALYTICS_TOPIC"`
	AnalyticsSubscription string `envconfig:"LUGGAGE_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"LUGGAGE_BIGQUERY_DATASET" default:"luggage_deposit"`
	BookingEventsTable string `envconfig:"LUGGAGE_BIGQUERY_BOOKING_EVENTS_TABLE" default:"booking_events"`
	InsertMaxAttempts  int    `envconfig:"LUGGAGE_BIGQUERY_INSERT_MAX_ATTEMPTS" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LUGGAGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LUGGAGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LUGGAGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"LUGGAGE_STRIPE_API_KEY"`
	Secret string `envconfig:"LUGGAGE_STRIPE_SECRET"`
	Env    string `envconfig:"LUGGAGE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
