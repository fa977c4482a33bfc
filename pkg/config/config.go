package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "CAMPUSMART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "CAMPUSMART_APP_ENV"
	EnvPort         = "CAMPUSMART_APP_PORT"
	EnvDBDSN        = "CAMPUSMART_DB_DSN"
	EnvDBHost       = "CAMPUSMART_DB_HOST"
	EnvDBUser       = "CAMPUSMART_DB_USER"
	EnvDBName       = "CAMPUSMART_DB_NAME"
	EnvRedisURL     = "CAMPUSMART_REDIS_URL"
	EnvJWTSecret    = "CAMPUSMART_JWT_SECRET"
	EnvJWTIssuer    = "CAMPUSMART_JWT_ISSUER"
	EnvJWTExpMins   = "CAMPUSMART_JWT_EXPIRATION_MINUTES"
	EnvPaystackKey  = "CAMPUSMART_PAYSTACK_SECRET_KEY"
	EnvRiderFee     = "CAMPUSMART_FEES_RIDER_FEE"
	EnvCommission   = "CAMPUSMART_FEES_COMMISSION_RATE"
	EnvDisputeFee   = "CAMPUSMART_FEES_DISPUTE_FEE_RATE"
	EnvUseSQLite    = "CAMPUSMART_USE_SQLITE"
	EnvSQLitePath   = "CAMPUSMART_SQLITE_PATH"
	EnvGCPProjectID = "CAMPUSMART_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Fees          FeesConfig
	Paystack      PaystackConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Notifications NotificationsConfig
	Cron          CronConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.App.IsProd() && cfg.FeatureFlags.UseSQLite {
		return nil, fmt.Errorf("%s cannot be enabled when %s=%s", EnvUseSQLite, EnvAppEnv, AppEnvProd)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CAMPUSMART_APP_ENV" required:"true"`
	Port         string `envconfig:"CAMPUSMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAMPUSMART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CAMPUSMART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CAMPUSMART_LOG_WARN_STACK" default:"false"`
	FrontendURL  string `envconfig:"CAMPUSMART_FRONTEND_URL"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSMART_DB_DSN"`
	Driver string `envconfig:"CAMPUSMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSMART_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSMART_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSMART_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CAMPUSMART_SQLITE_PATH" default:"campusmart.db"`

	MaxOpenConns    int           `envconfig:"CAMPUSMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Money-moving units of work tolerate slow storage.
	TxTimeout time.Duration `envconfig:"CAMPUSMART_DB_TX_TIMEOUT" default:"15s"`
	TxMaxWait time.Duration `envconfig:"CAMPUSMART_DB_TX_MAX_WAIT" default:"20s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSMART_REDIS_URL"`
	Address      string        `envconfig:"CAMPUSMART_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string        `envconfig:"CAMPUSMART_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"CAMPUSMART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"CAMPUSMART_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"CAMPUSMART_JWT_LEEWAY" default:"30s"`
}

// FeesConfig holds the business constants applied to every order and dispute.
type FeesConfig struct {
	RiderFee        decimal.Decimal `envconfig:"CAMPUSMART_FEES_RIDER_FEE" default:"560"`
	CommissionRate  decimal.Decimal `envconfig:"CAMPUSMART_FEES_COMMISSION_RATE" default:"0.10"`
	DisputeFeeRate  decimal.Decimal `envconfig:"CAMPUSMART_FEES_DISPUTE_FEE_RATE" default:"0.10"`
	DisputeWindow   time.Duration   `envconfig:"CAMPUSMART_FEES_DISPUTE_WINDOW" default:"168h"`
	ConfirmCooldown time.Duration   `envconfig:"CAMPUSMART_FEES_CONFIRM_COOLDOWN" default:"5s"`
}

// DefaultFees returns the parity values used when nothing is configured.
func DefaultFees() FeesConfig {
	return FeesConfig{
		RiderFee:        decimal.NewFromInt(560),
		CommissionRate:  decimal.RequireFromString("0.10"),
		DisputeFeeRate:  decimal.RequireFromString("0.10"),
		DisputeWindow:   7 * 24 * time.Hour,
		ConfirmCooldown: 5 * time.Second,
	}
}

func (f FeesConfig) validate() error {
	one := decimal.NewFromInt(1)
	if f.RiderFee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvRiderFee)
	}
	if f.CommissionRate.IsNegative() || f.CommissionRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("%s must be within [0, 1)", EnvCommission)
	}
	if f.DisputeFeeRate.IsNegative() || f.DisputeFeeRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("%s must be within [0, 1)", EnvDisputeFee)
	}
	return nil
}

type PaystackConfig struct {
	SecretKey      string        `envconfig:"CAMPUSMART_PAYSTACK_SECRET_KEY"`
	Currency       string        `envconfig:"CAMPUSMART_PAYSTACK_CURRENCY" default:"NGN"`
	Timeout        time.Duration `envconfig:"CAMPUSMART_PAYSTACK_TIMEOUT" default:"10s"`
	BreakerTimeout time.Duration `envconfig:"CAMPUSMART_PAYSTACK_BREAKER_TIMEOUT" default:"30s"`
	BreakerFails   uint32        `envconfig:"CAMPUSMART_PAYSTACK_BREAKER_FAILURES" default:"5"`

	// Per-IP budget for the public verification callback.
	VerifyRateLimit  int           `envconfig:"CAMPUSMART_PAYSTACK_VERIFY_RATE_LIMIT" default:"30"`
	VerifyRateWindow time.Duration `envconfig:"CAMPUSMART_PAYSTACK_VERIFY_RATE_WINDOW" default:"1m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CAMPUSMART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CAMPUSMART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CAMPUSMART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string        `envconfig:"CAMPUSMART_PUBSUB_NOTIFICATION_TOPIC"`
	PublishTimeout    time.Duration `envconfig:"CAMPUSMART_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
	BatchDelay        time.Duration `envconfig:"CAMPUSMART_PUBSUB_BATCH_DELAY" default:"10ms"`
	BatchCount        int           `envconfig:"CAMPUSMART_PUBSUB_BATCH_COUNT" default:"100"`
}

// Enabled reports whether push fan-out through Pub/Sub is configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.NotificationTopic) != ""
}

type NotificationsConfig struct {
	Workers   int           `envconfig:"CAMPUSMART_NOTIFICATIONS_WORKERS" default:"4"`
	QueueSize int           `envconfig:"CAMPUSMART_NOTIFICATIONS_QUEUE_SIZE" default:"256"`
	Timeout   time.Duration `envconfig:"CAMPUSMART_NOTIFICATIONS_TIMEOUT" default:"10s"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval              time.Duration `envconfig:"CAMPUSMART_CRON_INTERVAL" default:"24h"`
	LockTTL               time.Duration `envconfig:"CAMPUSMART_CRON_LOCK_TTL" default:"2h"`
	NotificationRetention time.Duration `envconfig:"CAMPUSMART_CRON_NOTIFICATION_RETENTION" default:"720h"`
	LedgerAuditBatch      int           `envconfig:"CAMPUSMART_CRON_LEDGER_AUDIT_BATCH" default:"200"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CAMPUSMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CAMPUSMART_AUTO_MIGRATE" default:"false"`
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
