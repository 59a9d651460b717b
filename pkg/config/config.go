package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AFFLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"AFFLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"AFFLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AFFLEDGER_LOG_WARN_STACK" default:"false"`

	// CORSOrigins lists the admin and affiliate dashboards allowed to call the API.
	CORSOrigins []string `envconfig:"AFFLEDGER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AFFLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AFFLEDGER_DB_DSN"`
	Driver string `envconfig:"AFFLEDGER_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"AFFLEDGER_DB_HOST"`
	Port     int    `envconfig:"AFFLEDGER_DB_PORT" default:"5432"`
	User     string `envconfig:"AFFLEDGER_DB_USER"`
	Password string `envconfig:"AFFLEDGER_DB_PASSWORD"`
	Name     string `envconfig:"AFFLEDGER_DB_NAME"`
	SSLMode  string `envconfig:"AFFLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AFFLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AFFLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AFFLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AFFLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxMaxRetries bounds retries of serialization failures and deadlocks.
	TxMaxRetries uint64        `envconfig:"AFFLEDGER_DB_TX_MAX_RETRIES" default:"3"`
	TxRetryBase  time.Duration `envconfig:"AFFLEDGER_DB_TX_RETRY_BASE" default:"25ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AFFLEDGER_REDIS_URL"`
	Address      string        `envconfig:"AFFLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"AFFLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"AFFLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AFFLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AFFLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AFFLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AFFLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AFFLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AFFLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AFFLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AFFLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig throttles money-moving endpoints per affiliate.
type RateLimitConfig struct {
	WithdrawalWindow time.Duration `envconfig:"AFFLEDGER_RATE_LIMIT_WITHDRAWAL_WINDOW" default:"1h"`
	WithdrawalLimit  int           `envconfig:"AFFLEDGER_RATE_LIMIT_WITHDRAWAL_LIMIT" default:"5"`
	AdminWindow      time.Duration `envconfig:"AFFLEDGER_RATE_LIMIT_ADMIN_WINDOW" default:"1m"`
	AdminLimit       int           `envconfig:"AFFLEDGER_RATE_LIMIT_ADMIN_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AFFLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"AFFLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AFFLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AFFLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AFFLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	// LedgerTopic receives ledger domain events from the outbox publisher.
	LedgerTopic string `envconfig:"AFFLEDGER_PUBSUB_LEDGER_TOPIC" default:"affiliate-ledger-events"`
	// QualifyingSubscription delivers call and recruitment events to the worker.
	QualifyingSubscription string `envconfig:"AFFLEDGER_PUBSUB_QUALIFYING_SUBSCRIPTION" default:"affiliate-qualifying-events-sub"`
	DeadLetterTopic        string `envconfig:"AFFLEDGER_PUBSUB_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"AFFLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"AFFLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"AFFLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"AFFLEDGER_OUTBOX_RETENTION" default:"720h"`
}

// LedgerConfig holds the defaults used when no settings document exists in Redis.
type LedgerConfig struct {
	HoldPeriodDays          int           `envconfig:"AFFLEDGER_LEDGER_HOLD_PERIOD_DAYS" default:"7"`
	ReleaseDelayHours       int           `envconfig:"AFFLEDGER_LEDGER_RELEASE_DELAY_HOURS" default:"24"`
	MinimumWithdrawalAmount int64         `envconfig:"AFFLEDGER_LEDGER_MINIMUM_WITHDRAWAL" default:"2000"`
	RecruitmentWindowMonths int           `envconfig:"AFFLEDGER_LEDGER_RECRUITMENT_WINDOW_MONTHS" default:"6"`
	ClientReferralAmount    int64         `envconfig:"AFFLEDGER_LEDGER_CLIENT_REFERRAL_AMOUNT" default:"1000"`
	RecruitmentAmount       int64         `envconfig:"AFFLEDGER_LEDGER_RECRUITMENT_AMOUNT" default:"500"`
	ProviderRecruitAmount   int64         `envconfig:"AFFLEDGER_LEDGER_PROVIDER_RECRUITMENT_AMOUNT" default:"500"`
	ReservationMode         string        `envconfig:"AFFLEDGER_LEDGER_RESERVATION_MODE" default:"overshoot"`
	Currency                string        `envconfig:"AFFLEDGER_LEDGER_CURRENCY" default:"USD"`
	SettingsKey             string        `envconfig:"AFFLEDGER_LEDGER_SETTINGS_KEY" default:"settings:ledger"`
	SettingsCacheTTL        time.Duration `envconfig:"AFFLEDGER_LEDGER_SETTINGS_CACHE_TTL" default:"1m"`
	SweepBatchSize          int           `envconfig:"AFFLEDGER_LEDGER_SWEEP_BATCH_SIZE" default:"500"`
}

func (l LedgerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.ReservationMode)) {
	case ReservationModeOvershoot, ReservationModeSplit:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLedgerReservationMode, ReservationModeOvershoot, ReservationModeSplit)
	}
	if l.HoldPeriodDays < 0 || l.ReleaseDelayHours < 0 {
		return fmt.Errorf("ledger hold and release delays must not be negative")
	}
	if l.MinimumWithdrawalAmount <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerMinimumWithdrawal)
	}
	return nil
}

// CronConfig carries robfig cron specs per scheduled job.
type CronConfig struct {
	ValidationSchedule     string        `envconfig:"AFFLEDGER_CRON_VALIDATION_SCHEDULE" default:"0 * * * *"`
	ReleaseSchedule        string        `envconfig:"AFFLEDGER_CRON_RELEASE_SCHEDULE" default:"30 * * * *"`
	ReconciliationSchedule string        `envconfig:"AFFLEDGER_CRON_RECONCILIATION_SCHEDULE" default:"15 3 * * *"`
	OutboxRetentionSched   string        `envconfig:"AFFLEDGER_CRON_OUTBOX_RETENTION_SCHEDULE" default:"45 4 * * *"`
	LockTTL                time.Duration `envconfig:"AFFLEDGER_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
