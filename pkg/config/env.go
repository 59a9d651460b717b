package config

const EnvPrefix = "AFFLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	ReservationModeOvershoot = "overshoot"
	ReservationModeSplit     = "split"
)

const (
	EnvAppEnv   = "AFFLEDGER_APP_ENV"
	EnvPort     = "AFFLEDGER_APP_PORT"
	EnvLogLevel = "AFFLEDGER_LOG_LEVEL"

	EnvDBDSN  = "AFFLEDGER_DB_DSN"
	EnvDBHost = "AFFLEDGER_DB_HOST"
	EnvDBUser = "AFFLEDGER_DB_USER"
	EnvDBName = "AFFLEDGER_DB_NAME"

	EnvRedisURL = "AFFLEDGER_REDIS_URL"

	EnvJWTSecret = "AFFLEDGER_JWT_SECRET"
	EnvJWTIssuer = "AFFLEDGER_JWT_ISSUER"

	EnvLedgerHoldPeriodDays    = "AFFLEDGER_LEDGER_HOLD_PERIOD_DAYS"
	EnvLedgerReservationMode   = "AFFLEDGER_LEDGER_RESERVATION_MODE"
	EnvLedgerMinimumWithdrawal = "AFFLEDGER_LEDGER_MINIMUM_WITHDRAWAL"

	EnvCronValidationSchedule = "AFFLEDGER_CRON_VALIDATION_SCHEDULE"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
