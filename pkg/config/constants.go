package config

const (
	EnvPrefix = "PAYMALL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	defaultSQLiteDSN = "file:paymall.db?cache=shared&_busy_timeout=5000"

	EnvAppEnv     = "PAYMALL_APP_ENV"
	EnvPort       = "PAYMALL_APP_PORT"
	EnvDBDSN      = "PAYMALL_DB_DSN"
	EnvDBHost     = "PAYMALL_DB_HOST"
	EnvDBUser     = "PAYMALL_DB_USER"
	EnvDBName     = "PAYMALL_DB_NAME"
	EnvUseSQLite  = "PAYMALL_USE_SQLITE"
	EnvRedisURL   = "PAYMALL_REDIS_URL"
	EnvJWTSecret  = "PAYMALL_JWT_SECRET"
	EnvOrderTTL   = "PAYMALL_ORDER_TTL"
	EnvExitOTPTTL = "PAYMALL_EXIT_OTP_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
