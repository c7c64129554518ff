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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = defaultSQLiteDSN
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYMALL_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYMALL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAYMALL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYMALL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PAYMALL_DB_DSN"`
	Driver string `envconfig:"PAYMALL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYMALL_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYMALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYMALL_DB_USER"`
	LegacyPassword string `envconfig:"PAYMALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYMALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYMALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYMALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYMALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYMALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYMALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYMALL_REDIS_URL"`
	Address      string        `envconfig:"PAYMALL_REDIS_ADDR"`
	Password     string        `envconfig:"PAYMALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYMALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYMALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYMALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYMALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYMALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYMALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"PAYMALL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAYMALL_JWT_ISSUER" default:"paymall"`
	ExpirationMinutes int    `envconfig:"PAYMALL_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PAYMALL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PAYMALL_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the time windows and defaults of the order lifecycle.
type CheckoutConfig struct {
	OrderTTL          time.Duration `envconfig:"PAYMALL_ORDER_TTL" default:"15m"`
	ExitOTPTTL        time.Duration `envconfig:"PAYMALL_EXIT_OTP_TTL" default:"5m"`
	LowStockThreshold int           `envconfig:"PAYMALL_LOW_STOCK_THRESHOLD" default:"10"`
	DefaultProvider   string        `envconfig:"PAYMALL_DEFAULT_PAYMENT_PROVIDER" default:"MOCK"`
	WebhookSecret     string        `envconfig:"PAYMALL_PAYMENT_WEBHOOK_SECRET"`
}

func (c CheckoutConfig) validate() error {
	if c.OrderTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrderTTL)
	}
	if c.ExitOTPTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvExitOTPTTL)
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAYMALL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAYMALL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAYMALL_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig throttles exit code redemption per client IP and per order.
type RateLimitConfig struct {
	RedeemWindow     time.Duration `envconfig:"PAYMALL_REDEEM_RATE_WINDOW" default:"1m"`
	RedeemIPLimit    int           `envconfig:"PAYMALL_REDEEM_RATE_IP_LIMIT" default:"30"`
	RedeemOrderLimit int           `envconfig:"PAYMALL_REDEEM_RATE_ORDER_LIMIT" default:"5"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PAYMALL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type PubSubConfig struct {
	ProjectID   string `envconfig:"PAYMALL_GCP_PROJECT_ID"`
	OrdersTopic string `envconfig:"PAYMALL_PUBSUB_ORDERS_TOPIC" default:"paymall-order-events"`
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
