package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "WLC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Provider     ProviderConfig
	Reservation  ReservationConfig
	LoginLimit   LoginLimitConfig
	Sweeper      SweeperConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Provider.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WLC_APP_ENV" required:"true"`
	Port         string `envconfig:"WLC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"WLC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WLC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WLC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"WLC_DB_DSN"`

	Host     string `envconfig:"WLC_DB_HOST"`
	Port     int    `envconfig:"WLC_DB_PORT" default:"5432"`
	User     string `envconfig:"WLC_DB_USER"`
	Password string `envconfig:"WLC_DB_PASSWORD"`
	Name     string `envconfig:"WLC_DB_NAME"`
	SSLMode  string `envconfig:"WLC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WLC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WLC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WLC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WLC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Host == "" || db.User == "" || db.Name == "" {
		return fmt.Errorf("either WLC_DB_DSN or WLC_DB_HOST/WLC_DB_USER/WLC_DB_NAME must be set")
	}
	db.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		db.Port,
		db.Name,
		db.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"WLC_REDIS_URL"`
	Address      string        `envconfig:"WLC_REDIS_ADDR"`
	Password     string        `envconfig:"WLC_REDIS_PASSWORD"`
	DB           int           `envconfig:"WLC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WLC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WLC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WLC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WLC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WLC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WLC_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WLC_JWT_ISSUER" default:"weightlossclinic"`
	ExpirationMinutes int    `envconfig:"WLC_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"WLC_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"WLC_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"WLC_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"WLC_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"WLC_ARGON_KEY_LEN" default:"32"`
}

// ProviderConfig holds the voucher provider API credentials and retry policy.
// RetryAttempts bounds the client-level retries of ambiguous failures only;
// the engine's redemption retry is configured separately under Reservation.
type ProviderConfig struct {
	BaseURL        string        `envconfig:"WLC_PROVIDER_BASE_URL"`
	ConfigID       string        `envconfig:"WLC_PROVIDER_CONFIG_ID"`
	ClientID       string        `envconfig:"WLC_PROVIDER_CLIENT_ID"`
	Secret         string        `envconfig:"WLC_PROVIDER_SECRET"`
	Timeout        time.Duration `envconfig:"WLC_PROVIDER_TIMEOUT" default:"10s"`
	RetryAttempts  int           `envconfig:"WLC_PROVIDER_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"WLC_PROVIDER_RETRY_BASE_DELAY" default:"500ms"`
}

func (p ProviderConfig) Validate() error {
	if p.BaseURL == "" {
		return fmt.Errorf("WLC_PROVIDER_BASE_URL is required")
	}
	if _, err := url.Parse(p.BaseURL); err != nil {
		return fmt.Errorf("invalid WLC_PROVIDER_BASE_URL: %w", err)
	}
	if p.ConfigID == "" || p.ClientID == "" || p.Secret == "" {
		return fmt.Errorf("WLC_PROVIDER_CONFIG_ID, WLC_PROVIDER_CLIENT_ID, WLC_PROVIDER_SECRET are required")
	}
	return nil
}

type ReservationConfig struct {
	TTL               time.Duration `envconfig:"WLC_RESERVATION_TTL" default:"30m"`
	RedeemAttempts    int           `envconfig:"WLC_RESERVATION_REDEEM_ATTEMPTS" default:"2"`
	RedeemBackoff     time.Duration `envconfig:"WLC_RESERVATION_REDEEM_BACKOFF" default:"2s"`
	RedeemedAtEpsilon time.Duration `envconfig:"WLC_RESERVATION_REDEEMED_AT_EPSILON" default:"5s"`
}

// LoginLimitConfig throttles the login endpoint per source IP and per email.
type LoginLimitConfig struct {
	Window     time.Duration `envconfig:"WLC_LOGIN_LIMIT_WINDOW" default:"5m"`
	IPLimit    int           `envconfig:"WLC_LOGIN_LIMIT_IP" default:"30"`
	EmailLimit int           `envconfig:"WLC_LOGIN_LIMIT_EMAIL" default:"10"`
}

type SweeperConfig struct {
	Interval   time.Duration `envconfig:"WLC_SWEEPER_INTERVAL" default:"24h"`
	Lookback   time.Duration `envconfig:"WLC_SWEEPER_LOOKBACK" default:"168h"`
	BatchLimit int           `envconfig:"WLC_SWEEPER_BATCH_LIMIT" default:"250"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WLC_AUTO_MIGRATE" default:"false"`
}
