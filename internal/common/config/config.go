package config

import (
	"errors"
	"fmt"
	"time"

	"healthtrack-backend/internal/common/database"
	"healthtrack-backend/pkg/utils"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values for the API and the CLI
type Config struct {
	GoEnv string `env:"GO_ENV" envDefault:"development"`
	Port  string `env:"PORT" envDefault:"8080"`

	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	OTP      OTPConfig
	SMS      SMSConfig

	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RateLimitRPM       int           `env:"RATE_LIMIT_RPM" envDefault:"600"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS"`
	TelemetryEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName        string        `env:"SERVICE_NAME" envDefault:"healthtrack-backend"`
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName          string        `env:"DB_NAME" envDefault:"healthtrack"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds the optional redis connection. An empty Addr disables redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// SessionConfig controls the session cookie
type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"ht_session"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	Issuer     string        `env:"SESSION_ISSUER" envDefault:"healthtrack"`
}

// OTPConfig controls phone OTP issuance and verification
type OTPConfig struct {
	TTL            time.Duration `env:"OTP_TTL" envDefault:"5m"`
	ResendInterval time.Duration `env:"OTP_RESEND_INTERVAL" envDefault:"60s"`
	CodeLength     int           `env:"OTP_CODE_LENGTH" envDefault:"6"`
	MaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	HourlyQuota    int           `env:"OTP_HOURLY_QUOTA" envDefault:"10"`
	RequestRPM     int           `env:"OTP_REQUEST_RPM" envDefault:"6"`
	CleanupGrace   time.Duration `env:"OTP_CLEANUP_GRACE" envDefault:"1h"`
	ExposeCode     bool          `env:"OTP_EXPOSE_CODE" envDefault:"false"`
}

// SMSConfig selects and configures the SMS gateway
type SMSConfig struct {
	Provider   string        `env:"SMS_PROVIDER" envDefault:"noop"`
	GatewayURL string        `env:"SMS_GATEWAY_URL"`
	APIKey     string        `env:"SMS_API_KEY"`
	BrandName  string        `env:"SMS_BRAND_NAME" envDefault:"HealthTrack"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"5s"`
}

const minSessionSecretLen = 32

// Load reads the optional .env file and parses configuration from the environment
func Load() (Config, error) {
	cfg, err := parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCleanup is Load for the OTP cleanup job. Only the database and
// OTP_CLEANUP_GRACE are checked, so no session secret or SMS gateway is needed.
func LoadCleanup() (Config, error) {
	cfg, err := parse()
	if err != nil {
		return Config{}, err
	}
	if err := errors.Join(cfg.cleanupErrors()...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse() (Config, error) {
	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c Config) IsProduction() bool {
	return utils.IsProduction(c.GoEnv)
}

// AllowedOrigins returns the parsed CORS origin list
func (c Config) AllowedOrigins() []string {
	return utils.SplitList(c.CORSAllowedOrigins)
}

// DatabaseSettings converts the env settings for database.NewConnection
func (c Config) DatabaseSettings() database.Config {
	return database.Config{
		URL:             c.Database.URL,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		DBName:          c.Database.DBName,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// Validate rejects configurations that would weaken the auth flows
func (c Config) Validate() error {
	errs := c.cleanupErrors()

	if len(c.Session.Secret) < minSessionSecretLen {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.OTP.CodeLength < 6 || c.OTP.CodeLength > 10 {
		errs = append(errs, errors.New("OTP_CODE_LENGTH must be between 6 and 10"))
	}
	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.OTP.ResendInterval < 0 {
		errs = append(errs, errors.New("OTP_RESEND_INTERVAL must not be negative"))
	}
	if c.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTP.ExposeCode && c.IsProduction() {
		errs = append(errs, errors.New("OTP_EXPOSE_CODE cannot be enabled in production"))
	}
	if c.SMS.Provider == "http" && (c.SMS.GatewayURL == "" || c.SMS.APIKey == "") {
		errs = append(errs, errors.New("SMS_GATEWAY_URL and SMS_API_KEY are required for the http SMS provider"))
	}
	if c.SMS.Provider != "noop" && c.SMS.Provider != "http" {
		errs = append(errs, fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider))
	}
	if c.IsProduction() && c.SMS.Provider != "http" {
		errs = append(errs, errors.New("SMS_PROVIDER must be http in production"))
	}
	if c.IsProduction() && len(c.AllowedOrigins()) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must be set in production"))
	}

	return errors.Join(errs...)
}

func (c Config) cleanupErrors() []error {
	var errs []error
	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.DBName == "") {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST and DB_NAME must be set"))
	}
	if c.OTP.CleanupGrace < 0 {
		errs = append(errs, errors.New("OTP_CLEANUP_GRACE must not be negative"))
	}
	return errs
}
