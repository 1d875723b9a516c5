package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Gateway        GatewayConfig        `mapstructure:"gateway" validate:"required"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// GatewayConfig carries everything needed to sign and address requests to the
// external settlement gateway.
type GatewayConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	ClientID    string        `mapstructure:"client_id" validate:"required"`
	APISecret   string        `mapstructure:"api_secret" validate:"required"`
	ServiceID   string        `mapstructure:"service_id" validate:"required"`
	CallbackURL string        `mapstructure:"callback_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ReconciliationConfig bounds the background polling loop: one poll every
// Interval, at most MaxAttempts polls per record.
type ReconciliationConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultReconcileInterval    = 30 * time.Second
	DefaultReconcileMaxAttempts = 10
	DefaultGatewayTimeout       = 30 * time.Second
)

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the config from environment variables for container
// deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnv("GATEWAY_BASE_URL", ""),
			ClientID:    getEnv("GATEWAY_CLIENT_ID", ""),
			APISecret:   getEnv("GATEWAY_API_SECRET", ""),
			ServiceID:   getEnv("GATEWAY_SERVICE_ID", ""),
			CallbackURL: getEnv("GATEWAY_CALLBACK_URL", ""),
			Timeout:     getEnvAsDuration("GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		},
		Reconciliation: ReconciliationConfig{
			Interval:    getEnvAsDuration("RECONCILIATION_INTERVAL", DefaultReconcileInterval),
			MaxAttempts: getEnvAsInt("RECONCILIATION_MAX_ATTEMPTS", DefaultReconcileMaxAttempts),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOGGING_LEVEL", "info"),
				Format: getEnv("LOGGING_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.ClientID == "" {
		return errors.New("client_id is required")
	}
	if c.APISecret == "" {
		return errors.New("api_secret is required")
	}
	if c.CallbackURL == "" {
		return errors.New("callback_url is required")
	}
	return nil
}

func (c *ReconciliationConfig) Validate() error {
	if c.Interval < 0 {
		return errors.New("interval cannot be negative")
	}
	if c.MaxAttempts < 0 {
		return errors.New("max_attempts cannot be negative")
	}
	return nil
}

// IntervalOrDefault returns the configured poll interval, falling back to 30s.
func (c *ReconciliationConfig) IntervalOrDefault() time.Duration {
	if c.Interval <= 0 {
		return DefaultReconcileInterval
	}
	return c.Interval
}

// MaxAttemptsOrDefault returns the configured attempt budget, falling back to 10.
func (c *ReconciliationConfig) MaxAttemptsOrDefault() int {
	if c.MaxAttempts <= 0 {
		return DefaultReconcileMaxAttempts
	}
	return c.MaxAttempts
}
