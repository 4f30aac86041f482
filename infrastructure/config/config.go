// Package config loads process configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string        `yaml:"server_address"`
	BasePath        string        `yaml:"base_path"`
	Environment     string        `yaml:"environment"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Logging
	LogLevel string `yaml:"log_level"`

	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Store   StoreConfig   `yaml:"store"`

	// File is the YAML overlay this config was read from, if any.
	File string `yaml:"-"`
}

// MetricsConfig configures the Prometheus scrape listener.
type MetricsConfig struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	Insecure       bool    `yaml:"insecure"`
	SampleRatio    float64 `yaml:"sample_ratio"`
	Debug          bool    `yaml:"debug"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	SQLiteDSN   string `yaml:"sqlite_dsn"`
	PostgresDSN string `yaml:"postgres_dsn"`

	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	AWSRegion        string `yaml:"aws_region"`

	BreakerEnabled     bool          `yaml:"breaker_enabled"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerAddress:   ":3000",
		BasePath:        "",
		Environment:     "development",
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		LogLevel:        "info",
		Metrics: MetricsConfig{
			Address: ":9464",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName:    "api-backend",
			ServiceVersion: "1.0.0",
			Enabled:        true,
			Endpoint:       "localhost:4317",
			Insecure:       true,
			SampleRatio:    1.0,
		},
		Store: StoreConfig{
			Driver:             DriverSQLite,
			SQLiteDSN:          "file::memory:?cache=shared",
			DynamoDBTable:      "api-backend",
			AWSRegion:          "us-east-1",
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
	}
}

// LoadConfig loads configuration from the file named by CONFIG_FILE (if
// set) and the environment.
func LoadConfig() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is LoadConfig with an explicit overlay path; an empty path skips
// the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
		cfg.File = path
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDRESS") == "" {
		c.ServerAddress = ":" + port
	}
	c.BasePath = getEnv("BASE_PATH", c.BasePath)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Metrics.Address = getEnv("METRICS_ADDR", c.Metrics.Address)

	c.Tracing.ServiceName = getEnv("SERVICE_NAME", c.Tracing.ServiceName)
	c.Tracing.ServiceVersion = getEnv("SERVICE_VERSION", c.Tracing.ServiceVersion)
	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRatio = getEnvFloat("TRACE_SAMPLE_RATIO", c.Tracing.SampleRatio)
	c.Tracing.Debug = getEnvBool("OTEL_DEBUG", c.Tracing.Debug)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLiteDSN = getEnv("SQLITE_DSN", c.Store.SQLiteDSN)
	c.Store.PostgresDSN = getEnv("POSTGRES_DSN", getEnv("DATABASE_URL", c.Store.PostgresDSN))
	c.Store.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.Store.DynamoDBTable))
	c.Store.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.Store.DynamoDBEndpoint)
	c.Store.AWSRegion = getEnv("AWS_REGION", c.Store.AWSRegion)
	c.Store.BreakerEnabled = getEnvBool("STORE_BREAKER_ENABLED", c.Store.BreakerEnabled)
	c.Store.BreakerMaxFailures = uint32(getEnvInt("STORE_BREAKER_MAX_FAILURES", int(c.Store.BreakerMaxFailures)))
	c.Store.BreakerTimeout = getEnvDuration("STORE_BREAKER_TIMEOUT", c.Store.BreakerTimeout)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("SERVER_ADDRESS is required")
	}
	if c.Metrics.Address == "" {
		return fmt.Errorf("METRICS_ADDR is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLiteDSN == "" {
			return fmt.Errorf("SQLITE_DSN is required for the sqlite store")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	case DriverDynamoDB:
		if c.Store.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Level returns the parsed log level, info if it does not parse.
func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
