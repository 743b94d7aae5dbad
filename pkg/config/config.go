// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration. It is loaded once at
// startup and passed explicitly into each component; no component reads the
// environment on its own.
type Config struct {
	Postgres *PostgresConfig
	Redis    *RedisConfig

	Pipeline PipelineConfig
	Anomaly  AnomalyConfig
	Forecast ForecastConfig
	Risk     RiskConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// PipelineConfig holds ingestion and loading settings
type PipelineConfig struct {
	BatchSize       int // rows per sink upsert batch
	WorkerCount     int // parallel analytics workers; 0 means derive from CPUs
	RejectLogSample int // rejected rows logged per reason code
}

// AnomalyConfig holds detection thresholds and window sizes
type AnomalyConfig struct {
	Window              int     // trailing periods per rolling statistic
	MinPoints           int     // minimum points before a method evaluates
	ZScoreThreshold     float64 // |z| above which the z-score method fires
	RollingDeviationPct float64 // percent deviation above which the rolling method fires
}

// ForecastConfig holds model selection and backtest settings
type ForecastConfig struct {
	Horizon        int           // periods to predict
	SeasonLength   int           // periods per seasonal cycle
	ARORder        int           // autoregressive lag order
	HoldoutPeriods int           // final periods held out for the error metric
	FitTimeout     time.Duration // per-model fit bound; timeout is a convergence failure
}

// RiskConfig pins the classifier model snapshot
type RiskConfig struct {
	SnapshotVersion string
}

// PostgresConfig holds sink connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// RedisConfig holds the optional result-cache connection. An empty URL
// disables caching entirely.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Pipeline: PipelineConfig{
			BatchSize:       getEnvAsInt("BATCH_SIZE", 5000),
			WorkerCount:     getEnvAsInt("WORKER_POOL_SIZE", 0),
			RejectLogSample: getEnvAsInt("REJECT_LOG_SAMPLE", 5),
		},
		Anomaly: AnomalyConfig{
			Window:              getEnvAsInt("ANOMALY_WINDOW", 12),
			MinPoints:           getEnvAsInt("ANOMALY_MIN_POINTS", 4),
			ZScoreThreshold:     getEnvAsFloat("ANOMALY_ZSCORE_THRESHOLD", 3.0),
			RollingDeviationPct: getEnvAsFloat("ANOMALY_ROLLING_DEVIATION_PCT", 20.0),
		},
		Forecast: ForecastConfig{
			Horizon:        getEnvAsInt("FORECAST_HORIZON", 6),
			SeasonLength:   getEnvAsInt("FORECAST_SEASON_LENGTH", 12),
			ARORder:        getEnvAsInt("FORECAST_AR_ORDER", 3),
			HoldoutPeriods: getEnvAsInt("FORECAST_HOLDOUT_PERIODS", 3),
			FitTimeout:     time.Duration(getEnvAsInt("FORECAST_FIT_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Risk: RiskConfig{
			SnapshotVersion: getEnv("RISK_MODEL_SNAPSHOT", "v1"),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	cfg.Redis = LoadRedisConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.Pipeline.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.Anomaly.Window < 2 {
		return errors.New("anomaly window must be at least 2 periods")
	}

	if c.Anomaly.MinPoints < 2 {
		return errors.New("anomaly minimum points must be at least 2")
	}

	if c.Anomaly.ZScoreThreshold <= 0 {
		return errors.New("z-score threshold must be positive")
	}

	if c.Forecast.Horizon <= 0 {
		return errors.New("forecast horizon must be positive")
	}

	if c.Forecast.SeasonLength < 2 {
		return errors.New("forecast season length must be at least 2")
	}

	if c.Forecast.HoldoutPeriods <= 0 {
		return errors.New("forecast holdout must be positive")
	}

	return nil
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
	}

	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// LoadRedisConfig loads the optional cache configuration. Returns a config
// with an empty URL (cache disabled) when REDIS_URL is unset.
func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL: getEnv("REDIS_URL", ""),
		TTL: time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
	}
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
