package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// DBDriver selects the gorm dialector a DBConfig connects with. Both the
// unified single-database deployment and the legacy two-file deployment
// are expressible from the same struct shape — only Driver and the
// DSN-producing fields differ.
type DBDriver string

const (
	DriverPostgres DBDriver = "postgres"
	DriverSQLite   DBDriver = "sqlite"
)

// DBConfig describes one logical catalog's connection. The execution log
// store, analysis store, and strategy catalog each bind to a DBConfig; in
// the unified deployment all three point at the same catalog, in the
// legacy deployment Analysis and Execution point at separate sqlite
// files.
type DBConfig struct {
	Driver   DBDriver
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// SQLitePath is used instead of Host/Port/... when Driver == DriverSQLite.
	SQLitePath string
}

// DSN renders the connection string gorm's postgres or sqlite dialector
// expects for this config's Driver.
func (c DBConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Name, c.Password, c.SSLMode,
	)
}

type Config struct {
	// Analysis is the analysis store / strategy catalog database.
	Analysis DBConfig
	// Execution is the execution log database. Equal to Analysis
	// in the unified deployment; a separate sqlite file in the legacy one.
	Execution DBConfig

	// Server
	Port      string
	GinMode   string
	JWTSecret string

	// WorkerPoolSize is the Coordinator's fan-out width. Defaults to
	// min(NumCPU, 4).
	WorkerPoolSize int

	// Progress store
	ProgressStoreRoot     string
	ProgressRetentionHours float64

	// Execution id format: "uuid" (default) or "ulid".
	ExecutionIDFormat string

	// Notifier
	DiscordWebhookURL string

	// RedisURL, when set, upgrades the Progress Store's index/active.json
	// publish hook (internal/eventbus) from an in-process bus to Redis
	// pub/sub. Empty disables the publish hook's Redis backing (falls back
	// to in-memory fan-out within the process).
	RedisURL string

	// Test-isolation overrides
	TestMode       bool
	TestAnalysisDB string
	TestExecutionDB string
}

func Load() (*Config, error) {
	godotenv.Load()

	defaultPoolSize := runtime.NumCPU()
	if defaultPoolSize > 4 {
		defaultPoolSize = 4
	}

	analysisDriver := DBDriver(getEnv("ANALYSIS_DB_DRIVER", "postgres"))
	executionDriver := DBDriver(getEnv("EXECUTION_DB_DRIVER", string(analysisDriver)))

	cfg := &Config{
		Analysis: DBConfig{
			Driver:     analysisDriver,
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5433"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("ANALYSIS_DB_NAME", getEnv("DB_NAME", "ares_analysis")),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("ANALYSIS_DB_PATH", "data/analysis.db"),
		},
		Execution: DBConfig{
			Driver:     executionDriver,
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5433"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("EXECUTION_DB_NAME", getEnv("DB_NAME", "ares_analysis")),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("EXECUTION_DB_PATH", "data/execution.db"),
		},

		Port:      getEnv("PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "release"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", defaultPoolSize),

		ProgressStoreRoot:      getEnv("PROGRESS_STORE_ROOT", "data/progress"),
		ProgressRetentionHours: getEnvFloat("PROGRESS_RETENTION_HOURS", 24),

		ExecutionIDFormat: getEnv("EXECUTION_ID_FORMAT", "uuid"),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),

		TestMode:        getEnv("TEST_MODE", "") != "",
		TestAnalysisDB:  getEnv("TEST_ANALYSIS_DB", ""),
		TestExecutionDB: getEnv("TEST_EXECUTION_DB", ""),
	}

	if cfg.TestMode {
		if cfg.TestAnalysisDB != "" {
			cfg.Analysis.Driver = DriverSQLite
			cfg.Analysis.SQLitePath = cfg.TestAnalysisDB
		}
		if cfg.TestExecutionDB != "" {
			cfg.Execution.Driver = DriverSQLite
			cfg.Execution.SQLitePath = cfg.TestExecutionDB
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
