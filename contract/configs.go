package contract

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/huangsam/kpi/schema"
	"github.com/spf13/viper"
)

// Default values for configuration.
const (
	DefaultBackend   = schema.SQLiteBackend
	DefaultInterval  = schema.Day
	DefaultLogLevel  = "info"
	DefaultOutput    = schema.TextOut
	DefaultPrecision = 2
	MaxPrecision     = 8
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "KPI"

// Config holds the validated runtime configuration for a KPI store.
type Config struct {
	Backend         schema.DatabaseBackend
	DBConnect       string // Please use env var as this is plaintext
	DefaultInterval schema.Interval
	LogLevel        slog.Level
	Output          schema.OutputMode
	Precision       int
}

// ConfigRawInput holds the raw inputs from the config file and environment.
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	Backend   string `mapstructure:"backend"`
	DBConnect string `mapstructure:"db-connect"`
	Interval  string `mapstructure:"interval"`
	LogLevel  string `mapstructure:"log-level"`
	Output    string `mapstructure:"output"`
	Precision int    `mapstructure:"precision"`
}

// LoadConfig reads configuration from file, or from .kpi.yaml in the working directory
// or $HOME when file is empty. Environment variables such as KPI_BACKEND and
// KPI_DB_CONNECT override file values. A missing default config file is not an error.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".kpi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("db-connect", "")
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("precision", DefaultPrecision)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	input := &ConfigRawInput{}
	if err := v.Unmarshal(input); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return ProcessAndValidate(input)
}

// ProcessAndValidate converts raw input into a validated Config.
func ProcessAndValidate(input *ConfigRawInput) (*Config, error) {
	backend, err := schema.ParseDatabaseBackend(input.Backend)
	if err != nil {
		return nil, fmt.Errorf("invalid backend: %w", err)
	}
	if err := ValidateDatabaseConnectionString(backend, input.DBConnect); err != nil {
		return nil, err
	}

	interval := DefaultInterval
	if input.Interval != "" {
		if interval, err = schema.ParseInterval(input.Interval); err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
	}

	var level slog.Level
	if input.LogLevel != "" {
		if err := level.UnmarshalText([]byte(input.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level '%s': %w", input.LogLevel, err)
		}
	}

	output := DefaultOutput
	if input.Output != "" {
		if output, err = schema.ParseOutputMode(input.Output); err != nil {
			return nil, fmt.Errorf("invalid output: %w", err)
		}
	}

	if input.Precision < 0 || input.Precision > MaxPrecision {
		return nil, fmt.Errorf("precision must be between 0 and %d", MaxPrecision)
	}

	return &Config{
		Backend:         backend,
		DBConnect:       input.DBConnect,
		DefaultInterval: interval,
		LogLevel:        level,
		Output:          output,
		Precision:       input.Precision,
	}, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.MemoryBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	default:
		return fmt.Errorf("%w: %s", schema.ErrUnsupportedBackend, backend)
	}
	return nil
}

// GetDBFilePath returns the path to the default SQLite DB file for KPI storage.
func GetDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".kpi.db"
	}
	return filepath.Join(homeDir, ".kpi.db")
}
