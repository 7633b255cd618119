// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"fmt"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Dialect         string        `mapstructure:"dialect"` // mysql, postgres
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	PasswordFile    string        `mapstructure:"password_file"`
	PasswordPrompt  bool          `mapstructure:"password_prompt"`
	Database        string        `mapstructure:"database"`
	Schema          string        `mapstructure:"schema"` // optional qualification prefix in generated SQL
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EngineConfig holds query pipeline parameters.
type EngineConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DSN returns a driver data source name for the configured dialect.
func (d *DatabaseConfig) DSN() (string, error) {
	switch d.Dialect {
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User,
			d.Password,
			d.Host,
			d.Port,
			d.Database,
		)
		if d.SSLMode != "" {
			dsn += fmt.Sprintf("&tls=%s", d.SSLMode)
		}
		return dsn, nil
	case "postgres":
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host,
			d.Port,
			d.User,
			d.Password,
			d.Database,
			sslMode,
		), nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", d.Dialect)
	}
}

// DriverName returns the database/sql driver name for the configured dialect.
func (d *DatabaseConfig) DriverName() string {
	if d.Dialect == "postgres" {
		return "postgres"
	}
	return "mysql"
}
