package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:         "mysql",
			Host:            "localhost",
			Port:            3306,
			User:            "reconql",
			Database:        "test",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Engine: EngineConfig{
			Workers:      4,
			QueryTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	result := validConfig().Validate()
	assert.False(t, result.HasErrors(), result.Error())
	assert.Empty(t, result.Warnings)
}

func TestValidateRejectsBadDialect(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Dialect = "oracle"

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "database.dialect")
}

func TestValidateRejectsBadPortAndWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Port = 0
	cfg.Engine.Workers = 0

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Len(t, result.Errors, 2)
}

func TestValidateWarnsOnIdleExceedingOpen(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MaxIdleConns = 50

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "database.max_idle_conns", result.Warnings[0].Field)
}

func TestValidateRejectsBadLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Len(t, result.Errors, 2)
}

func TestMySQLDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "secret"

	dsn, err := cfg.Database.DSN()
	require.NoError(t, err)
	assert.Equal(t, "reconql:secret@tcp(localhost:3306)/test?parseTime=true", dsn)

	cfg.Database.SSLMode = "skip-verify"
	dsn, err = cfg.Database.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "&tls=skip-verify")
}

func TestPostgresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Dialect = "postgres"
	cfg.Database.Port = 5432
	cfg.Database.Password = "secret"

	dsn, err := cfg.Database.DSN()
	require.NoError(t, err)
	assert.Equal(t,
		"host=localhost port=5432 user=reconql password=secret dbname=test sslmode=disable",
		dsn)
	assert.Equal(t, "postgres", cfg.Database.DriverName())
}

func TestUnknownDialectDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Dialect = "oracle"

	_, err := cfg.Database.DSN()
	assert.Error(t, err)
}
