package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/warble-io/warble/internal/config"
)

// Config holds all configuration for the migration tool.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// MigrationsPath is an optional directory of migration files.
	// When empty, the migrations embedded in the binary are used.
	MigrationsPath string

	// MigrationTable is the name of the table used to track applied migrations
	MigrationTable string
}

// LoadConfig loads configuration from environment variables. MIGRATIONS_PATH
// is deliberately unset by default so deployments run off the embedded files.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationsPath: config.GetEnvStr("MIGRATIONS_PATH", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. A non-empty
// MigrationsPath must point at an existing directory.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	if c.MigrationsPath != "" {
		absPath, err := filepath.Abs(c.MigrationsPath)
		if err != nil {
			return fmt.Errorf("failed to resolve migrations path: %w", err)
		}

		c.MigrationsPath = absPath

		info, err := os.Stat(c.MigrationsPath)
		if os.IsNotExist(err) {
			return fmt.Errorf("migrations directory does not exist: %s", c.MigrationsPath)
		}

		if err == nil && !info.IsDir() {
			return fmt.Errorf("migrations path is not a directory: %s", c.MigrationsPath)
		}
	}

	return nil
}

// String returns a representation of the configuration safe for logging.
func (c *Config) String() string {
	source := c.MigrationsPath
	if source == "" {
		source = "embedded"
	}

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsSource: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), source, c.MigrationTable)
}

// maskDatabaseURL hides the password component of a connection string.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	u.User = url.UserPassword(u.User.Username(), "***")

	return u.String()
}
