// Package pipeline drives the warehouse ETL run: locate input files, extract
// records, shape dimension and fact rows, and hand them to a loader one file
// at a time.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/warble-io/warble/internal/config"
)

// DefaultConfigPath is the default location for the pipeline run
// configuration file.
const DefaultConfigPath = ".warble.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "WARBLE_CONFIG_PATH"

// Sentinel errors for run configuration.
var (
	// ErrSongDirEmpty is returned when no song catalog directory is configured.
	ErrSongDirEmpty = errors.New("song data directory cannot be empty")

	// ErrLogDirEmpty is returned when no event log directory is configured.
	ErrLogDirEmpty = errors.New("log data directory cannot be empty")

	// ErrBadExtension is returned when the file extension filter does not
	// start with a dot.
	ErrBadExtension = errors.New("file extension must start with '.'")
)

// Config holds one pipeline run's parameters.
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type Config struct {
	// SongDir is the root of the song catalog tree.
	SongDir string `yaml:"song_dir"`

	// LogDir is the root of the listening-session log tree.
	LogDir string `yaml:"log_dir"`

	// Extension filters discovered files, leading dot included.
	Extension string `yaml:"extension"`

	// StatementRPS throttles warehouse statements per second; zero disables
	// the throttle.
	StatementRPS int `yaml:"statement_rps"`
}

// LoadConfig builds a run configuration from environment variables, then
// overlays values from a YAML file at the given path.
//
// Behavior:
//   - Missing file is fine - the env/default values stand (the file is an
//     optional convenience, not a requirement).
//   - Unreadable or invalid YAML logs a warning and keeps the env/default
//     values (graceful degradation).
func LoadConfig(path string) *Config {
	cfg := envConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Run config file not found, using environment values",
				slog.String("path", path))

			return cfg
		}

		slog.Warn("Failed to read run config file, using environment values",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg
	}

	if len(data) == 0 {
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse run config file, using environment values",
			slog.String("path", path),
			slog.String("error", err.Error()))

		// A partial unmarshal may have clobbered fields; start over.
		return envConfig()
	}

	return cfg
}

func envConfig() *Config {
	return &Config{
		SongDir:      config.GetEnvStr("WARBLE_SONG_DIR", "data/song_data"),
		LogDir:       config.GetEnvStr("WARBLE_LOG_DIR", "data/log_data"),
		Extension:    config.GetEnvStr("WARBLE_FILE_EXTENSION", ".json"),
		StatementRPS: config.GetEnvInt("WARBLE_STATEMENT_RPS", 0),
	}
}

// Validate checks the run configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SongDir) == "" {
		return ErrSongDirEmpty
	}

	if strings.TrimSpace(c.LogDir) == "" {
		return ErrLogDirEmpty
	}

	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("%w: got %q", ErrBadExtension, c.Extension)
	}

	return nil
}
