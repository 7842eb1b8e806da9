package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".warble.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "data/song_data", cfg.SongDir)
	assert.Equal(t, "data/log_data", cfg.LogDir)
	assert.Equal(t, ".json", cfg.Extension)
	assert.Equal(t, 0, cfg.StatementRPS)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WARBLE_SONG_DIR", "/srv/catalog")
	t.Setenv("WARBLE_LOG_DIR", "/srv/logs")
	t.Setenv("WARBLE_STATEMENT_RPS", "50")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "/srv/catalog", cfg.SongDir)
	assert.Equal(t, "/srv/logs", cfg.LogDir)
	assert.Equal(t, 50, cfg.StatementRPS)
}

func TestLoadConfig_FileOverlaysEnv(t *testing.T) {
	t.Setenv("WARBLE_SONG_DIR", "/srv/catalog")

	path := writeConfigFile(t, "song_dir: /mnt/songs\nlog_dir: /mnt/logs\nstatement_rps: 10\n")

	cfg := LoadConfig(path)

	assert.Equal(t, "/mnt/songs", cfg.SongDir)
	assert.Equal(t, "/mnt/logs", cfg.LogDir)
	assert.Equal(t, 10, cfg.StatementRPS)
	// Untouched keys keep their env/default values.
	assert.Equal(t, ".json", cfg.Extension)
}

func TestLoadConfig_InvalidYAMLFallsBack(t *testing.T) {
	path := writeConfigFile(t, "song_dir: [unclosed\n")

	cfg := LoadConfig(path)

	assert.Equal(t, "data/song_data", cfg.SongDir)
	assert.Equal(t, "data/log_data", cfg.LogDir)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg := LoadConfig(path)

	assert.Equal(t, "data/song_data", cfg.SongDir)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid", Config{SongDir: "a", LogDir: "b", Extension: ".json"}, nil},
		{"empty song dir", Config{LogDir: "b", Extension: ".json"}, ErrSongDirEmpty},
		{"empty log dir", Config{SongDir: "a", Extension: ".json"}, ErrLogDirEmpty},
		{"extension without dot", Config{SongDir: "a", LogDir: "b", Extension: "json"}, ErrBadExtension},
		{"empty extension", Config{SongDir: "a", LogDir: "b"}, ErrBadExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
