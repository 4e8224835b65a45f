package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventstudy/internal/errors"
)

func TestLoadWritesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, ConfigPath(dir))

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "1900-01-01", cfg.Study.Start)
	assert.Equal(t, "2020-12-31", cfg.Study.End)
	assert.Equal(t, 2, cfg.Study.Window)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Fetch.RateLimit)
	assert.Equal(t, filepath.Join(dir, "studies.db"), cfg.Store.Path)

	start, end, err := cfg.Bounds()
	require.NoError(t, err)
	assert.True(t, start.Before(end))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := `[data]
dir = "/srv/data"

[study]
start = "2010-01-01"
end = "2019-12-31"
window = 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
	t.Setenv("EVENT_STUDY_WINDOW", "3")
	t.Setenv("EVENT_STUDY_MARKET_FILE", "/srv/ff.csv")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", cfg.Data.Dir)
	assert.Equal(t, "/srv/ff.csv", cfg.Data.MarketFile)
	assert.Equal(t, "2010-01-01", cfg.Study.Start)
	assert.Equal(t, 3, cfg.Study.Window)
	assert.True(t, cfg.Fetch.Enabled)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("EVENT_STUDY_WINDOW", "wide")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative window", func(c *Config) { c.Study.Window = -1 }},
		{"bad start", func(c *Config) { c.Study.Start = "01/02/2010" }},
		{"end before start", func(c *Config) { c.Study.Start, c.Study.End = "2020-01-02", "2020-01-01" }},
		{"no attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"store without path", func(c *Config) { c.Store.Path = "" }},
		{"no market file", func(c *Config) { c.Data.MarketFile = "" }},
	}

	require.NoError(t, Default().Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfigInvalid)
		})
	}
}

func TestLogging(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.File = true
	cfg.Log.FilePath = "/tmp/es.log"

	lc := cfg.Logging()
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.File)
	assert.Equal(t, "/tmp/es.log", lc.FilePath)
	assert.True(t, lc.Console)
}
