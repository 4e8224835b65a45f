package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Event Study Configuration

[data]
# Directory holding <ticker>_prc.csv and <ticker>_rec.csv
dir = "data"
# Daily market factor file with Date and mkt columns
market_file = "data/ff_daily.csv"

[study]
# Inclusive study bounds (YYYY-MM-DD)
start = "1900-01-01"
end = "2020-12-31"
# Calendar days on each side of the event date
window = 2

[fetch]
# Download prices and recommendations before each run
enabled = true
timeout = "30s"
max_attempts = 3
# Requests per second to Yahoo Finance (0 = unlimited)
rate_limit = 2.0

[store]
# Keep a history of study runs in SQLite
enabled = true
# path = "~/.config/event-study/studies.db"

[log]
# debug, info, warn, error
level = "info"
file = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// ConfigPath returns the path of the main config file in configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
