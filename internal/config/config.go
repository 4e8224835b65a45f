// Package config provides configuration management for the event study.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/logging"
)

// DateLayout is the layout used for study bounds and event dates.
const DateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Data  DataConfig  `mapstructure:"data"`
	Study StudyConfig `mapstructure:"study"`
	Fetch FetchConfig `mapstructure:"fetch"`
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
}

// DataConfig locates the input CSV files.
type DataConfig struct {
	Dir        string `mapstructure:"dir" validate:"required"`
	MarketFile string `mapstructure:"market_file" validate:"required"`
}

// StudyConfig holds the parameters of the event study itself.
type StudyConfig struct {
	Start  string `mapstructure:"start" validate:"required,datetime=2006-01-02"`
	End    string `mapstructure:"end" validate:"required,datetime=2006-01-02"`
	Window int    `mapstructure:"window" validate:"min=0,max=365"`
}

// FetchConfig controls downloading from the remote data source.
type FetchConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	// RateLimit caps requests per second to the remote API; 0 disables it.
	RateLimit   float64       `mapstructure:"rate_limit" validate:"min=0"`
}

// StoreConfig controls persistence of study runs.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/event-study"
	}
	return filepath.Join(home, ".config", "event-study")
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:        "data",
			MarketFile: filepath.Join("data", "ff_daily.csv"),
		},
		Study: StudyConfig{
			Start:  "1900-01-01",
			End:    "2020-12-31",
			Window: 2,
		},
		Fetch: FetchConfig{
			Enabled:     true,
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			RateLimit:   2,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    filepath.Join(DefaultConfigDir(), "studies.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Optional .env next to the config file, then in the working directory.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg, err := loadConfigFile(configDir, "config")
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string) (*Config, error) {
	v := newViper(configDir, name)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, create template and read it back
		if err := createTemplateConfig(configDir, name); err != nil {
			return nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(configDir, name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	d := Default()
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.market_file", d.Data.MarketFile)
	v.SetDefault("study.start", d.Study.Start)
	v.SetDefault("study.end", d.Study.End)
	v.SetDefault("study.window", d.Study.Window)
	v.SetDefault("fetch.enabled", d.Fetch.Enabled)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.max_attempts", d.Fetch.MaxAttempts)
	v.SetDefault("fetch.rate_limit", d.Fetch.RateLimit)
	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.path", filepath.Join(configDir, "studies.db"))
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "event-study.log"))
	return v
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EVENT_STUDY_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("EVENT_STUDY_MARKET_FILE"); v != "" {
		cfg.Data.MarketFile = v
	}
	if v := os.Getenv("EVENT_STUDY_START"); v != "" {
		cfg.Study.Start = v
	}
	if v := os.Getenv("EVENT_STUDY_END"); v != "" {
		cfg.Study.End = v
	}
	if v := os.Getenv("EVENT_STUDY_WINDOW"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EVENT_STUDY_WINDOW: %w", err)
		}
		cfg.Study.Window = w
	}
	if v := os.Getenv("EVENT_STUDY_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("EVENT_STUDY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}

	start, end, err := c.Bounds()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return apperrors.NewValidationError("study.end", c.Study.End, "before study.start "+c.Study.Start)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return apperrors.NewValidationError("store.path", c.Store.Path, "required when the store is enabled")
	}

	return nil
}

// Bounds parses the study start and end dates.
func (c *Config) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.Study.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: study.start: %v", apperrors.ErrConfigInvalid, err)
	}
	end, err := time.Parse(DateLayout, c.Study.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: study.end: %v", apperrors.ErrConfigInvalid, err)
	}
	return start, end, nil
}

// Logging converts the log section into a logging.LogConfig.
func (c *Config) Logging() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	lc.File = c.Log.File
	if c.Log.FilePath != "" {
		lc.FilePath = c.Log.FilePath
	}
	return lc
}
