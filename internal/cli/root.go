package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"eventstudy/internal/config"
	"eventstudy/internal/logging"
	"eventstudy/internal/source"
	"eventstudy/internal/store"
	"eventstudy/internal/study"
	"eventstudy/pkg/utils"
)

// Version information, overridden at build time with
//
//	go build -ldflags "-X eventstudy/internal/cli.Version=1.2.0 -X eventstudy/internal/cli.BuildDate=$(date -u +%F)"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// skipSetup marks commands that run without loading configuration.
const skipSetup = "skip-setup"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.ResultStore
}

// NewRootCmd creates the root command for the CLI. Configuration, logging
// and the result store are set up once the flags are parsed.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "eventstudy",
		Short: "Event study of analyst upgrades and downgrades",
		Long: `eventstudy measures how a stock reacts to analyst recommendation changes.

It downloads daily prices and the upgrade/downgrade history of a ticker,
computes cumulative abnormal returns (CARs) around each event against a
market factor, and tests whether the mean CAR of upgrades and downgrades
differs from zero.

Use 'eventstudy run <ticker>' to run a study.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/event-study)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addStudyCommands(rootCmd, app)
	addHistoryCommands(rootCmd, app)

	return rootCmd
}

// setup loads configuration and opens the store.
func (app *App) setup(cmd *cobra.Command) error {
	app.ConfigDir, _ = cmd.Flags().GetString("config")

	cfg, err := config.Load(app.ConfigDir)
	if err != nil {
		return err
	}
	app.Config = cfg
	app.Logger = logging.NewLoggerWithConfig(cfg.Logging())

	// Handle debug flag
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		logging.SetDebugLevel()
		app.Logger = app.Logger.Level(zerolog.DebugLevel)
	}

	if cfg.Store.Enabled {
		dataStore, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to initialize store, run history will be unavailable")
		} else {
			app.Store = dataStore
			app.Logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
		}
	}

	return nil
}

// Close releases the store.
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	err := app.Store.Close()
	app.Store = nil
	return err
}

// newRunner builds a study runner from the configuration and the study flags
// of cmd.
func (app *App) newRunner(cmd *cobra.Command) (*study.Runner, error) {
	cfg := *app.Config

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Data.Dir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("market-file") {
		cfg.Data.MarketFile, _ = flags.GetString("market-file")
	}
	if flags.Changed("start") {
		cfg.Study.Start, _ = flags.GetString("start")
	}
	if flags.Changed("end") {
		cfg.Study.End, _ = flags.GetString("end")
	}
	if flags.Changed("window") {
		cfg.Study.Window, _ = flags.GetInt("window")
	}
	if noFetch, _ := flags.GetBool("no-fetch"); noFetch {
		cfg.Fetch.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := study.OptionsFromConfig(&cfg)
	if err != nil {
		return nil, err
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Fetch.MaxAttempts

	timeout := cfg.Fetch.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Both sources hit Yahoo and share one budget.
	limiter := utils.NewRateLimiter(cfg.Fetch.RateLimit, 1)
	prices := source.NewYahooPrices(retry, app.Logger)
	prices.Limiter = limiter
	recs := source.NewYahooRecommendations(timeout, retry, app.Logger)
	recs.Limiter = limiter

	return study.NewRunner(opts, prices, recs, app.Store, app.Logger), nil
}

// addStudyFlags adds the flags that override the [data] and [study] config.
func addStudyFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "directory holding <ticker>_prc.csv and <ticker>_rec.csv")
	cmd.Flags().String("market-file", "", "market factor CSV with date and mkt columns")
	cmd.Flags().String("start", "", "study start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "study end date (YYYY-MM-DD)")
	cmd.Flags().IntP("window", "w", 0, "calendar days on each side of the event date")
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("eventstudy v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			path := config.ConfigPath(dir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Data")
	output.Printf("  Directory:       %s\n", cfg.Data.Dir)
	output.Printf("  Market file:     %s\n", cfg.Data.MarketFile)
	output.Println()

	output.Bold("Study")
	output.Printf("  Start:           %s\n", cfg.Study.Start)
	output.Printf("  End:             %s\n", cfg.Study.End)
	output.Printf("  Window:          ±%d days\n", cfg.Study.Window)
	output.Println()

	output.Bold("Fetch")
	output.Printf("  Enabled:         %v\n", cfg.Fetch.Enabled)
	output.Printf("  Timeout:         %s\n", cfg.Fetch.Timeout)
	output.Printf("  Max attempts:    %d\n", cfg.Fetch.MaxAttempts)
	output.Printf("  Rate limit:      %.1f req/s\n", cfg.Fetch.RateLimit)
	output.Println()

	output.Bold("Store")
	output.Printf("  Enabled:         %v\n", cfg.Store.Enabled)
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	output.Printf("  File:            %v\n", cfg.Log.File)
}
