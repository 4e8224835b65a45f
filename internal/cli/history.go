package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eventstudy/internal/report"
	"eventstudy/internal/store"
)

// addHistoryCommands adds the commands that read saved runs.
func addHistoryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newShowCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newDeleteCmd(app))
}

func requireStore(app *App) error {
	if app.Store == nil {
		return fmt.Errorf("run history is unavailable: the store is disabled or failed to open")
	}
	return nil
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [ticker]",
		Short: "List saved study runs",
		Example: `  eventstudy history
  eventstudy history TSLA --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			filter := store.RunFilter{}
			if len(args) == 1 {
				filter.Ticker = strings.ToUpper(args[0])
			}
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			runs, err := app.Store.ListRuns(context.Background(), filter)
			if err != nil {
				output.Error("Failed to list runs: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}

			if len(runs) == 0 {
				output.Dim("No saved runs")
				return nil
			}

			table := NewTable(output, "Run", "Ticker", "Window", "Period", "Returns", "Events", "Created")
			for _, r := range runs {
				table.AddRow(
					ShortID(r.ID),
					r.Ticker,
					fmt.Sprintf("±%d", r.Window),
					r.Start+" to "+r.End,
					fmt.Sprintf("%d", r.NReturns),
					fmt.Sprintf("%d", r.NEvents),
					FormatDateTime(r.CreatedAt),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "maximum number of runs")

	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a saved run",
		Long:  "Show a saved run. A unique prefix of the run ID is enough.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			result, err := store.LoadResult(context.Background(), app.Store, args[0])
			if err != nil {
				output.Error("Failed to load run: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			showCars, _ := cmd.Flags().GetBool("cars")
			displayResult(output, result, showCars)
			return nil
		},
	}

	cmd.Flags().Bool("cars", false, "list the CAR of every event")

	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a saved run to CSV, XLSX or JSON",
		Example: `  eventstudy export 0f8fad5b
  eventstudy export 0f8fad5b --format xlsx --out reports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			formatName, _ := cmd.Flags().GetString("format")
			format, err := report.ParseFormat(formatName)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("out")

			result, err := store.LoadResult(context.Background(), app.Store, args[0])
			if err != nil {
				output.Error("Failed to load run: %v", err)
				return err
			}

			paths, err := report.Export(result, dir, format)
			if err != nil {
				output.Error("Export failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"run": result.Run.ID, "files": paths})
			}
			for _, p := range paths {
				output.Success("✓ Wrote %s", p)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "csv", "export format (csv, xlsx, json)")
	cmd.Flags().StringP("out", "o", ".", "output directory")

	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			ctx := context.Background()
			run, err := app.Store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.DeleteRun(ctx, run.ID); err != nil {
				output.Error("Failed to delete run: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": run.ID})
			}
			output.Success("✓ Deleted run %s", ShortID(run.ID))
			return nil
		},
	}
}
