package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eventstudy/internal/car"
	"eventstudy/internal/models"
	"eventstudy/pkg/utils"
)

// addStudyCommands adds the commands that compute a study.
func addStudyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newFetchCmd(app))
	rootCmd.AddCommand(newEventsCmd(app))
	rootCmd.AddCommand(newReturnsCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <ticker>",
		Short: "Run the event study for a ticker",
		Long: `Download prices and recommendations, compute the CAR of every upgrade and
downgrade and test whether the mean CAR per event type is zero.

The run is saved to the history when the store is enabled.`,
		Example: `  eventstudy run TSLA
  eventstudy run TSLA --window 5 --no-fetch
  eventstudy run AAPL --start 2015-01-01 --end 2019-12-31 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			runner, err := app.newRunner(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			result, err := runner.Run(ctx, args[0])
			if err != nil {
				output.Error("Study failed: %v", err)
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

	addStudyFlags(cmd)
	cmd.Flags().Bool("no-fetch", false, "use the CSV files already in the data directory")
	cmd.Flags().Bool("cars", false, "list the CAR of every event")

	return cmd
}

func newFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <ticker>",
		Short: "Download prices and recommendations for a ticker",
		Long: `Download daily prices and the upgrade/downgrade history of a ticker into
the data directory as <ticker>_prc.csv and <ticker>_rec.csv.`,
		Example: `  eventstudy fetch TSLA
  eventstudy fetch BRK.B --data-dir ./data`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			runner, err := app.newRunner(cmd)
			if err != nil {
				return err
			}

			ticker := strings.ToUpper(args[0])
			last := app.lastFetch(ctx, ticker)

			if err := runner.Fetch(ctx, ticker); err != nil {
				output.Error("Download failed: %v", err)
				return err
			}

			locs := runner.Locations(ticker)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"ticker":          ticker,
					"prices":          locs.PricesCSV,
					"recommendations": locs.RecsCSV,
				})
			}

			output.Success("✓ Downloaded %s", ticker)
			output.Printf("  Prices:          %s\n", locs.PricesCSV)
			output.Printf("  Recommendations: %s\n", locs.RecsCSV)
			if app.Store != nil {
				output.Dim("  Previous download: %s", FormatAge(last, time.Now()))
			}
			return nil
		},
	}

	addStudyFlags(cmd)

	return cmd
}

// lastFetch returns when ticker was last downloaded, or the zero time when
// that is unknown.
func (app *App) lastFetch(ctx context.Context, ticker string) time.Time {
	if app.Store == nil {
		return time.Time{}
	}
	last, err := app.Store.LastFetch(ctx, ticker)
	if err != nil {
		app.Logger.Debug().Err(err).Str("ticker", ticker).Msg("Failed to read previous download")
		return time.Time{}
	}
	return last
}

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <ticker>",
		Short: "List the upgrade and downgrade events of a ticker",
		Long:  "Build the events from the recommendations file in the data directory.",
		Example: `  eventstudy events TSLA
  eventstudy events TSLA --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			runner, err := app.newRunner(cmd)
			if err != nil {
				return err
			}

			evs, err := runner.Events(args[0])
			if err != nil {
				output.Error("Failed to build events: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(evs)
			}

			if len(evs) == 0 {
				output.Warning("No upgrade or downgrade events for %s", strings.ToUpper(args[0]))
				return nil
			}

			table := NewTable(output, "ID", "Date", "Firm", "Type")
			for _, ev := range evs {
				table.AddRow(fmt.Sprintf("%d", ev.ID), ev.EventDate, TruncateString(ev.Firm, 32), eventTypeLabel(output, ev.EventType))
			}
			table.Render()
			output.Println()
			output.Dim("%d events", len(evs))
			return nil
		},
	}

	addStudyFlags(cmd)

	return cmd
}

func newReturnsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "returns <ticker>",
		Short: "Show stock, market and abnormal returns",
		Long: `Show the daily returns aligned with the market factor.

With --event, show the window of one event instead: every calendar offset
from -window to +window with the abnormal return of the days that traded.`,
		Example: `  eventstudy returns TSLA --limit 20
  eventstudy returns TSLA --event 12 --window 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			runner, err := app.newRunner(cmd)
			if err != nil {
				return err
			}

			series, err := runner.Returns(args[0])
			if err != nil {
				output.Error("Failed to build returns: %v", err)
				return err
			}

			eventID, _ := cmd.Flags().GetInt("event")
			if eventID > 0 {
				return showEventWindow(output, runner.Options.Window, series, args[0], eventID, runner.Events)
			}

			records := series.Records()
			limit, _ := cmd.Flags().GetInt("limit")
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(records)
			}

			table := NewTable(output, "Date", "Return", "Market", "Abnormal")
			for _, r := range records {
				table.AddRow(
					utils.FormatDate(r.Date),
					output.Signed(r.StockReturn, utils.FormatPercent(r.StockReturn)),
					utils.FormatPercent(r.MarketReturn),
					output.Signed(r.Abnormal(), utils.FormatPercent(r.Abnormal())),
				)
			}
			table.Render()
			output.Println()
			output.Dim("%s of %s aligned returns", utils.FormatCount(int64(len(records))), utils.FormatCount(int64(series.Len())))
			return nil
		},
	}

	addStudyFlags(cmd)
	cmd.Flags().IntP("limit", "n", 20, "show the last n returns (0 for all)")
	cmd.Flags().Int("event", 0, "show the window of this event ID")

	return cmd
}

func showEventWindow(output *Output, window int, series *models.ReturnSeries, ticker string, eventID int, loadEvents func(string) ([]models.Event, error)) error {
	evs, err := loadEvents(ticker)
	if err != nil {
		return err
	}
	if eventID > len(evs) {
		return fmt.Errorf("event %d not found, %s has %d events", eventID, strings.ToUpper(ticker), len(evs))
	}
	ev := evs[eventID-1]

	dates, err := car.ExpandDates(ev, window)
	if err != nil {
		return err
	}
	matched, err := car.Abnormal(ev, series, window)
	if err != nil {
		return err
	}
	cumulative, err := car.CalcCAR(ev, series, window)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"event":    ev,
			"window":   window,
			"abnormal": matched,
			"car":      cumulative,
		})
	}

	byDate := make(map[time.Time]models.AbnormalReturn, len(matched))
	for _, m := range matched {
		byDate[m.RetDate] = m
	}

	output.Bold("Event %d: %s %s on %s", ev.ID, ev.Firm, ev.EventType, ev.EventDate)
	table := NewTable(output, "t", "Date", "Return", "Market", "Abnormal")
	for _, d := range dates {
		m, ok := byDate[d.RetDate]
		if !ok {
			table.AddRow(fmt.Sprintf("%+d", d.EventTime), utils.FormatDate(d.RetDate), output.DimText("-"), output.DimText("-"), output.DimText("-"))
			continue
		}
		table.AddRow(
			fmt.Sprintf("%+d", d.EventTime),
			utils.FormatDate(d.RetDate),
			utils.FormatPercent(m.Return),
			utils.FormatPercent(m.Market),
			output.Signed(m.Abnormal, utils.FormatPercent(m.Abnormal)),
		)
	}
	table.Render()
	output.Println()
	output.Printf("CAR: %s\n", FormatCAR(cumulative))
	return nil
}

func eventTypeLabel(output *Output, t models.EventType) string {
	switch t {
	case models.Upgrade:
		return output.Green("↑ upgrade")
	case models.Downgrade:
		return output.Red("↓ downgrade")
	default:
		return string(t)
	}
}

// displayResult prints the run header, the t-statistics and the CAR summary.
func displayResult(output *Output, result *models.StudyResult, showCars bool) {
	run := result.Run
	output.Box(fmt.Sprintf("Event study: %s", run.Ticker), []string{
		fmt.Sprintf("Run:     %s", ShortID(run.ID)),
		fmt.Sprintf("Period:  %s to %s", run.Start, run.End),
		fmt.Sprintf("Window:  ±%d days", run.Window),
		fmt.Sprintf("Returns: %s", utils.FormatCount(int64(run.NReturns))),
		fmt.Sprintf("Events:  %d", run.NEvents),
	})
	output.Println()

	if showCars {
		displayCars(output, result.Cars)
		output.Println()
	}

	displayTStats(output, result.TStats)

	if len(result.Summaries) > 0 {
		output.Println()
		displaySummaries(output, result.Summaries)
	}
}

func displayCars(output *Output, cars []models.CarRecord) {
	table := NewTable(output, "ID", "Date", "Firm", "Type", "CAR")
	for _, c := range cars {
		carText := FormatCAR(c.CAR)
		if c.CAR.Valid {
			carText = output.Signed(c.CAR.Float64, carText)
		} else {
			carText = output.DimText(carText)
		}
		table.AddRow(fmt.Sprintf("%d", c.ID), c.EventDate, TruncateString(c.Firm, 32), eventTypeLabel(output, c.EventType), carText)
	}
	table.Render()
}

func displayTStats(output *Output, rows []models.TStatRow) {
	if len(rows) == 0 {
		output.Warning("No events to test")
		return
	}

	table := NewTable(output, "Event type", "N", "Mean CAR", "SEM", "t", "p-value", "")
	for _, r := range rows {
		table.AddRow(
			r.EventType,
			fmt.Sprintf("%d", r.NObs),
			output.Signed(r.MeanCAR, utils.FormatPercent(r.MeanCAR)),
			utils.FormatPercent(r.SEM),
			FormatStat(r.TStat),
			utils.FormatPValue(r.PValue),
			SignificanceStars(r.PValue),
		)
	}
	table.Render()
	output.Dim("* p<0.1  ** p<0.05  *** p<0.01")
}

func displaySummaries(output *Output, rows []models.GroupSummary) {
	table := NewTable(output, "Event type", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max")
	for _, s := range rows {
		table.AddRow(
			s.EventType,
			fmt.Sprintf("%d", s.Count),
			utils.FormatPercent(s.Mean),
			utils.FormatPercent(s.Std),
			utils.FormatPercent(s.Min),
			utils.FormatPercent(s.Q25),
			utils.FormatPercent(s.Median),
			utils.FormatPercent(s.Q75),
			utils.FormatPercent(s.Max),
		)
	}
	table.Render()
}
