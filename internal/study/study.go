// Package study sequences the event study pipeline for one ticker.
package study

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventstudy/internal/car"
	"eventstudy/internal/config"
	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/events"
	"eventstudy/internal/hypothesis"
	"eventstudy/internal/logging"
	"eventstudy/internal/models"
	"eventstudy/internal/returns"
	"eventstudy/internal/source"
	"eventstudy/internal/store"
	"eventstudy/pkg/utils"
)

// Options are the per-run parameters.
type Options struct {
	DataDir    string
	MarketFile string
	Start      time.Time
	End        time.Time
	Window     int
	Fetch      bool
}

// OptionsFromConfig derives run options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	start, end, err := cfg.Bounds()
	if err != nil {
		return Options{}, err
	}
	return Options{
		DataDir:    cfg.Data.Dir,
		MarketFile: cfg.Data.MarketFile,
		Start:      start,
		End:        end,
		Window:     cfg.Study.Window,
		Fetch:      cfg.Fetch.Enabled,
	}, nil
}

// Runner runs studies. Prices and Recs are only used when Options.Fetch is
// set; Store may be nil.
type Runner struct {
	Options Options
	Prices  source.PriceSource
	Recs    source.RecommendationSource
	Store   store.ResultStore
	Logger  zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewRunner creates a Runner.
func NewRunner(opts Options, prices source.PriceSource, recs source.RecommendationSource, st store.ResultStore, logger zerolog.Logger) *Runner {
	return &Runner{
		Options: opts,
		Prices:  prices,
		Recs:    recs,
		Store:   st,
		Logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Locations returns the source files of ticker.
func (r *Runner) Locations(ticker string) source.Locations {
	return source.Locate(r.Options.DataDir, ticker)
}

// Fetch downloads prices and recommendations for ticker into the data
// directory. It logs through the logger carried by ctx when there is one.
func (r *Runner) Fetch(ctx context.Context, ticker string) error {
	if err := source.ValidateTicker(ticker); err != nil {
		return err
	}
	if r.Prices == nil || r.Recs == nil {
		return apperrors.ErrSourceDisabled
	}

	if _, ok := ctx.Value(logging.LoggerKey).(zerolog.Logger); !ok {
		ctx = logging.WithLogger(ctx, logging.WithTicker(r.Logger, ticker))
	}
	log := logging.WithStage(logging.FromContext(ctx), "fetch")
	began := time.Now()

	nPrices, nRecs, err := source.Download(ctx, r.Prices, r.Recs, r.Locations(ticker), ticker, r.Options.Start, r.Options.End)
	if err != nil {
		return apperrors.Wrapf(err, "downloading %s", ticker)
	}
	log.Info().Int("prices", nPrices).Int("recommendations", nRecs).Dur("elapsed", time.Since(began)).Msg("Downloaded source data")

	if r.Store != nil {
		if err := r.Store.RecordFetch(ctx, strings.ToUpper(ticker), nPrices, nRecs, r.now()); err != nil {
			log.Warn().Err(err).Msg("Failed to record download")
		}
	}
	return nil
}

// Returns builds the aligned return series for ticker from disk.
func (r *Runner) Returns(ticker string) (*models.ReturnSeries, error) {
	return returns.Load(r.Locations(ticker).PricesCSV, r.Options.MarketFile)
}

// Events builds the events for ticker from disk.
func (r *Runner) Events(ticker string) ([]models.Event, error) {
	return events.Load(r.Locations(ticker).RecsCSV)
}

// Run executes the full study for ticker: optional download, returns,
// events, CARs and t-statistics. The result is saved when a store is set.
func (r *Runner) Run(ctx context.Context, ticker string) (*models.StudyResult, error) {
	if err := source.ValidateTicker(ticker); err != nil {
		return nil, err
	}
	if r.Options.Window < 0 {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrInvalidWindow, r.Options.Window)
	}

	runID := r.newID()
	log := logging.WithRunID(logging.WithTicker(r.Logger, ticker), runID)
	ctx = logging.WithLogger(ctx, log)

	if r.Options.Fetch {
		if err := r.Fetch(ctx, ticker); err != nil {
			return nil, err
		}
	} else {
		log.Debug().Msg("Fetch disabled, using files on disk")
	}

	began := time.Now()
	series, err := r.Returns(ticker)
	if err != nil {
		return nil, apperrors.Wrap(err, "building returns")
	}
	logging.LogStage(log, "returns", series.Len(), time.Since(began))
	if series.Len() == 0 {
		log.Warn().Msg("No overlap between price and market dates")
	}

	began = time.Now()
	evs, err := r.Events(ticker)
	if err != nil {
		return nil, apperrors.Wrap(err, "building events")
	}
	logging.LogStage(log, "events", len(evs), time.Since(began))

	began = time.Now()
	cars, err := car.MakeCars(evs, series, r.Options.Window)
	if err != nil {
		return nil, apperrors.Wrap(err, "computing cars")
	}
	logging.LogStage(log, "cars", len(cars), time.Since(began))

	began = time.Now()
	tstats := hypothesis.CalcTStats(cars)
	summaries := hypothesis.Describe(cars)
	logging.LogStage(log, "tstats", len(tstats), time.Since(began))

	result := &models.StudyResult{
		Run: models.StudyRun{
			ID:        runID,
			Ticker:    strings.ToUpper(ticker),
			Window:    r.Options.Window,
			Start:     utils.FormatDate(r.Options.Start),
			End:       utils.FormatDate(r.Options.End),
			NReturns:  series.Len(),
			NEvents:   len(evs),
			CreatedAt: r.now().UTC(),
		},
		Returns:   series,
		Events:    evs,
		Cars:      cars,
		TStats:    tstats,
		Summaries: summaries,
	}

	if r.Store != nil {
		if err := r.Store.SaveResult(ctx, result); err != nil {
			return nil, apperrors.Wrap(err, "saving run")
		}
		log.Debug().Msg("Saved run")
	}

	return result, nil
}
