// Package store provides persistence of study runs.
package store

import (
	"context"
	"time"

	"eventstudy/internal/hypothesis"
	"eventstudy/internal/models"
)

// ResultStore persists study results and download bookkeeping.
type ResultStore interface {
	// Runs
	SaveResult(ctx context.Context, result *models.StudyResult) error
	GetRun(ctx context.Context, id string) (*models.StudyRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.StudyRun, error)
	DeleteRun(ctx context.Context, id string) error

	// Results
	GetCars(ctx context.Context, runID string) ([]models.CarRecord, error)
	GetTStats(ctx context.Context, runID string) ([]models.TStatRow, error)

	// Downloads
	RecordFetch(ctx context.Context, ticker string, nPrices, nRecs int, at time.Time) error
	LastFetch(ctx context.Context, ticker string) (time.Time, error)

	// Lifecycle
	Close() error
}

// RunFilter represents filters for listing study runs.
type RunFilter struct {
	Ticker string
	Limit  int
}

// LoadResult assembles a stored run with its CARs and t-statistics. Group
// summaries are rebuilt from the stored CARs.
func LoadResult(ctx context.Context, s ResultStore, id string) (*models.StudyResult, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	cars, err := s.GetCars(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	tstats, err := s.GetTStats(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	evs := make([]models.Event, 0, len(cars))
	for _, c := range cars {
		evs = append(evs, c.Event)
	}

	return &models.StudyResult{
		Run:       *run,
		Events:    evs,
		Cars:      cars,
		TStats:    tstats,
		Summaries: hypothesis.Describe(cars),
	}, nil
}
