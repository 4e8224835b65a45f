// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
	_ "github.com/mattn/go-sqlite3"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
)

// SQLiteStore implements ResultStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based result store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per study execution
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		window_days INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		n_returns INTEGER NOT NULL,
		n_events INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	-- Per-event cumulative abnormal returns; car is NULL when the window had no data
	CREATE TABLE IF NOT EXISTS cars (
		run_id TEXT NOT NULL,
		event_id INTEGER NOT NULL,
		firm TEXT NOT NULL,
		event_date TEXT NOT NULL,
		event_type TEXT NOT NULL,
		car REAL,
		PRIMARY KEY (run_id, event_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Per-event-type test results; NULL marks an undefined statistic
	CREATE TABLE IF NOT EXISTS tstats (
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		mean_car REAL,
		t_stat REAL,
		n_obs INTEGER NOT NULL,
		sem REAL,
		p_value REAL,
		PRIMARY KEY (run_id, event_type),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Last successful download per ticker
	CREATE TABLE IF NOT EXISTS fetches (
		ticker TEXT PRIMARY KEY,
		fetched_at DATETIME NOT NULL,
		n_prices INTEGER NOT NULL,
		n_recs INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult stores a run with its CARs and t-statistics in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *models.StudyResult) error {
	run := result.Run
	if run.ID == "" {
		return fmt.Errorf("%w: run has no id", apperrors.ErrDatabaseError)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, ticker, window_days, start_date, end_date, n_returns, n_events, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Ticker, run.Window, run.Start, run.End, run.NReturns, run.NEvents, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	carStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cars (run_id, event_id, firm, event_date, event_type, car)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer carStmt.Close()

	for _, c := range result.Cars {
		if _, err := carStmt.ExecContext(ctx, run.ID, c.ID, c.Firm, c.EventDate, string(c.EventType), c.CAR); err != nil {
			return fmt.Errorf("failed to insert car: %w", err)
		}
	}

	tstatStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tstats (run_id, event_type, mean_car, t_stat, n_obs, sem, p_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer tstatStmt.Close()

	for _, t := range result.TStats {
		_, err := tstatStmt.ExecContext(ctx, run.ID, t.EventType,
			models.NullFloat(t.MeanCAR), models.NullFloat(t.TStat), t.NObs,
			models.NullFloat(t.SEM), models.NullFloat(t.PValue))
		if err != nil {
			return fmt.Errorf("failed to insert tstat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRun retrieves a run by its full ID or a unique ID prefix.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.StudyRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, window_days, start_date, end_date, n_returns, n_events, created_at
		FROM runs
		WHERE id = ? OR id LIKE ? || '%'
		ORDER BY (id = ?) DESC
		LIMIT 2
	`, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunNotFound, id)
	case len(runs) > 1 && runs[0].ID != id:
		return nil, fmt.Errorf("ambiguous run id prefix %q", id)
	}
	return &runs[0], nil
}

// ListRuns returns runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.StudyRun, error) {
	query := `
		SELECT id, ticker, window_days, start_date, end_date, n_returns, n_events, created_at
		FROM runs
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]models.StudyRun, error) {
	var runs []models.StudyRun
	for rows.Next() {
		var r models.StudyRun
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Window, &r.Start, &r.End, &r.NReturns, &r.NEvents, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun removes a run and its results.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrRunNotFound, id)
	}
	return nil
}

// GetCars retrieves the CARs of a run in event order.
func (s *SQLiteStore) GetCars(ctx context.Context, runID string) ([]models.CarRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, firm, event_date, event_type, car
		FROM cars
		WHERE run_id = ?
		ORDER BY event_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cars: %w", err)
	}
	defer rows.Close()

	var cars []models.CarRecord
	for rows.Next() {
		var c models.CarRecord
		var eventType string
		if err := rows.Scan(&c.ID, &c.Firm, &c.EventDate, &eventType, &c.CAR); err != nil {
			return nil, fmt.Errorf("failed to scan car: %w", err)
		}
		c.EventType = models.EventType(eventType)
		cars = append(cars, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cars: %w", err)
	}

	return cars, nil
}

// GetTStats retrieves the t-statistics of a run ordered by event type.
func (s *SQLiteStore) GetTStats(ctx context.Context, runID string) ([]models.TStatRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, mean_car, t_stat, n_obs, sem, p_value
		FROM tstats
		WHERE run_id = ?
		ORDER BY event_type ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tstats: %w", err)
	}
	defer rows.Close()

	var out []models.TStatRow
	for rows.Next() {
		var t models.TStatRow
		var mean, tstat, sem, pvalue null.Float
		if err := rows.Scan(&t.EventType, &mean, &tstat, &t.NObs, &sem, &pvalue); err != nil {
			return nil, fmt.Errorf("failed to scan tstat: %w", err)
		}
		t.MeanCAR = orNaN(mean)
		t.TStat = orNaN(tstat)
		t.SEM = orNaN(sem)
		t.PValue = orNaN(pvalue)
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tstats: %w", err)
	}

	return out, nil
}

func orNaN(f null.Float) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

// RecordFetch remembers the last download of a ticker.
func (s *SQLiteStore) RecordFetch(ctx context.Context, ticker string, nPrices, nRecs int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fetches (ticker, fetched_at, n_prices, n_recs)
		VALUES (?, ?, ?, ?)
	`, ticker, at.UTC(), nPrices, nRecs)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// LastFetch returns when a ticker was last downloaded, or the zero time.
func (s *SQLiteStore) LastFetch(ctx context.Context, ticker string) (time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT fetched_at FROM fetches WHERE ticker = ?
	`, ticker).Scan(&at)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get last fetch: %w", err)
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}
