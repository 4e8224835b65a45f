// Package source defines the price and recommendation data sources, the
// on-disk layout of downloaded files and their CSV persistence.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
	"eventstudy/pkg/utils"
)

// PriceSource downloads daily prices for a ticker in [start, end).
type PriceSource interface {
	FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceRow, error)
}

// RecommendationSource downloads analyst recommendation changes for a
// ticker dated on or after start and on or before end.
type RecommendationSource interface {
	FetchRecommendations(ctx context.Context, ticker string, start, end time.Time) ([]models.RecommendationRow, error)
}

// Locations are the per-ticker source files under a data directory.
type Locations struct {
	PricesCSV string
	RecsCSV   string
}

// FileStem lower-cases a ticker and replaces "." with "_".
func FileStem(ticker string) string {
	return strings.ReplaceAll(strings.ToLower(ticker), ".", "_")
}

// Locate returns the file locations for ticker under dataDir.
func Locate(dataDir, ticker string) Locations {
	stem := FileStem(ticker)
	return Locations{
		PricesCSV: filepath.Join(dataDir, stem+"_prc.csv"),
		RecsCSV:   filepath.Join(dataDir, stem+"_rec.csv"),
	}
}

// ValidateTicker rejects tickers that cannot form a file name.
func ValidateTicker(ticker string) error {
	t := strings.TrimSpace(ticker)
	if t == "" || strings.ContainsAny(t, `/\ `) || strings.Contains(t, "..") {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidTicker, ticker)
	}
	return nil
}

type priceCSVRow struct {
	Date     string `csv:"Date"`
	Open     string `csv:"Open"`
	High     string `csv:"High"`
	Low      string `csv:"Low"`
	Close    string `csv:"Close"`
	AdjClose string `csv:"Adj Close"`
	Volume   int64  `csv:"Volume"`
}

type recCSVRow struct {
	Date      string `csv:"Date"`
	Firm      string `csv:"Firm"`
	ToGrade   string `csv:"To Grade"`
	FromGrade string `csv:"From Grade"`
	Action    string `csv:"Action"`
}

// WritePrices saves price rows in the Yahoo download layout.
func WritePrices(path string, rows []models.PriceRow) error {
	out := make([]*priceCSVRow, 0, len(rows))
	for _, r := range rows {
		row := &priceCSVRow{
			Date:     utils.FormatDate(r.Date),
			Open:     r.Open.String(),
			High:     r.High.String(),
			Low:      r.Low.String(),
			AdjClose: r.AdjClose.String(),
			Volume:   r.Volume,
		}
		if r.Close.Valid {
			row.Close = r.Close.Decimal.String()
		}
		out = append(out, row)
	}
	return writeCSV(path, &out)
}

// WriteRecommendations saves recommendation rows in the Yahoo download layout.
func WriteRecommendations(path string, rows []models.RecommendationRow) error {
	out := make([]*recCSVRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &recCSVRow{
			Date:      r.Timestamp.Format("2006-01-02 15:04:05"),
			Firm:      r.Firm,
			ToGrade:   r.ToGrade,
			FromGrade: r.FromGrade,
			Action:    r.Action,
		})
	}
	return writeCSV(path, &out)
}

func writeCSV(path string, rows interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Download fetches prices and recommendations for ticker and saves them at
// the ticker's locations. Nothing is written unless both fetches succeed, so
// the two files always come from the same download.
func Download(ctx context.Context, prices PriceSource, recs RecommendationSource, locs Locations, ticker string, start, end time.Time) (int, int, error) {
	priceRows, err := prices.FetchPrices(ctx, ticker, start, end)
	if err != nil {
		return 0, 0, err
	}
	recRows, err := recs.FetchRecommendations(ctx, ticker, start, end)
	if err != nil {
		return 0, 0, err
	}

	if err := WritePrices(locs.PricesCSV, priceRows); err != nil {
		return 0, 0, err
	}
	if err := WriteRecommendations(locs.RecsCSV, recRows); err != nil {
		return len(priceRows), 0, err
	}

	return len(priceRows), len(recRows), nil
}
