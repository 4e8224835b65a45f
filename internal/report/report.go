// Package report exports study results as CSV, XLSX or JSON files.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/guregu/null/v6"
	"github.com/xuri/excelize/v2"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
	"eventstudy/internal/source"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// Sheet names of the XLSX workbook.
const (
	SheetCars    = "cars"
	SheetTStats  = "tstats"
	SheetSummary = "summary"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownFormat, s)
	}
}

type carCSVRow struct {
	EventID   int    `csv:"event_id"`
	Firm      string `csv:"firm"`
	EventDate string `csv:"event_date"`
	EventType string `csv:"event_type"`
	CAR       string `csv:"car"`
}

type tstatCSVRow struct {
	EventType string `csv:"event_type"`
	MeanCAR   string `csv:"mean_car"`
	TStat     string `csv:"t_stat"`
	NObs      int    `csv:"n_obs"`
	SEM       string `csv:"sem"`
	PValue    string `csv:"p_value"`
}

// cell renders a statistic; NaN becomes an empty cell.
func cell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func nullCell(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return cell(v.Float64)
}

// WriteCarsCSV writes one row per event with its CAR. Events without
// data get an empty car cell.
func WriteCarsCSV(w io.Writer, cars []models.CarRecord) error {
	rows := make([]*carCSVRow, 0, len(cars))
	for _, c := range cars {
		rows = append(rows, &carCSVRow{
			EventID:   c.ID,
			Firm:      c.Firm,
			EventDate: c.EventDate,
			EventType: string(c.EventType),
			CAR:       nullCell(c.CAR),
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteTStatsCSV writes the t-statistics table.
func WriteTStatsCSV(w io.Writer, tstats []models.TStatRow) error {
	rows := make([]*tstatCSVRow, 0, len(tstats))
	for _, t := range tstats {
		rows = append(rows, &tstatCSVRow{
			EventType: t.EventType,
			MeanCAR:   cell(t.MeanCAR),
			TStat:     cell(t.TStat),
			NObs:      t.NObs,
			SEM:       cell(t.SEM),
			PValue:    cell(t.PValue),
		})
	}
	return gocsv.Marshal(&rows, w)
}

// BaseName returns the file name prefix used for a run's exports.
func BaseName(run models.StudyRun) string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return source.FileStem(run.Ticker) + "_" + id
}

// Export writes result into dir in the given format and returns the
// written paths. CSV produces a cars and a tstats file; XLSX and JSON
// produce a single file.
func Export(result *models.StudyResult, dir string, format Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	base := filepath.Join(dir, BaseName(result.Run))

	switch format {
	case FormatCSV:
		carsPath := base + "_cars.csv"
		if err := writeFile(carsPath, func(w io.Writer) error { return WriteCarsCSV(w, result.Cars) }); err != nil {
			return nil, err
		}
		tstatsPath := base + "_tstats.csv"
		if err := writeFile(tstatsPath, func(w io.Writer) error { return WriteTStatsCSV(w, result.TStats) }); err != nil {
			return nil, err
		}
		return []string{carsPath, tstatsPath}, nil

	case FormatXLSX:
		path := base + ".xlsx"
		if err := WriteXLSX(path, result); err != nil {
			return nil, err
		}
		return []string{path}, nil

	case FormatJSON:
		path := base + ".json"
		err := writeFile(path, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		})
		if err != nil {
			return nil, err
		}
		return []string{path}, nil

	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownFormat, format)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX saves result as a workbook with cars, tstats and summary sheets.
// Undefined statistics are left as blank cells.
func WriteXLSX(path string, result *models.StudyResult) error {
	f := excelize.NewFile()
	defer f.Close()

	carRows := [][]interface{}{{"event_id", "firm", "event_date", "event_type", "car"}}
	for _, c := range result.Cars {
		carRows = append(carRows, []interface{}{c.ID, c.Firm, c.EventDate, string(c.EventType), nullValue(c.CAR)})
	}

	tstatRows := [][]interface{}{{"event_type", "mean_car", "t_stat", "n_obs", "sem", "p_value"}}
	for _, t := range result.TStats {
		tstatRows = append(tstatRows, []interface{}{t.EventType, value(t.MeanCAR), value(t.TStat), t.NObs, value(t.SEM), value(t.PValue)})
	}

	summaryRows := [][]interface{}{{"event_type", "count", "mean", "std", "min", "25%", "50%", "75%", "max"}}
	for _, s := range result.Summaries {
		summaryRows = append(summaryRows, []interface{}{
			s.EventType, s.Count, value(s.Mean), value(s.Std), value(s.Min),
			value(s.Q25), value(s.Median), value(s.Q75), value(s.Max),
		})
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{SheetCars, carRows},
		{SheetTStats, tstatRows},
		{SheetSummary, summaryRows},
	}
	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet.name, err)
		}
		if err := setRows(f, sheet.name, sheet.rows); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetCars); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, name, v); err != nil {
				return fmt.Errorf("writing %s!%s: %w", sheet, name, err)
			}
		}
	}
	return nil
}

func value(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullValue(v null.Float) interface{} {
	if !v.Valid {
		return nil
	}
	return value(v.Float64)
}
