// Package hypothesis tests whether mean CARs differ from zero per event type.
package hypothesis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"eventstudy/internal/models"
)

// group collects the valid CARs of one event type. Types whose CARs are all
// missing still form a group with no observations.
func group(cars []models.CarRecord) (map[string][]float64, []string) {
	groups := make(map[string][]float64)
	for _, c := range cars {
		key := string(c.EventType)
		vals, ok := groups[key]
		if !ok {
			vals = []float64{}
		}
		if c.CAR.Valid && !math.IsNaN(c.CAR.Float64) {
			vals = append(vals, c.CAR.Float64)
		}
		groups[key] = vals
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

// CalcTStats computes the mean CAR, its standard error, t-statistic,
// two-sided p-value and observation count for each event type. Rows are
// ordered by event type. Undefined statistics are NaN.
func CalcTStats(cars []models.CarRecord) []models.TStatRow {
	groups, keys := group(cars)

	rows := make([]models.TStatRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, tstat(k, groups[k]))
	}
	return rows
}

func tstat(eventType string, vals []float64) models.TStatRow {
	n := len(vals)
	row := models.TStatRow{
		EventType: eventType,
		MeanCAR:   math.NaN(),
		TStat:     math.NaN(),
		SEM:       math.NaN(),
		PValue:    math.NaN(),
		NObs:      n,
	}
	if n == 0 {
		return row
	}

	row.MeanCAR = stat.Mean(vals, nil)
	if n < 2 {
		return row
	}

	row.SEM = stat.StdDev(vals, nil) / math.Sqrt(float64(n))
	if row.SEM == 0 || math.IsNaN(row.SEM) {
		return row
	}

	row.TStat = row.MeanCAR / row.SEM
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	row.PValue = 2 * dist.Survival(math.Abs(row.TStat))
	return row
}

// Describe summarizes the valid CARs of each event type with count, mean,
// sample standard deviation, min, quartiles and max.
func Describe(cars []models.CarRecord) []models.GroupSummary {
	groups, keys := group(cars)

	out := make([]models.GroupSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, summarize(k, groups[k]))
	}
	return out
}

func summarize(eventType string, vals []float64) models.GroupSummary {
	nan := math.NaN()
	s := models.GroupSummary{
		EventType: eventType,
		Count:     len(vals),
		Mean:      nan,
		Std:       nan,
		Min:       nan,
		Q25:       nan,
		Median:    nan,
		Q75:       nan,
		Max:       nan,
	}
	if len(vals) == 0 {
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.50)
	s.Q75 = quantile(sorted, 0.75)
	return s
}

// quantile interpolates linearly between order statistics at rank
// p*(n-1), the convention used by describe() in dataframe libraries.
// sorted must be ascending and non-empty.
func quantile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
