// Package returns builds the aligned daily stock and market return series.
package returns

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
	"eventstudy/internal/table"
	"eventstudy/pkg/utils"
)

// MarketSeries maps a trading date to the market return on that date.
type MarketSeries map[time.Time]float64

// Build computes close-to-close stock returns and inner-joins them with the
// market series on date. The first trading day has no return, and any day
// with a missing value on either side is dropped.
func Build(prices []models.PriceRow, market MarketSeries) *models.ReturnSeries {
	sorted := make([]models.PriceRow, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	records := make([]models.ReturnRecord, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		ret, ok := pctChange(sorted[i-1].Close, sorted[i].Close)
		if !ok {
			continue
		}

		date := utils.TruncateDay(sorted[i].Date)
		mkt, ok := market[date]
		if !ok || math.IsNaN(mkt) {
			continue
		}

		records = append(records, models.ReturnRecord{
			Date:         date,
			StockReturn:  ret,
			MarketReturn: mkt,
		})
	}

	return models.NewReturnSeries(records)
}

func pctChange(prev, cur decimal.NullDecimal) (float64, bool) {
	if !prev.Valid || !cur.Valid || prev.Decimal.IsZero() {
		return 0, false
	}
	p := prev.Decimal.InexactFloat64()
	c := cur.Decimal.InexactFloat64()
	ret := c/p - 1
	if math.IsNaN(ret) || math.IsInf(ret, 0) {
		return 0, false
	}
	return ret, true
}

// Load reads the price file and the market factor file and builds the
// aligned return series.
func Load(pricesPath, marketPath string) (*models.ReturnSeries, error) {
	prices, err := LoadPrices(pricesPath)
	if err != nil {
		return nil, err
	}

	market, err := LoadMarket(marketPath)
	if err != nil {
		return nil, err
	}

	return Build(prices, market), nil
}

// LoadPrices reads a daily price CSV. Only date and close are required.
func LoadPrices(path string) ([]models.PriceRow, error) {
	f, err := table.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDataError("prices", path, "reading file", err)
	}
	if err := f.Require("date", "close"); err != nil {
		return nil, err
	}
	f.Normalize()

	rows := make([]models.PriceRow, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		date, err := utils.ParseDate(f.Get(i, "date"))
		if err != nil {
			return nil, apperrors.NewDataError("prices", path, "row "+strconv.Itoa(i+2), err)
		}

		row := models.PriceRow{
			Date:     date,
			Open:     parseDecimal(f.Get(i, "open")),
			High:     parseDecimal(f.Get(i, "high")),
			Low:      parseDecimal(f.Get(i, "low")),
			AdjClose: parseDecimal(f.Get(i, "adj_close")),
			Volume:   parseVolume(f.Get(i, "volume")),
		}

		if cell := f.Get(i, "close"); !table.IsMissing(cell) {
			d, err := decimal.NewFromString(cell)
			if err != nil {
				return nil, apperrors.NewDataError("prices", path, "row "+strconv.Itoa(i+2)+" close", err)
			}
			row.Close = decimal.NewNullDecimal(d)
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// LoadMarket reads the market factor file. Rows without a mkt value are skipped.
func LoadMarket(path string) (MarketSeries, error) {
	f, err := table.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDataError("market", path, "reading file", err)
	}
	if err := f.Require("date", "mkt"); err != nil {
		return nil, err
	}
	f.Normalize()

	market := make(MarketSeries, f.Len())
	for i := 0; i < f.Len(); i++ {
		cell := f.Get(i, "mkt")
		if table.IsMissing(cell) {
			continue
		}

		date, err := utils.ParseDate(f.Get(i, "date"))
		if err != nil {
			return nil, apperrors.NewDataError("market", path, "row "+strconv.Itoa(i+2), err)
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, apperrors.NewDataError("market", path, "row "+strconv.Itoa(i+2)+" mkt", err)
		}
		market[date] = v
	}
	return market, nil
}

func parseDecimal(cell string) decimal.Decimal {
	if table.IsMissing(cell) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseVolume(cell string) int64 {
	if table.IsMissing(cell) {
		return 0
	}
	if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return int64(f)
	}
	return 0
}
