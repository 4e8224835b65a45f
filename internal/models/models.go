// Package models provides domain models for the event study.
package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"eventstudy/pkg/utils"
)

// DateLayout is the canonical YYYY-MM-DD form of a trading or event date.
const DateLayout = utils.DateLayout

// PriceRow is one daily observation of a stock's prices.
type PriceRow struct {
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.NullDecimal
	AdjClose decimal.Decimal
	Volume   int64
}

// ReturnRecord is a daily stock and market return pair.
type ReturnRecord struct {
	Date         time.Time `json:"date"`
	StockReturn  float64   `json:"ret"`
	MarketReturn float64   `json:"mkt"`
}

// Abnormal returns the stock return in excess of the market.
func (r ReturnRecord) Abnormal() float64 {
	return r.StockReturn - r.MarketReturn
}

// ReturnSeries is a date-ordered set of returns with unique dates.
// It is read-only once built.
type ReturnSeries struct {
	records []ReturnRecord
	index   map[time.Time]int
}

// NewReturnSeries builds a series from records, sorting by date. Later
// duplicates of the same date replace earlier ones.
func NewReturnSeries(records []ReturnRecord) *ReturnSeries {
	byDate := make(map[time.Time]ReturnRecord, len(records))
	for _, r := range records {
		r.Date = utils.TruncateDay(r.Date)
		byDate[r.Date] = r
	}

	sorted := make([]ReturnRecord, 0, len(byDate))
	for _, r := range byDate {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	index := make(map[time.Time]int, len(sorted))
	for i, r := range sorted {
		index[r.Date] = i
	}
	return &ReturnSeries{records: sorted, index: index}
}

// Len returns the number of trading days in the series.
func (s *ReturnSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a copy of the series in date order.
func (s *ReturnSeries) Records() []ReturnRecord {
	if s == nil {
		return nil
	}
	out := make([]ReturnRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Lookup returns the record for the given calendar date.
func (s *ReturnSeries) Lookup(date time.Time) (ReturnRecord, bool) {
	if s == nil {
		return ReturnRecord{}, false
	}
	i, ok := s.index[utils.TruncateDay(date)]
	if !ok {
		return ReturnRecord{}, false
	}
	return s.records[i], true
}

// RecommendationRow is one analyst recommendation change.
type RecommendationRow struct {
	Timestamp time.Time
	Firm      string
	ToGrade   string
	FromGrade string
	Action    string
}

// EventType classifies an event.
type EventType string

const (
	Downgrade EventType = "downgrade"
	Upgrade   EventType = "upgrade"
)

// Event is a single upgrade or downgrade of the stock by one firm on one day.
type Event struct {
	ID        int       `json:"event_id"`
	Firm      string    `json:"firm"`
	EventDate string    `json:"event_date"`
	EventType EventType `json:"event_type"`
}

// Date parses EventDate.
func (e Event) Date() (time.Time, error) {
	return time.Parse(DateLayout, e.EventDate)
}

// CarRecord is an event with its cumulative abnormal return. An invalid
// CAR means no return data fell inside the event window.
type CarRecord struct {
	Event
	CAR null.Float `json:"car"`
}

// AbnormalReturn is one matched day inside an event window.
type AbnormalReturn struct {
	EventID   int       `json:"event_id"`
	EventTime int       `json:"event_time"`
	RetDate   time.Time `json:"ret_date"`
	Return    float64   `json:"ret"`
	Market    float64   `json:"mkt"`
	Abnormal  float64   `json:"aret"`
}

// TStatRow holds the test result for one event type. NaN marks an
// undefined statistic.
type TStatRow struct {
	EventType string  `json:"event_type"`
	MeanCAR   float64 `json:"mean_car"`
	TStat     float64 `json:"t_stat"`
	NObs      int     `json:"n_obs"`
	SEM       float64 `json:"sem"`
	PValue    float64 `json:"p_value"`
}

// GroupSummary is a describe()-style summary of CARs for one event type.
type GroupSummary struct {
	EventType string  `json:"event_type"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Min       float64 `json:"min"`
	Q25       float64 `json:"q25"`
	Median    float64 `json:"median"`
	Q75       float64 `json:"q75"`
	Max       float64 `json:"max"`
}

// StudyRun is the persisted header of one study execution.
type StudyRun struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Window    int       `json:"window"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	NReturns  int       `json:"n_returns"`
	NEvents   int       `json:"n_events"`
	CreatedAt time.Time `json:"created_at"`
}

// StudyResult is everything a study run produces.
type StudyResult struct {
	Run       StudyRun       `json:"run"`
	Returns   *ReturnSeries  `json:"-"`
	Events    []Event        `json:"events"`
	Cars      []CarRecord    `json:"cars"`
	TStats    []TStatRow     `json:"tstats"`
	Summaries []GroupSummary `json:"summaries"`
}

// NullFloat maps NaN to an invalid null.Float.
func NullFloat(f float64) null.Float {
	return null.NewFloat(f, !math.IsNaN(f))
}

// MarshalJSON encodes NaN statistics as null.
func (r TStatRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventType string     `json:"event_type"`
		MeanCAR   null.Float `json:"mean_car"`
		TStat     null.Float `json:"t_stat"`
		NObs      int        `json:"n_obs"`
		SEM       null.Float `json:"sem"`
		PValue    null.Float `json:"p_value"`
	}{r.EventType, NullFloat(r.MeanCAR), NullFloat(r.TStat), r.NObs, NullFloat(r.SEM), NullFloat(r.PValue)})
}

// MarshalJSON encodes NaN statistics as null.
func (g GroupSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventType string     `json:"event_type"`
		Count     int        `json:"count"`
		Mean      null.Float `json:"mean"`
		Std       null.Float `json:"std"`
		Min       null.Float `json:"min"`
		Q25       null.Float `json:"q25"`
		Median    null.Float `json:"median"`
		Q75       null.Float `json:"q75"`
		Max       null.Float `json:"max"`
	}{g.EventType, g.Count, NullFloat(g.Mean), NullFloat(g.Std), NullFloat(g.Min),
		NullFloat(g.Q25), NullFloat(g.Median), NullFloat(g.Q75), NullFloat(g.Max)})
}
