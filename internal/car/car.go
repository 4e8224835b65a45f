// Package car computes cumulative abnormal returns around events.
//
// An event window is measured in calendar days, not trading days: each
// offset k in [-window, window] becomes a candidate date event_date+k, and
// candidates that fall on weekends or holidays simply find no return.
package car

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
	"eventstudy/pkg/utils"
)

// DefaultWindow is the default half-width of the event window in days.
const DefaultWindow = 2

// WindowDate is one candidate date of an expanded event window.
type WindowDate struct {
	EventID   int
	Firm      string
	EventDate time.Time
	EventTime int
	RetDate   time.Time
}

// ExpandDates returns the 2*window+1 candidate dates around the event, with
// event times -window..window in order.
func ExpandDates(ev models.Event, window int) ([]WindowDate, error) {
	if window < 0 {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrInvalidWindow, window)
	}
	eventDate, err := ev.Date()
	if err != nil {
		return nil, fmt.Errorf("event %d: parsing event date %q: %w", ev.ID, ev.EventDate, err)
	}

	dates := make([]WindowDate, 0, 2*window+1)
	for k := -window; k <= window; k++ {
		dates = append(dates, WindowDate{
			EventID:   ev.ID,
			Firm:      ev.Firm,
			EventDate: eventDate,
			EventTime: k,
			RetDate:   utils.AddDays(eventDate, k),
		})
	}
	return dates, nil
}

// Abnormal joins the event window against the return series and returns
// the matched days with their abnormal returns.
func Abnormal(ev models.Event, returns *models.ReturnSeries, window int) ([]models.AbnormalReturn, error) {
	dates, err := ExpandDates(ev, window)
	if err != nil {
		return nil, err
	}

	var matched []models.AbnormalReturn
	for _, d := range dates {
		r, ok := returns.Lookup(d.RetDate)
		if !ok {
			continue
		}
		matched = append(matched, models.AbnormalReturn{
			EventID:   d.EventID,
			EventTime: d.EventTime,
			RetDate:   d.RetDate,
			Return:    r.StockReturn,
			Market:    r.MarketReturn,
			Abnormal:  r.Abnormal(),
		})
	}
	return matched, nil
}

// CalcCAR sums the abnormal returns in the event window. When no window
// date has a return the result is invalid, which is distinct from a valid
// zero.
func CalcCAR(ev models.Event, returns *models.ReturnSeries, window int) (null.Float, error) {
	matched, err := Abnormal(ev, returns, window)
	if err != nil {
		return null.Float{}, err
	}
	if len(matched) == 0 {
		return null.Float{}, nil
	}

	var sum float64
	for _, m := range matched {
		sum += m.Abnormal
	}
	return null.FloatFrom(sum), nil
}

// ComputeCAR builds the CarRecord for one event.
func ComputeCAR(ev models.Event, returns *models.ReturnSeries, window int) (models.CarRecord, error) {
	v, err := CalcCAR(ev, returns, window)
	if err != nil {
		return models.CarRecord{}, err
	}
	return models.CarRecord{Event: ev, CAR: v}, nil
}

// MakeCars computes a CarRecord for each event, in event order.
func MakeCars(events []models.Event, returns *models.ReturnSeries, window int) ([]models.CarRecord, error) {
	cars := make([]models.CarRecord, 0, len(events))
	for _, ev := range events {
		rec, err := ComputeCAR(ev, returns, window)
		if err != nil {
			return nil, err
		}
		cars = append(cars, rec)
	}
	return cars, nil
}
