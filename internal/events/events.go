// Package events turns raw recommendation changes into upgrade and downgrade events.
package events

import (
	"sort"
	"strconv"
	"strings"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/models"
	"eventstudy/internal/table"
	"eventstudy/pkg/utils"
)

type groupKey struct {
	date string
	firm string
}

// Build resolves same-day repeats by firm, keeps the up and down actions and
// numbers the surviving events from 1 in (event_date, firm) order.
//
// Within a (event_date, firm) group the chronologically last action wins;
// rows without an action do not override an earlier one. A kept action other
// than exactly "up" or "down" fails with *errors.UnrecognizedActionError.
func Build(rows []models.RecommendationRow) ([]models.Event, error) {
	sorted := make([]models.RecommendationRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	last := make(map[groupKey]string)
	for _, r := range sorted {
		if table.IsMissing(r.Firm) {
			continue
		}
		firm := strings.ToUpper(strings.TrimSpace(r.Firm))
		key := groupKey{
			date: utils.FormatDate(r.Timestamp),
			firm: firm,
		}
		action := strings.TrimSpace(r.Action)
		if table.IsMissing(action) {
			if _, seen := last[key]; !seen {
				last[key] = ""
			}
			continue
		}
		last[key] = action
	}

	keys := make([]groupKey, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].firm < keys[j].firm
	})

	events := make([]models.Event, 0, len(keys))
	for _, k := range keys {
		action := last[k]
		if !strings.Contains(action, "up") && !strings.Contains(action, "down") {
			continue
		}

		eventType, err := EventType(action)
		if err != nil {
			return nil, err
		}

		events = append(events, models.Event{
			ID:        len(events) + 1,
			Firm:      k.firm,
			EventDate: k.date,
			EventType: eventType,
		})
	}

	return events, nil
}

// EventType maps an action to its event type.
func EventType(action string) (models.EventType, error) {
	switch action {
	case "down":
		return models.Downgrade, nil
	case "up":
		return models.Upgrade, nil
	default:
		return "", apperrors.NewUnrecognizedActionError(action)
	}
}

// Load reads a recommendations CSV and builds its events.
func Load(path string) ([]models.Event, error) {
	rows, err := LoadRecommendations(path)
	if err != nil {
		return nil, err
	}
	return Build(rows)
}

// LoadRecommendations reads a recommendations CSV. The date, firm and action
// columns are required.
func LoadRecommendations(path string) ([]models.RecommendationRow, error) {
	f, err := table.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDataError("recommendations", path, "reading file", err)
	}
	if err := f.Require("date", "firm", "action"); err != nil {
		return nil, err
	}
	f.Normalize()

	rows := make([]models.RecommendationRow, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		ts, err := utils.ParseTimestamp(f.Get(i, "date"))
		if err != nil {
			return nil, apperrors.NewDataError("recommendations", path, "row "+strconv.Itoa(i+2), err)
		}
		rows = append(rows, models.RecommendationRow{
			Timestamp: ts,
			Firm:      f.Get(i, "firm"),
			ToGrade:   f.Get(i, "to_grade"),
			FromGrade: f.Get(i, "from_grade"),
			Action:    f.Get(i, "action"),
		})
	}
	return rows, nil
}
