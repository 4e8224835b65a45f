package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"

	"eventstudy/pkg/utils"
)

// FormatCAR formats a CAR as a percentage, or "no data" when the event
// window held no returns.
func FormatCAR(car null.Float) string {
	if !car.Valid {
		return "no data"
	}
	return utils.FormatPercent(car.Float64)
}

// FormatStat formats a test statistic.
func FormatStat(v float64) string {
	return utils.FormatFloat(v, 3)
}

// SignificanceStars marks p-values below 0.01, 0.05 and 0.1.
func SignificanceStars(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.01:
		return "***"
	case p < 0.05:
		return "**"
	case p < 0.1:
		return "*"
	default:
		return ""
	}
}

// FormatDateTime formats a timestamp in local time.
func FormatDateTime(t time.Time) string {
	return t.Local().Format("02-Jan-2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatAge formats how long ago t was, or "never" for the zero time.
func FormatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return FormatDuration(now.Sub(t)) + " ago"
}

// ShortID shortens a run ID for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
