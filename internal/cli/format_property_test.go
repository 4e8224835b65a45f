package cli

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: display helpers
//
// SignificanceStars never gets more stars as the p-value grows, and
// TruncateString never exceeds the requested width.
func TestProperty_DisplayFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("SignificanceStars is monotone in p", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := math.Min(a, b), math.Max(a, b)
			return len(SignificanceStars(lo)) >= len(SignificanceStars(hi))
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("TruncateString respects max length", prop.ForAll(
		func(s string, maxLen int) bool {
			out := TruncateString(s, maxLen)
			if len(s) <= maxLen {
				return out == s
			}
			return len(out) == maxLen
		},
		gen.AlphaString(),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestFormatCAR(t *testing.T) {
	if got := FormatCAR(null.Float{}); got != "no data" {
		t.Errorf("FormatCAR(invalid) = %s", got)
	}
	if got := FormatCAR(null.FloatFrom(0)); got != "0.00%" {
		t.Errorf("FormatCAR(0) = %s", got)
	}
	if got := FormatCAR(null.FloatFrom(-0.0123)); got != "-1.23%" {
		t.Errorf("FormatCAR(-0.0123) = %s", got)
	}
}

func TestFormatDurationExamples(t *testing.T) {
	testCases := []struct {
		d        time.Duration
		expected string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatDuration(tc.d); got != tc.expected {
				t.Errorf("FormatDuration(%v) = %s, want %s", tc.d, got, tc.expected)
			}
		})
	}

	now := time.Now()
	if got := FormatAge(time.Time{}, now); got != "never" {
		t.Errorf("FormatAge(zero) = %s", got)
	}
	if got := FormatAge(now.Add(-90*time.Second), now); !strings.HasSuffix(got, " ago") {
		t.Errorf("FormatAge = %s", got)
	}
}

func TestSignificanceStars(t *testing.T) {
	for p, want := range map[float64]string{0.001: "***", 0.03: "**", 0.07: "*", 0.5: "", math.NaN(): ""} {
		if got := SignificanceStars(p); got != want {
			t.Errorf("SignificanceStars(%v) = %q, want %q", p, got, want)
		}
	}
}
