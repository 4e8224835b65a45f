// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// Missing is printed in place of an undefined statistic.
const Missing = "-"

// FormatFloat formats a value with prec decimals, or Missing when it is NaN.
func FormatFloat(value float64, prec int) string {
	if math.IsNaN(value) {
		return Missing
	}
	return fmt.Sprintf("%.*f", prec, value)
}

// FormatPercent formats a fractional return as a signed percentage.
func FormatPercent(value float64) string {
	if math.IsNaN(value) {
		return Missing
	}
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value*100)
}

// FormatPValue formats a p-value, switching to scientific notation for tiny values.
func FormatPValue(p float64) string {
	switch {
	case math.IsNaN(p):
		return Missing
	case p > 0 && p < 1e-4:
		return fmt.Sprintf("%.2e", p)
	default:
		return fmt.Sprintf("%.4f", p)
	}
}

// FormatCount formats a count with thousands separators.
func FormatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	formatted := groupThousands(s)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 3 {
			result = s[len(s)-3:] + "," + result
			s = s[:len(s)-3]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}
