package table

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventstudy/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"yahoo prices", []string{"Date", "Open", "Adj Close", "Volume"}, []string{"date", "open", "adj_close", "volume"}},
		{"already normal", []string{"date", "mkt"}, []string{"date", "mkt"}},
		{"collision", []string{"Date", "date"}, []string{"_date", "date"}},
		{"space collision", []string{"To Grade", "to_grade"}, []string{"_to_grade", "to_grade"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFrameRequire(t *testing.T) {
	f, err := Read("aapl_prc.csv", strings.NewReader("Date,Open,Close\n2020-01-02,1,2\n"))
	require.NoError(t, err)

	assert.NoError(t, f.Require("date", "close"))

	err = f.Require("date", "close", "volume")
	var schemaErr *apperrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "aapl_prc.csv", schemaErr.File)
	assert.Equal(t, []string{"volume"}, schemaErr.Missing)
}

func TestFrameGet(t *testing.T) {
	f, err := Read("x.csv", strings.NewReader("Date,Adj Close\n2020-01-02,3.5\n2020-01-03\n"))
	require.NoError(t, err)
	f.Normalize()

	assert.Equal(t, 2, f.Len())
	assert.Equal(t, "3.5", f.Get(0, "adj_close"))
	assert.Equal(t, "", f.Get(1, "adj_close"))
	assert.Equal(t, "", f.Get(0, "missing"))
	assert.Equal(t, -1, f.Col("Adj Close"))
}

func TestReadEmpty(t *testing.T) {
	f, err := Read("empty.csv", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Error(t, f.Require("date"))
}

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", " ", "NaN", "nan", "null"} {
		assert.True(t, IsMissing(s), s)
	}
	assert.False(t, IsMissing("0"))
	assert.False(t, IsMissing("0.0"))
}

// Property: normalizing an already-normalized header is a no-op.
func TestProperty_NormalizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	labelGen := gen.OneConstOf("Date", "date", "Open", "Close", "close", "Adj Close", "adj_close",
		"Volume", "To Grade", "From Grade", "Firm", "Action", "mkt", "SMB", "HML")

	properties.Property("Normalize(Normalize(h)) == Normalize(h)", prop.ForAll(
		func(labels []string) bool {
			once := Normalize(labels)
			twice := Normalize(once)
			return strings.Join(once, "|") == strings.Join(twice, "|")
		},
		gen.SliceOf(labelGen),
	))

	properties.TestingRun(t)
}

// Property: a collision never drops a column, and exactly one side of a
// colliding pair gets the underscore prefix.
func TestProperty_NormalizeKeepsColumns(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Header width and distinctness are preserved", prop.ForAll(
		func(word string) bool {
			raw := strings.ToUpper(word[:1]) + word[1:] + " Col"
			norm := strings.ToLower(word) + "_col"
			if raw == norm {
				return true
			}
			out := Normalize([]string{raw, norm})
			return len(out) == 2 && out[0] == "_"+norm && out[1] == norm
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
