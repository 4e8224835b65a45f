package source

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yfmodels "github.com/wnjoon/go-yfinance/pkg/models"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/events"
	"eventstudy/internal/models"
	"eventstudy/internal/returns"
	"eventstudy/pkg/utils"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLocate(t *testing.T) {
	locs := Locate("/data", "BRK.B")
	assert.Equal(t, filepath.Join("/data", "brk_b_prc.csv"), locs.PricesCSV)
	assert.Equal(t, filepath.Join("/data", "brk_b_rec.csv"), locs.RecsCSV)

	assert.Equal(t, "tsla", FileStem("TSLA"))
}

func TestValidateTicker(t *testing.T) {
	assert.NoError(t, ValidateTicker("TSLA"))
	assert.NoError(t, ValidateTicker("BRK.B"))
	for _, bad := range []string{"", "  ", "../etc", "a/b", "a b"} {
		assert.ErrorIs(t, ValidateTicker(bad), apperrors.ErrInvalidTicker, bad)
	}
}

func TestWritePricesReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tsla_prc.csv")
	rows := []models.PriceRow{
		{Date: day("2020-01-02"), Open: decimal.RequireFromString("84.9"), Close: decimal.NewNullDecimal(decimal.RequireFromString("86.05")), Volume: 47660500},
		{Date: day("2020-01-03"), Close: decimal.NewNullDecimal(decimal.RequireFromString("88.6"))},
		{Date: day("2020-01-06")},
	}
	require.NoError(t, WritePrices(path, rows))

	got, err := returns.LoadPrices(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day("2020-01-02"), got[0].Date)
	assert.True(t, got[0].Close.Decimal.Equal(decimal.RequireFromString("86.05")))
	assert.Equal(t, int64(47660500), got[0].Volume)
	assert.False(t, got[2].Close.Valid)
}

func TestWriteRecommendationsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsla_rec.csv")
	rows := []models.RecommendationRow{
		{Timestamp: time.Date(2012, 2, 16, 7, 42, 0, 0, time.UTC), Firm: "JP Morgan", ToGrade: "Overweight", FromGrade: "Neutral", Action: "up"},
		{Timestamp: time.Date(2012, 2, 17, 9, 0, 0, 0, time.UTC), Firm: "Goldman, Sachs", Action: "down"},
	}
	require.NoError(t, WriteRecommendations(path, rows))

	evs, err := events.Load(path)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "JP MORGAN", evs[0].Firm)
	assert.Equal(t, "GOLDMAN, SACHS", evs[1].Firm)
	assert.Equal(t, models.Downgrade, evs[1].EventType)
}

func TestBarsToRows(t *testing.T) {
	bars := []yfmodels.Bar{
		{Date: time.Date(2019, 12, 31, 14, 30, 0, 0, time.UTC), Close: 10},
		{Date: time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC), Open: 9, Close: 11, Volume: 100},
		{Date: time.Date(2020, 1, 3, 14, 30, 0, 0, time.UTC), Close: math.NaN()},
		{Date: time.Date(2020, 1, 6, 14, 30, 0, 0, time.UTC), Close: 12},
	}

	rows := barsToRows(bars, day("2020-01-01"), day("2020-01-06"))
	require.Len(t, rows, 2)
	assert.Equal(t, day("2020-01-02"), rows[0].Date)
	assert.True(t, rows[0].Close.Valid)
	assert.Equal(t, int64(100), rows[0].Volume)
	assert.False(t, rows[1].Close.Valid)
}

const summaryBody = `{"quoteSummary":{"result":[{"upgradeDowngradeHistory":{"history":[
 {"epochGradeDate":1329378120,"firm":"JP Morgan","toGrade":"Overweight","fromGrade":"Neutral","action":"up"},
 {"epochGradeDate":1609459200,"firm":"Citi","toGrade":"Sell","fromGrade":"Neutral","action":"down"},
 {"epochGradeDate":946684800,"firm":"Old","toGrade":"Buy","fromGrade":"","action":"init"}
]}}],"error":null}}`

func testRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestYahooRecommendations(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/TSLA", r.URL.Path)
		assert.Equal(t, "upgradeDowngradeHistory", r.URL.Query().Get("modules"))
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, summaryBody)
	}))
	defer srv.Close()

	src := NewYahooRecommendations(5*time.Second, testRetry(), zerolog.Nop())
	src.BaseURL = srv.URL + "/"

	rows, err := src.FetchRecommendations(context.Background(), "tsla", day("2010-01-01"), day("2020-12-31"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "JP Morgan", rows[0].Firm)
	assert.Equal(t, "up", rows[0].Action)
	assert.Equal(t, "2012-02-16", rows[0].Timestamp.Format(models.DateLayout))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestYahooRecommendationsEndInclusive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, summaryBody)
	}))
	defer srv.Close()

	src := NewYahooRecommendations(5*time.Second, testRetry(), zerolog.Nop())
	src.BaseURL = srv.URL + "/"

	rows, err := src.FetchRecommendations(context.Background(), "TSLA", day("2012-01-01"), day("2021-01-01"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestYahooRecommendationsNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewYahooRecommendations(5*time.Second, testRetry(), zerolog.Nop())
	src.BaseURL = srv.URL + "/"

	_, err := src.FetchRecommendations(context.Background(), "NOPE", day("2012-01-01"), day("2020-12-31"))
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type stubPrices struct{ rows []models.PriceRow }

func (s stubPrices) FetchPrices(context.Context, string, time.Time, time.Time) ([]models.PriceRow, error) {
	return s.rows, nil
}

type stubRecs struct{ err error }

func (s stubRecs) FetchRecommendations(context.Context, string, time.Time, time.Time) ([]models.RecommendationRow, error) {
	return nil, s.err
}

func TestDownloadPropagatesError(t *testing.T) {
	locs := Locate(t.TempDir(), "TSLA")
	boom := apperrors.NewSourceError("stub", "TSLA", fmt.Errorf("boom"))

	nPrices, _, err := Download(context.Background(),
		stubPrices{rows: []models.PriceRow{{Date: day("2020-01-02")}}}, stubRecs{err: boom},
		locs, "TSLA", day("2020-01-01"), day("2020-12-31"))
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.Equal(t, 0, nPrices)
	assert.NoFileExists(t, locs.PricesCSV)
	assert.NoFileExists(t, locs.RecsCSV)
}

func TestDownloadFailureKeepsPreviousFiles(t *testing.T) {
	locs := Locate(t.TempDir(), "TSLA")
	const oldPrices = "Date,Open,High,Low,Close,Adj Close,Volume\n2019-01-02,1,1,1,1,1,1\n"
	require.NoError(t, os.WriteFile(locs.PricesCSV, []byte(oldPrices), 0644))

	boom := apperrors.NewSourceError("stub", "TSLA", fmt.Errorf("boom"))
	_, _, err := Download(context.Background(),
		stubPrices{rows: []models.PriceRow{{Date: day("2020-01-02")}}}, stubRecs{err: boom},
		locs, "TSLA", day("2020-01-01"), day("2020-12-31"))
	require.Error(t, err)

	got, err := os.ReadFile(locs.PricesCSV)
	require.NoError(t, err)
	assert.Equal(t, oldPrices, string(got))
}
