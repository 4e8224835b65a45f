package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/logging"
	domain "eventstudy/internal/models"
	"eventstudy/pkg/utils"
)

const (
	yahooSource        = "yahoo"
	defaultSummaryURL  = "https://query2.finance.yahoo.com/v10/finance/quoteSummary/"
	browserUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	upgradeDowngradeMd = "upgradeDowngradeHistory"
)

// YahooPrices downloads daily prices through go-yfinance.
type YahooPrices struct {
	Retry   utils.RetryConfig
	Limiter *utils.RateLimiter
	log     zerolog.Logger
}

// NewYahooPrices creates a Yahoo price source.
func NewYahooPrices(retry utils.RetryConfig, log zerolog.Logger) *YahooPrices {
	return &YahooPrices{Retry: retry, log: log}
}

// FetchPrices returns unadjusted daily bars with dates in [start, end).
func (y *YahooPrices) FetchPrices(ctx context.Context, tic string, start, end time.Time) ([]domain.PriceRow, error) {
	began := time.Now()

	bars, err := utils.RetryWithResult(ctx, y.Retry, func() ([]models.Bar, error) {
		if err := y.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		t, err := ticker.New(strings.ToUpper(tic))
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker: %w", err)
		}
		defer t.Close()

		return t.History(models.HistoryParams{
			Period:     "max",
			Interval:   "1d",
			AutoAdjust: false,
		})
	})
	if err != nil {
		logging.LogFetch(y.log, "yahoo-prices", tic, 0, time.Since(began), err)
		return nil, apperrors.NewSourceError(yahooSource, tic, err)
	}

	rows := barsToRows(bars, start, end)
	logging.LogFetch(y.log, "yahoo-prices", tic, len(rows), time.Since(began), nil)
	return rows, nil
}

func barsToRows(bars []models.Bar, start, end time.Time) []domain.PriceRow {
	rows := make([]domain.PriceRow, 0, len(bars))
	for _, bar := range bars {
		date := utils.TruncateDay(bar.Date)
		if date.Before(start) || !date.Before(end) {
			continue
		}
		row := domain.PriceRow{
			Date:     date,
			Open:     fromFloat(bar.Open),
			High:     fromFloat(bar.High),
			Low:      fromFloat(bar.Low),
			AdjClose: fromFloat(bar.AdjClose),
			Volume:   int64(bar.Volume),
		}
		// Yahoo reports a missing close as NaN or zero.
		if c := fromFloat(bar.Close); c.IsPositive() {
			row.Close = decimal.NewNullDecimal(c)
		}
		rows = append(rows, row)
	}
	return rows
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// YahooRecommendations downloads the upgrade and downgrade history from the
// quoteSummary endpoint.
type YahooRecommendations struct {
	BaseURL string
	Retry   utils.RetryConfig
	Limiter *utils.RateLimiter
	client  *http.Client
	log     zerolog.Logger
}

// NewYahooRecommendations creates a Yahoo recommendation source.
func NewYahooRecommendations(timeout time.Duration, retry utils.RetryConfig, log zerolog.Logger) *YahooRecommendations {
	return &YahooRecommendations{
		BaseURL: defaultSummaryURL,
		Retry:   retry,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			UpgradeDowngradeHistory struct {
				History []upgradeDowngrade `json:"history"`
			} `json:"upgradeDowngradeHistory"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type upgradeDowngrade struct {
	EpochGradeDate int64  `json:"epochGradeDate"`
	Firm           string `json:"firm"`
	ToGrade        string `json:"toGrade"`
	FromGrade      string `json:"fromGrade"`
	Action         string `json:"action"`
}

// errNotFound marks responses that retrying cannot fix.
var errNotFound = fmt.Errorf("%w: no recommendation history", apperrors.ErrDataNotFound)

// FetchRecommendations returns recommendation changes dated within
// [start, end], end day included.
func (y *YahooRecommendations) FetchRecommendations(ctx context.Context, tic string, start, end time.Time) ([]domain.RecommendationRow, error) {
	began := time.Now()

	retry := y.Retry
	retry.Permanent = append(retry.Permanent, errNotFound)

	history, err := utils.RetryWithResult(ctx, retry, func() ([]upgradeDowngrade, error) {
		return y.fetchHistory(ctx, tic)
	})
	if err != nil {
		logging.LogFetch(y.log, "yahoo-recommendations", tic, 0, time.Since(began), err)
		return nil, apperrors.NewSourceError(yahooSource, tic, err)
	}

	last := end.AddDate(0, 0, 1)
	rows := make([]domain.RecommendationRow, 0, len(history))
	for _, h := range history {
		ts := time.Unix(h.EpochGradeDate, 0).UTC()
		if ts.Before(start) || !ts.Before(last) {
			continue
		}
		rows = append(rows, domain.RecommendationRow{
			Timestamp: ts,
			Firm:      h.Firm,
			ToGrade:   h.ToGrade,
			FromGrade: h.FromGrade,
			Action:    h.Action,
		})
	}

	logging.LogFetch(y.log, "yahoo-recommendations", tic, len(rows), time.Since(began), nil)
	return rows, nil
}

func (y *YahooRecommendations) fetchHistory(ctx context.Context, tic string) ([]upgradeDowngrade, error) {
	if err := y.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("modules", upgradeDowngradeMd)
	reqURL := y.BaseURL + url.PathEscape(strings.ToUpper(tic)) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recommendations: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result quoteSummaryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %s", result.QuoteSummary.Error.Description)
	}
	if len(result.QuoteSummary.Result) == 0 {
		return nil, errNotFound
	}

	return result.QuoteSummary.Result[0].UpgradeDowngradeHistory.History, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
