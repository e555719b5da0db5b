package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/series"
)

// DailyReturn is one observation from the remote returns feed.
type DailyReturn struct {
	Date   string  `json:"date"`
	Return float64 `json:"return"`
}

// returnsResponse is the feed's envelope.
type returnsResponse struct {
	Symbol  string        `json:"symbol"`
	Returns []DailyReturn `json:"returns"`
}

// APIClient fetches daily return series from the remote feed and assembles
// aligned market series out of them.
type APIClient struct {
	http    *RateLimitedHTTPClient
	baseURL string
	apiKey  string
	logger  *logrus.Logger
}

// NewAPIClient creates a feed client. A nil logger falls back to the logrus
// standard logger.
func NewAPIClient(baseURL, apiKey string, cfg HTTPClientConfig, logger *logrus.Logger) *APIClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &APIClient{
		http:    NewRateLimitedHTTPClient(cfg),
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// FetchReturns retrieves one symbol's daily returns over the date range.
func (c *APIClient) FetchReturns(ctx context.Context, symbol string, start, end time.Time) (map[string]float64, error) {
	endpoint := fmt.Sprintf("%s/v1/returns/%s?start=%s&end=%s",
		c.baseURL, url.PathEscape(symbol), start.Format(dateLayout), end.Format(dateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch returns for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("returns feed responded %d for %s", resp.StatusCode, symbol)
	}

	var payload returnsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode returns for %s: %w", symbol, err)
	}

	byDate := make(map[string]float64, len(payload.Returns))
	for _, r := range payload.Returns {
		byDate[r.Date] = r.Return
	}
	c.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"days":   len(byDate),
	}).Debug("Fetched returns from feed")
	return byDate, nil
}

// FetchMarket retrieves both instruments and intersects their trading days
// into one aligned market series, sorted by date.
func (c *APIClient) FetchMarket(ctx context.Context, riskSymbol, cashSymbol string, start, end time.Time) (*series.MarketSeries, error) {
	risk, err := c.FetchReturns(ctx, riskSymbol, start, end)
	if err != nil {
		return nil, err
	}
	cash, err := c.FetchReturns(ctx, cashSymbol, start, end)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(risk))
	for d := range risk {
		if _, ok := cash[d]; !ok {
			continue
		}
		parsed, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		dates = append(dates, parsed)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no overlapping trading days between %s and %s", riskSymbol, cashSymbol)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	market := &series.MarketSeries{
		Dates:       dates,
		RiskReturns: make([]float64, len(dates)),
		CashReturns: make([]float64, len(dates)),
	}
	for t, d := range dates {
		key := d.Format(dateLayout)
		market.RiskReturns[t] = risk[key]
		market.CashReturns[t] = cash[key]
	}
	if coerced := market.Clean(); coerced > 0 {
		c.logger.WithField("coerced", coerced).Warn("Coerced non-finite feed returns to 0")
	}
	return market, nil
}

// Close releases the underlying HTTP client.
func (c *APIClient) Close() error {
	return c.http.Close()
}
