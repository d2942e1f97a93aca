// Package marketdata is the default gateway.Fetcher: an HTTP client against
// the Taiwan Stock Exchange's public OpenAPI, shaped after the teacher's
// Yahoo Finance client (same retry/backoff style, same map[string]interface{}
// response decoding) but speaking TWSE's endpoints and producing the
// gateway package's payload types directly.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/gateway"
)

const defaultBaseURL = "https://openapi.twse.com.tw/v1"

// Client fetches market-data artifacts for one symbol at a time. It
// implements gateway.Fetcher via its Fetch method.
type Client struct {
	http       *http.Client
	baseURL    string
	log        zerolog.Logger
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the TWSE OpenAPI host, for tests against a fixture
// server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithMaxRetries overrides the number of attempts made for transient upstream
// failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient builds a TWSE OpenAPI client.
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		log:        log.With().Str("client", "twse").Logger(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements gateway.Fetcher, dispatching on kind to the matching TWSE
// endpoint and shaping the response as the corresponding gateway payload.
func (c *Client) Fetch(ctx context.Context, symbol string, k gateway.Kind) (interface{}, error) {
	switch k {
	case gateway.KindQuote:
		return c.fetchQuote(ctx, symbol)
	case gateway.KindCompanyProfile:
		return c.fetchCompanyProfile(ctx, symbol)
	case gateway.KindIncomeStatement:
		return c.fetchFinancialStatement(ctx, symbol, "income_statement")
	case gateway.KindBalanceSheet:
		return c.fetchFinancialStatement(ctx, symbol, "balance_sheet")
	case gateway.KindDailyTrading:
		return c.fetchDailyTrading(ctx, symbol)
	default:
		return nil, fmt.Errorf("marketdata: unsupported kind %q", k)
	}
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (gateway.Quote, error) {
	rows, err := c.getWithRetry(ctx, "/exchangeReport/STOCK_DAY_AVG_ALL", url.Values{"symbol": {symbol}})
	if err != nil {
		return gateway.Quote{}, err
	}
	if len(rows) == 0 {
		return gateway.Quote{}, fmt.Errorf("marketdata: no quote data for %s", symbol)
	}
	row := rows[0]
	price := getFloat64OrZero(row, "ClosingPrice")
	change := getFloat64OrZero(row, "Change")
	pct := 0.0
	if prev := price - change; prev != 0 {
		pct = (change / prev) * 100
	}
	return gateway.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: pct,
		Volume:        getInt64OrZero(row, "TradeVolume"),
		AsOf:          time.Now(),
	}, nil
}

func (c *Client) fetchCompanyProfile(ctx context.Context, symbol string) (gateway.CompanyProfile, error) {
	rows, err := c.getWithRetry(ctx, "/company/basic", url.Values{"symbol": {symbol}})
	if err != nil {
		return gateway.CompanyProfile{}, err
	}
	if len(rows) == 0 {
		return gateway.CompanyProfile{}, fmt.Errorf("marketdata: no company profile for %s", symbol)
	}
	row := rows[0]
	return gateway.CompanyProfile{
		Symbol:   symbol,
		Name:     getString(row, "CompanyName", symbol),
		Industry: getString(row, "IndustryCategory", ""),
		ListedOn: getString(row, "ListingDate", ""),
		ParValue: getFloat64OrZero(row, "ParValue"),
	}, nil
}

func (c *Client) fetchFinancialStatement(ctx context.Context, symbol, statement string) (gateway.FinancialStatement, error) {
	path := "/opendata/t187ap06_L_ci" // income statement, consolidated, listed
	if statement == "balance_sheet" {
		path = "/opendata/t187ap07_L_ci"
	}
	rows, err := c.getWithRetry(ctx, path, url.Values{"公司代號": {symbol}})
	if err != nil {
		return gateway.FinancialStatement{}, err
	}
	if len(rows) == 0 {
		return gateway.FinancialStatement{}, fmt.Errorf("marketdata: no %s data for %s", statement, symbol)
	}
	row := rows[0]
	items := make(map[string]float64, len(row))
	for key, val := range row {
		if f, ok := asFloat64(val); ok {
			items[key] = f
		}
	}
	return gateway.FinancialStatement{
		Symbol:    symbol,
		Period:    getString(row, "出表日期", ""),
		LineItems: items,
	}, nil
}

func (c *Client) fetchDailyTrading(ctx context.Context, symbol string) (gateway.DailyTrading, error) {
	rows, err := c.getWithRetry(ctx, "/exchangeReport/STOCK_DAY", url.Values{"stockNo": {symbol}})
	if err != nil {
		return gateway.DailyTrading{}, err
	}
	bars := make([]gateway.Bar, 0, len(rows))
	for _, row := range rows {
		date, _ := time.Parse("2006-01-02", getString(row, "Date", ""))
		bars = append(bars, gateway.Bar{
			Date:   date,
			Open:   getFloat64OrZero(row, "OpeningPrice"),
			High:   getFloat64OrZero(row, "HighestPrice"),
			Low:    getFloat64OrZero(row, "LowestPrice"),
			Close:  getFloat64OrZero(row, "ClosingPrice"),
			Volume: getInt64OrZero(row, "TradeVolume"),
		})
	}
	return gateway.DailyTrading{Symbol: symbol, Bars: bars}, nil
}

// getWithRetry performs a GET with exponential backoff on transient
// failures, matching the teacher's GetCurrentPrice retry shape.
func (c *Client) getWithRetry(ctx context.Context, path string, params url.Values) ([]map[string]interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		rows, err := c.get(ctx, path, params)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if attempt < c.maxRetries-1 {
			wait := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
			c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Dur("wait", wait).
				Msg("twse request failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("marketdata: failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]map[string]interface{}, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("marketdata: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: TWSE returned status %d: %s", resp.StatusCode, string(body))
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("marketdata: parse response: %w", err)
	}
	return rows, nil
}

// Helper functions mirror the teacher's map-extraction style for decoding
// loosely-typed JSON API responses.

func getFloat64OrZero(m map[string]interface{}, key string) float64 {
	if f, ok := asFloat64(m[key]); ok {
		return f
	}
	return 0
}

func getInt64OrZero(m map[string]interface{}, key string) int64 {
	if f, ok := asFloat64(m[key]); ok {
		return int64(f)
	}
	return 0
}

func getString(m map[string]interface{}, key, defaultVal string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

func asFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
