package finnhub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"helios/internal/domain/market"
	"helios/internal/metrics"
	"helios/pkg/errors"
	"helios/pkg/logger"
)

const baseURL = "https://finnhub.io/api/v1"

// Ensure Client implements DataPort
var _ market.DataPort = (*Client)(nil)

// Client provides price quotes and market status from Finnhub
type Client struct {
	http   *resty.Client
	apiKey string
	log    *logger.Logger
}

// NewClient creates a Finnhub market data client
func NewClient(apiKey string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "finnhub API key is required")
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &Client{
		http:   rc,
		apiKey: apiKey,
		log:    logger.Get().With("component", "finnhub"),
	}, nil
}

// quoteResponse matches Finnhub's /quote payload
type quoteResponse struct {
	Current   float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Open      float64 `json:"o"`
	PrevClose float64 `json:"pc"`
	Timestamp int64   `json:"t"`
}

// marketStatusResponse matches Finnhub's /stock/market-status payload
type marketStatusResponse struct {
	Exchange string `json:"exchange"`
	IsOpen   bool   `json:"isOpen"`
	Session  string `json:"session"`
}

// GetSnapshot fetches the latest quote for a ticker
func (c *Client) GetSnapshot(ctx context.Context, ticker string) (*market.PriceSnapshot, error) {
	if ticker == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "ticker is required")
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": ticker,
			"token":  c.apiKey,
		}).
		Get("/quote")
	metrics.RecordMarketAPICall("finnhub", "quote", time.Since(start), err)

	if err != nil {
		return nil, c.classify(err, "fetch quote for "+ticker)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode(), "fetch quote for "+ticker)
	}

	var quote quoteResponse
	if err := json.Unmarshal(resp.Body(), &quote); err != nil {
		return nil, errors.Wrap(err, "parse quote response")
	}

	// Finnhub returns zeroes for unknown symbols instead of an error
	if quote.Current == 0 && quote.Timestamp == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no quote data for %s", ticker)
	}

	return &market.PriceSnapshot{
		ID:           uuid.New(),
		Ticker:       ticker,
		Price:        decimal.NewFromFloat(quote.Current),
		Open:         decimal.NewFromFloat(quote.Open),
		High:         decimal.NewFromFloat(quote.High),
		Low:          decimal.NewFromFloat(quote.Low),
		PrevClose:    decimal.NewFromFloat(quote.PrevClose),
		SnapshotTime: time.Now().UTC(),
		DataSource:   "finnhub",
	}, nil
}

// IsMarketOpen reports whether the US exchange is currently trading
func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"exchange": "US",
			"token":    c.apiKey,
		}).
		Get("/stock/market-status")
	metrics.RecordMarketAPICall("finnhub", "market_status", time.Since(start), err)

	if err != nil {
		return false, c.classify(err, "fetch market status")
	}
	if resp.StatusCode() != http.StatusOK {
		return false, c.classifyStatus(resp.StatusCode(), "fetch market status")
	}

	var status marketStatusResponse
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return false, errors.Wrap(err, "parse market status response")
	}

	return status.IsOpen, nil
}

func (c *Client) classify(err error, op string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Wrapf(errors.ErrMarketUnavailable, "%s: %v", op, err)
}

func (c *Client) classifyStatus(code int, op string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "%s: status %d", op, code)
	case code >= 500:
		return errors.Wrapf(errors.ErrMarketUnavailable, "%s: status %d", op, code)
	default:
		return errors.Wrapf(errors.ErrExternal, "%s: status %d", op, code)
	}
}
