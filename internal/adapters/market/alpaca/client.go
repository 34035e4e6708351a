package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"helios/internal/domain/market"
	"helios/internal/metrics"
	"helios/pkg/errors"
	"helios/pkg/logger"
)

const (
	liveURL  = "https://api.alpaca.markets"
	paperURL = "https://paper-api.alpaca.markets"
)

// Ensure Client implements ExecutionPort
var _ market.ExecutionPort = (*Client)(nil)

// Client places orders and reads account state through the Alpaca REST API
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

// NewClient creates an Alpaca brokerage client. paper selects the
// paper-trading environment.
func NewClient(apiKey, apiSecret string, paper bool, timeout time.Duration) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "alpaca API credentials are required")
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	base := liveURL
	if paper {
		base = paperURL
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", apiSecret)

	return &Client{
		http: rc,
		log:  logger.Get().With("component", "alpaca", "paper", paper),
	}, nil
}

type accountResponse struct {
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

type positionResponse struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

type orderResponse struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Status         string          `json:"status"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
}

// GetAccount fetches the account summary
func (c *Client) GetAccount(ctx context.Context) (*market.Account, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v2/account")
	metrics.RecordMarketAPICall("alpaca", "account", time.Since(start), err)

	if err != nil {
		return nil, c.classify(err, "fetch account")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode(), "fetch account")
	}

	var acct accountResponse
	if err := json.Unmarshal(resp.Body(), &acct); err != nil {
		return nil, errors.Wrap(err, "parse account response")
	}

	return &market.Account{
		Cash:           acct.Cash,
		BuyingPower:    acct.BuyingPower,
		PortfolioValue: acct.PortfolioValue,
	}, nil
}

// GetPositions lists all open positions
func (c *Client) GetPositions(ctx context.Context) ([]market.Position, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v2/positions")
	metrics.RecordMarketAPICall("alpaca", "positions", time.Since(start), err)

	if err != nil {
		return nil, c.classify(err, "fetch positions")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode(), "fetch positions")
	}

	var raw []positionResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errors.Wrap(err, "parse positions response")
	}

	positions := make([]market.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, market.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.IntPart(),
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentPrice:  p.CurrentPrice,
			MarketValue:   p.MarketValue,
			UnrealizedPL:  p.UnrealizedPL,
		})
	}

	return positions, nil
}

// PlaceOrder submits a day market order. This call is not idempotent:
// the caller owns the single-submission guarantee.
func (c *Client) PlaceOrder(ctx context.Context, ticker string, side string, qty int64) (*market.ExecutionResult, error) {
	if ticker == "" || qty <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid order: ticker=%q qty=%d", ticker, qty)
	}

	orderSide := strings.ToLower(side)
	if orderSide != "buy" && orderSide != "sell" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid order side %q", side)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"symbol":        ticker,
			"qty":           qty,
			"side":          orderSide,
			"type":          "market",
			"time_in_force": "day",
		}).
		Post("/v2/orders")
	metrics.RecordMarketAPICall("alpaca", "place_order", time.Since(start), err)

	if err != nil {
		return nil, c.classify(err, "submit order for "+ticker)
	}

	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated:
		// fall through to parse
	case resp.StatusCode() == http.StatusForbidden || resp.StatusCode() == http.StatusUnprocessableEntity:
		// Broker refused the order itself (insufficient buying power,
		// halted symbol). A terminal verdict, not a transport failure.
		return nil, errors.Wrapf(errors.ErrOrderRejected, "order for %s rejected: %s", ticker, resp.String())
	default:
		return nil, c.classifyStatus(resp.StatusCode(), "submit order for "+ticker)
	}

	var order orderResponse
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, errors.Wrap(err, "parse order response")
	}

	result := &market.ExecutionResult{
		OrderID:   order.ID,
		Status:    mapOrderStatus(order.Status, order.FilledQty.IntPart(), qty),
		FilledQty: order.FilledQty.IntPart(),
		FillPrice: order.FilledAvgPrice,
	}

	c.log.Infow("Order submitted",
		"ticker", ticker,
		"side", orderSide,
		"qty", qty,
		"order_id", order.ID,
		"status", result.Status,
	)

	return result, nil
}

// mapOrderStatus folds Alpaca order states into the fill taxonomy.
// Market day orders settle quickly; anything still pending is treated
// as filled-at-broker and reconciled from the order record later.
func mapOrderStatus(status string, filled, requested int64) market.FillStatus {
	switch status {
	case "filled":
		return market.FillStatusFilled
	case "partially_filled":
		return market.FillStatusPartial
	case "canceled", "expired", "done_for_day":
		if filled > 0 && filled < requested {
			return market.FillStatusPartial
		}
		return market.FillStatusCancelled
	case "rejected":
		return market.FillStatusRejected
	default:
		// accepted|new|pending_new: the order is live at the broker
		return market.FillStatusFilled
	}
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
