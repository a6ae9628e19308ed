package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trader-backend/internal/domain"
)

// Client is the broker-terminal adapter: it speaks plain HTTP/JSON to a
// local terminal sidecar that fronts the actual broker session. The sidecar
// normalizes every venue-specific shape, so all monetary values cross the
// wire as decimal strings and are scaled here.
type Client struct {
	ex   *domain.Exchange
	base string
	hc   *http.Client
}

const defaultBaseURL = "http://127.0.0.1:8787"

func NewClient(ex *domain.Exchange) *Client {
	base := strings.TrimRight(strings.TrimSpace(ex.Name), "/")
	if !strings.HasPrefix(base, "http") {
		base = defaultBaseURL
	}
	return &Client{
		ex:   ex,
		base: base,
		hc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// terminalError is the sidecar's normalized failure shape.
type terminalError struct {
	StatusCode int
	Kind       string `json:"kind"` // "rate_limit", "auth", "rejected", "maintenance"
	Message    string `json:"message"`
}

func (e *terminalError) Error() string {
	return fmt.Sprintf("terminal error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Wait: c.ex.RateLimit, Timeout: true, Err: err}
	}
	var terr *terminalError
	if !errors.As(err, &terr) {
		return err
	}
	switch terr.Kind {
	case "rate_limit":
		return &domain.TransientError{Wait: c.ex.RateLimit, Err: terr}
	case "auth":
		return &domain.DisablingError{Reason: "terminal session rejected credentials", Err: terr}
	case "rejected":
		return &domain.DisablingError{Reason: "order rejected by broker", Err: terr}
	case "maintenance":
		return &domain.PostponingError{Reason: "broker maintenance", Err: terr}
	}
	switch terr.StatusCode {
	case http.StatusTooManyRequests:
		return &domain.TransientError{Wait: c.ex.RateLimit, Err: terr}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.DisablingError{Reason: "terminal authentication failure", Err: terr}
	case http.StatusServiceUnavailable:
		return &domain.PostponingError{Reason: "terminal unavailable", Err: terr}
	}
	return terr
}

func (c *Client) FetchTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Epoch int64 `json:"epoch_ms"`
	}
	if err := c.get(ctx, "/time", nil, &out); err != nil {
		return time.Time{}, c.classify(err)
	}
	return time.UnixMilli(out.Epoch).UTC(), nil
}

func (c *Client) FetchBalance(ctx context.Context) (domain.Balances, error) {
	var out []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	}
	if err := c.get(ctx, "/balances", nil, &out); err != nil {
		return nil, c.classify(err)
	}
	balances := make(domain.Balances, len(out))
	for _, b := range out {
		balances[b.Asset] = domain.Balance{Free: b.Free, Locked: b.Locked}
	}
	return balances, nil
}

func (c *Client) FetchTicker(ctx context.Context, m *domain.Market) (*domain.Ticker, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := c.get(ctx, "/ticker/"+url.PathEscape(m.Symbol), nil, &out); err != nil {
		return nil, c.classify(err)
	}
	last, err := domain.Transform(out.Price, m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	return &domain.Ticker{Last: last, Time: time.Now().UTC()}, nil
}

func (c *Client) FetchLastPrice(ctx context.Context, m *domain.Market) (int64, error) {
	t, err := c.FetchTicker(ctx, m)
	if err != nil {
		return 0, err
	}
	return t.Last, nil
}

func (c *Client) PageSize() int { return 300 }

func (c *Client) FetchOHLCV(ctx context.Context, m *domain.Market, timeframe string, since time.Time) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	params.Set("timeframe", timeframe)
	params.Set("since_ms", fmt.Sprintf("%d", since.UnixMilli()))
	params.Set("limit", fmt.Sprintf("%d", c.PageSize()))

	var out []struct {
		OpenTime int64  `json:"open_time_ms"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	}
	if err := c.get(ctx, "/candles", params, &out); err != nil {
		return nil, c.classify(err)
	}

	candles := make([]domain.Candle, 0, len(out))
	for _, k := range out {
		o, err := domain.Transform(k.Open, m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		h, err := domain.Transform(k.High, m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		l, err := domain.Transform(k.Low, m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		cl, err := domain.Transform(k.Close, m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		v, err := domain.Transform(k.Volume, m.Base.Precision)
		if err != nil {
			return nil, err
		}
		candles = append(candles, domain.Candle{
			MarketID:  m.ID,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     cl,
			Volume:    v,
		})
	}
	return candles, nil
}

type rawOrder struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // "open", "closed", "canceled"
	Type    string `json:"type"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Amount  string `json:"amount"`
	Filled  string `json:"filled"`
	Cost    string `json:"cost"`
	Fee     string `json:"fee"`
	TimeMs  int64  `json:"time_ms"`
}

func (r *rawOrder) toDomain(m *domain.Market) (*domain.Order, error) {
	price, err := domain.Transform(nz(r.Price), m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	amount, err := domain.Transform(nz(r.Amount), m.Base.Precision)
	if err != nil {
		return nil, err
	}
	filled, err := domain.Transform(nz(r.Filled), m.Base.Precision)
	if err != nil {
		return nil, err
	}
	cost, err := domain.Transform(nz(r.Cost), m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	fee, err := domain.Transform(nz(r.Fee), m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	return &domain.Order{
		ExchangeOrderID: r.OrderID,
		Status:          domain.OrderStatus(r.Status),
		Type:            domain.OrderType(r.Type),
		Side:            domain.OrderSide(r.Side),
		Price:           price,
		Amount:          amount,
		Filled:          filled,
		Cost:            cost,
		Fee:             fee,
		Time:            time.UnixMilli(r.TimeMs).UTC(),
	}, nil
}

func nz(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (c *Client) FetchOrders(ctx context.Context, m *domain.Market, f domain.OrderFilter) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	if f.ExchangeOrderID != "" {
		params.Set("order_id", f.ExchangeOrderID)
	}
	if f.Status != "" {
		params.Set("status", string(f.Status))
	}
	var out []rawOrder
	if err := c.get(ctx, "/orders", params, &out); err != nil {
		return nil, c.classify(err)
	}
	orders := make([]domain.Order, 0, len(out))
	for _, raw := range out {
		o, err := raw.toDomain(m)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (c *Client) CancelOrder(ctx context.Context, m *domain.Market, exchangeOrderID string) error {
	body := map[string]string{"symbol": m.Symbol, "order_id": exchangeOrderID}
	return c.classify(c.post(ctx, "/order/cancel", body, nil))
}

func (c *Client) CancelAllOrders(ctx context.Context, m *domain.Market) error {
	body := map[string]string{"symbol": m.Symbol}
	return c.classify(c.post(ctx, "/order/cancel", body, nil))
}

func (c *Client) CreateOrder(ctx context.Context, m *domain.Market, typ domain.OrderType, side domain.OrderSide, amount, price int64) (*domain.Order, error) {
	qty := domain.Truncate(amount, m.Base.Precision, m.AmountPrecision)
	body := map[string]string{
		"symbol": m.Symbol,
		"type":   string(typ),
		"side":   string(side),
		"amount": domain.Format(qty, m.Base.Precision),
	}
	if typ == domain.OrderLimit {
		body["price"] = domain.Format(m.TruncPrice(price), m.Quote.Precision)
	}
	var out rawOrder
	if err := c.post(ctx, "/order", body, &out); err != nil {
		return nil, c.classify(err)
	}
	return out.toDomain(m)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.base + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.ex.APIKey)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.ex.APIKey)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		terr := &terminalError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, terr) != nil {
			terr.Message = string(raw)
		}
		return terr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

var _ domain.Adapter = (*Client)(nil)
