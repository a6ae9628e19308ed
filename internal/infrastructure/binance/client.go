package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trader-backend/internal/domain"
)

const (
	SpotBaseURL    = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"

	defaultPageSize = 500
)

// Client is the Binance spot adapter. One instance is constructed per
// persisted credential and passed explicitly through the call chain.
type Client struct {
	ex         *domain.Exchange
	baseURL    string
	httpClient *http.Client
	stream     *Stream
}

// APIError captures structured error info returned by Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "binance API error"
	}
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("binance API error %d (code=%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance API error %d: %s", e.StatusCode, e.Body)
}

func parseAPIError(statusCode int, body []byte) *APIError {
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Code != 0 || parsed.Msg != "") {
		return &APIError{StatusCode: statusCode, Code: parsed.Code, Message: parsed.Msg, Body: string(body)}
	}
	return &APIError{StatusCode: statusCode, Body: string(body)}
}

// NewClient builds an adapter for one credential. stream may be nil; when
// set, FetchLastPrice consults its ticker cache before hitting REST.
func NewClient(ex *domain.Exchange, stream *Stream) *Client {
	baseURL := SpotBaseURL
	if ex.Testnet {
		baseURL = TestnetBaseURL
	}
	return &Client{
		ex:         ex,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		stream:     stream,
	}
}

// classify maps a failed call into the engine's error taxonomy. Unknown
// failures are returned as-is; the caller treats them as disabling.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Wait: c.ex.RateLimit, Timeout: true, Err: err}
	}

	var aerr *APIError
	if !errors.As(err, &aerr) {
		return err
	}

	switch {
	case aerr.StatusCode == http.StatusTooManyRequests || aerr.StatusCode == 418:
		return &domain.TransientError{Wait: c.ex.RateLimit, Err: aerr}
	case aerr.StatusCode == http.StatusServiceUnavailable:
		return &domain.PostponingError{Reason: "exchange maintenance", Err: aerr}
	case aerr.StatusCode == http.StatusUnauthorized || aerr.StatusCode == http.StatusForbidden:
		return &domain.DisablingError{Reason: "authentication failure", Err: aerr}
	}

	switch aerr.Code {
	case -1021: // timestamp outside recvWindow, clock drift recovers
		return &domain.TransientError{Wait: c.ex.RateLimit, Err: aerr}
	case -1022, -2014, -2015: // bad signature / bad API key / key permissions
		return &domain.DisablingError{Reason: "authentication failure", Err: aerr}
	case -2010: // NEW_ORDER_REJECTED, covers insufficient balance
		return &domain.DisablingError{Reason: "order rejected", Err: aerr}
	case -1013: // filter failure, structurally invalid order
		return &domain.DisablingError{Reason: "order violates exchange filters", Err: aerr}
	case -1001, -1016: // internal error / service shutting down
		return &domain.PostponingError{Reason: "exchange unavailable", Err: aerr}
	}
	return aerr
}

func (c *Client) FetchTime(ctx context.Context) (time.Time, error) {
	body, err := c.public(ctx, "/api/v3/time", nil)
	if err != nil {
		return time.Time{}, c.classify(err)
	}
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ServerTime).UTC(), nil
}

func (c *Client) FetchBalance(ctx context.Context) (domain.Balances, error) {
	body, err := c.signed(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, c.classify(err)
	}
	var out struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	balances := make(domain.Balances, len(out.Balances))
	for _, b := range out.Balances {
		balances[b.Asset] = domain.Balance{Free: b.Free, Locked: b.Locked}
	}
	return balances, nil
}

func (c *Client) FetchTicker(ctx context.Context, m *domain.Market) (*domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	body, err := c.public(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return nil, c.classify(err)
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	last, err := domain.Transform(out.Price, m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	return &domain.Ticker{Last: last, Time: time.Now().UTC()}, nil
}

func (c *Client) FetchLastPrice(ctx context.Context, m *domain.Market) (int64, error) {
	if c.stream != nil {
		if raw, ok := c.stream.LastPrice(m.Symbol); ok {
			return domain.Transform(raw, m.Quote.Precision)
		}
	}
	t, err := c.FetchTicker(ctx, m)
	if err != nil {
		return 0, err
	}
	return t.Last, nil
}

func (c *Client) PageSize() int { return defaultPageSize }

func (c *Client) FetchOHLCV(ctx context.Context, m *domain.Market, timeframe string, since time.Time) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	params.Set("interval", timeframe)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(defaultPageSize))

	body, err := c.public(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, c.classify(err)
	}
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openMs, ok := k[0].(float64)
		if !ok {
			continue
		}
		c0, err := klineValue(k[1], m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		h, err := klineValue(k[2], m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		l, err := klineValue(k[3], m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		cl, err := klineValue(k[4], m.Quote.Precision)
		if err != nil {
			return nil, err
		}
		v, err := klineValue(k[5], m.Base.Precision)
		if err != nil {
			return nil, err
		}
		candles = append(candles, domain.Candle{
			MarketID:  m.ID,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(int64(openMs)).UTC(),
			Open:      c0,
			High:      h,
			Low:       l,
			Close:     cl,
			Volume:    v,
		})
	}
	return candles, nil
}

func klineValue(v any, prec int) (int64, error) {
	switch val := v.(type) {
	case string:
		return domain.Transform(val, prec)
	case float64:
		return domain.Transform(strconv.FormatFloat(val, 'f', -1, 64), prec)
	}
	return 0, fmt.Errorf("unexpected kline field %T", v)
}

func (c *Client) FetchOrders(ctx context.Context, m *domain.Market, f domain.OrderFilter) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)

	if f.ExchangeOrderID != "" {
		params.Set("orderId", f.ExchangeOrderID)
		body, err := c.signed(ctx, http.MethodGet, "/api/v3/order", params)
		if err != nil {
			return nil, c.classify(err)
		}
		var raw rawOrder
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
		o, err := raw.toDomain(m)
		if err != nil {
			return nil, err
		}
		return []domain.Order{*o}, nil
	}

	endpoint := "/api/v3/allOrders"
	if f.Status == domain.OrderOpen {
		endpoint = "/api/v3/openOrders"
	}
	body, err := c.signed(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, c.classify(err)
	}
	var raws []rawOrder
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raws))
	for _, raw := range raws {
		o, err := raw.toDomain(m)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		orders = append(orders, *o)
	}
	// Most recent first; reconciliation scans from the newest.
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		if orders[i].Time.Before(orders[j].Time) {
			orders[i], orders[j] = orders[j], orders[i]
		}
	}
	return orders, nil
}

func (c *Client) CancelOrder(ctx context.Context, m *domain.Market, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	params.Set("orderId", exchangeOrderID)
	_, err := c.signed(ctx, http.MethodDelete, "/api/v3/order", params)
	return c.classify(err)
}

func (c *Client) CancelAllOrders(ctx context.Context, m *domain.Market) error {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	_, err := c.signed(ctx, http.MethodDelete, "/api/v3/openOrders", params)
	if err != nil {
		var aerr *APIError
		// Binance rejects the bulk cancel when nothing is open.
		if errors.As(err, &aerr) && aerr.Code == -2011 {
			return nil
		}
	}
	return c.classify(err)
}

func (c *Client) CreateOrder(ctx context.Context, m *domain.Market, typ domain.OrderType, side domain.OrderSide, amount, price int64) (*domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", m.Symbol)
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("newClientOrderId", uuid.NewString())
	qty := domain.Truncate(amount, m.Base.Precision, m.AmountPrecision)
	params.Set("quantity", domain.Format(qty, m.Base.Precision))

	switch typ {
	case domain.OrderLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", domain.Format(m.TruncPrice(price), m.Quote.Precision))
	default:
		params.Set("type", "MARKET")
	}

	body, err := c.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, c.classify(err)
	}
	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw.toDomain(m)
}

// rawOrder is the wire shape shared by the order endpoints.
type rawOrder struct {
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Time                int64  `json:"time"`
	TransactTime        int64  `json:"transactTime"`
}

func (r *rawOrder) toDomain(m *domain.Market) (*domain.Order, error) {
	price, err := domain.Transform(orZero(r.Price), m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	amount, err := domain.Transform(orZero(r.OrigQty), m.Base.Precision)
	if err != nil {
		return nil, err
	}
	filled, err := domain.Transform(orZero(r.ExecutedQty), m.Base.Precision)
	if err != nil {
		return nil, err
	}
	cost, err := domain.Transform(orZero(r.CummulativeQuoteQty), m.Quote.Precision)
	if err != nil {
		return nil, err
	}
	if cost == 0 && price > 0 {
		cost = m.Cost(amount, price)
	}

	ms := r.Time
	if ms == 0 {
		ms = r.TransactTime
	}
	at := time.Now().UTC()
	if ms > 0 {
		at = time.UnixMilli(ms).UTC()
	}

	return &domain.Order{
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
		Status:          mapStatus(r.Status),
		Type:            mapType(r.Type),
		Side:            domain.OrderSide(strings.ToLower(r.Side)),
		Price:           price,
		Amount:          amount,
		Cost:            cost,
		Filled:          filled,
		Time:            at,
	}, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return domain.OrderOpen
	case "FILLED":
		return domain.OrderClosed
	default:
		return domain.OrderCanceled
	}
}

func mapType(s string) domain.OrderType {
	if s == "LIMIT" {
		return domain.OrderLimit
	}
	return domain.OrderMarket
}

// public performs an unauthenticated GET.
func (c *Client) public(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// signed performs an HMAC-SHA256 signed request.
func (c *Client) signed(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	params.Set("signature", c.sign(query))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.ex.APIKey)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.ex.Secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ domain.Adapter = (*Client)(nil)
