package domain

import (
	"context"
	"time"
)

// ExchangeType selects the concrete adapter implementation for an exchange
// credential. The registry of constructors lives with the adapters.
type ExchangeType string

const (
	ExchangeBinance ExchangeType = "binance"
	ExchangeBridge  ExchangeType = "bridge"
)

// Exchange is one persisted credential on one venue. RateLimit is the sleep
// window used between transient retries; RetryLimit is the retry ceiling the
// venue reports for its API (not a fixed count of ours).
type Exchange struct {
	ID         int64         `json:"id"`
	UserID     string        `json:"userId"`
	Name       string        `json:"name"`
	Type       ExchangeType  `json:"type"`
	APIKey     string        `json:"-"`
	Secret     string        `json:"-"`
	RateLimit  time.Duration `json:"rateLimit"`
	RetryLimit int           `json:"retryLimit"`
	Testnet    bool          `json:"testnet"`
	Enabled    bool          `json:"enabled"`
}

// Ticker is the current market snapshot. Last is scaled by the market's
// quote precision.
type Ticker struct {
	Last int64     `json:"last"`
	Time time.Time `json:"time"`
}

// Balance is one asset's balance as raw decimal strings; callers scale it
// with Transform and the asset's precision.
type Balance struct {
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// Balances maps asset ticker to balance.
type Balances map[string]Balance

// Candle is one OHLCV bar, prices scaled by the market's quote precision and
// volume by the base precision.
type Candle struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"marketId"`
	Timeframe string    `json:"timeframe"`
	OpenTime  time.Time `json:"openTime"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	Volume    int64     `json:"volume"`
}

// OrderFilter narrows FetchOrders to a single exchange order id or a status.
type OrderFilter struct {
	ExchangeOrderID string
	Status          OrderStatus
}

// Adapter is the capability set every concrete exchange client implements.
// Instances are constructed per credential and passed explicitly through the
// call chain; there is no process-wide client cache. A blocking call simply
// blocks that unit of work.
type Adapter interface {
	// FetchTime is the time-sync probe; the exchange service uses its
	// round-trip latency for maintenance/latency classification.
	FetchTime(ctx context.Context) (time.Time, error)
	FetchBalance(ctx context.Context) (Balances, error)
	FetchTicker(ctx context.Context, m *Market) (*Ticker, error)
	FetchLastPrice(ctx context.Context, m *Market) (int64, error)
	// FetchOHLCV returns at most PageSize closed or still-forming bars
	// starting at since, oldest first.
	FetchOHLCV(ctx context.Context, m *Market, timeframe string, since time.Time) ([]Candle, error)
	// PageSize is the adapter's default OHLCV page length; a shorter page
	// means the stream is exhausted.
	PageSize() int
	FetchOrders(ctx context.Context, m *Market, f OrderFilter) ([]Order, error)
	CancelOrder(ctx context.Context, m *Market, exchangeOrderID string) error
	CancelAllOrders(ctx context.Context, m *Market) error
	CreateOrder(ctx context.Context, m *Market, typ OrderType, side OrderSide, amount, price int64) (*Order, error)
}

// TimeframeDuration maps an exchange timeframe token to its bar interval.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
