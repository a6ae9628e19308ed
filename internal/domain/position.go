package domain

import "time"

// PositionSide is the orientation of a position: long buys low and sells
// high, short sells high and buys back low.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

type PositionStatus string

const (
	PositionOpening  PositionStatus = "opening"
	PositionOpen     PositionStatus = "open"
	PositionClosing  PositionStatus = "closing"
	PositionStopping PositionStatus = "stopping"
	PositionClosed   PositionStatus = "closed"
	PositionStopped  PositionStatus = "stopped"
	PositionStalled  PositionStatus = "stalled"
	PositionDeleted  PositionStatus = "deleted"
)

// Terminal reports whether a status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	switch s {
	case PositionClosed, PositionStopped, PositionStalled, PositionDeleted:
		return true
	}
	return false
}

// Accumulating reports whether the position is still placing orders.
func (s PositionStatus) Accumulating() bool {
	switch s {
	case PositionOpening, PositionClosing, PositionStopping:
		return true
	}
	return false
}

// Position is the execution state machine record for one (user, strategy)
// link. Monetary fields follow the market scales: costs and prices by the
// quote precision, amounts by the base precision. Refreshing is a persisted
// mutual-exclusion flag acquired via a conditional update so two scheduler
// instances cannot both refresh the same position.
type Position struct {
	ID             string         `json:"id"`
	UserStrategyID int64          `json:"userStrategyId"`
	MarketID       int64          `json:"marketId"`
	Side           PositionSide   `json:"side"`
	Status         PositionStatus `json:"status"`

	Bucket     int       `json:"bucket"`
	BucketMax  int       `json:"bucketMax"`
	NextBucket time.Time `json:"nextBucket"`

	TargetCost   int64 `json:"targetCost"`
	TargetAmount int64 `json:"targetAmount"`
	EntryCost    int64 `json:"entryCost"`
	EntryAmount  int64 `json:"entryAmount"`
	EntryPrice   int64 `json:"entryPrice"`
	ExitCost     int64 `json:"exitCost"`
	ExitAmount   int64 `json:"exitAmount"`
	ExitPrice    int64 `json:"exitPrice"`

	Fee int64   `json:"fee"`
	PnL int64   `json:"pnl"`
	ROI float64 `json:"roi"`

	LastHigh int64 `json:"lastHigh"`
	LastLow  int64 `json:"lastLow"`

	Refreshing  bool      `json:"refreshing"`
	NextRefresh time.Time `json:"nextRefresh"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExitTime    time.Time `json:"exitTime"`
}

type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderCanceled OrderStatus = "canceled"
)

// Order is one exchange order belonging to a position. All monetary fields
// are pre-scaled integers.
type Order struct {
	ID              string      `json:"id"`
	PositionID      string      `json:"positionId"`
	ExchangeOrderID string      `json:"exchangeOrderId"`
	Status          OrderStatus `json:"status"`
	Type            OrderType   `json:"type"`
	Side            OrderSide   `json:"side"`
	Price           int64       `json:"price"`
	Amount          int64       `json:"amount"`
	Cost            int64       `json:"cost"`
	Filled          int64       `json:"filled"`
	Fee             int64       `json:"fee"`
	Time            time.Time   `json:"time"`
}
