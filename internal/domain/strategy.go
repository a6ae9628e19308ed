package domain

import "time"

// Signal is a strategy's current recommendation.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

type StrategyStatus string

const (
	StrategyInactive   StrategyStatus = "INACTIVE"
	StrategyIdle       StrategyStatus = "IDLE"
	StrategyResetting  StrategyStatus = "RESETTING"
	StrategyRefreshing StrategyStatus = "REFRESHING"
	StrategyDeleted    StrategyStatus = "DELETED"
)

// Strategy computes a trading signal for one market and timeframe. Type keys
// the concrete signal engine in the variant registry; Params is its opaque
// JSON configuration. Buy/Sell/Stop engines reference TradeEngine rows
// governing the matching execution phase.
type Strategy struct {
	ID           int64          `json:"id"`
	ExchangeID   int64          `json:"exchangeId"`
	MarketID     int64          `json:"marketId"`
	Timeframe    string         `json:"timeframe"`
	Side         PositionSide   `json:"side"`
	Type         string         `json:"type"`
	Params       string         `json:"params"`
	BuyEngineID  int64          `json:"buyEngineId"`
	SellEngineID int64          `json:"sellEngineId"`
	StopEngineID int64          `json:"stopEngineId"`
	Status       StrategyStatus `json:"status"`
	NextRefresh  time.Time      `json:"nextRefresh"`
}

// Mixer reports whether this strategy aggregates other strategies' signals.
// Mixers are refreshed last within a scheduler batch so their inputs are
// already current.
func (s *Strategy) Mixer() bool { return s.Type == StrategyTypeMixer }

// StrategyTypeMixer is the variant key for signal-aggregating strategies.
const StrategyTypeMixer = "mixer"

// Indicator is one persisted indicator row for a strategy, aligned to a
// candle open time. GetSignal reads the most recent row; it is a cached
// value, never recomputed on demand.
type Indicator struct {
	ID         int64     `json:"id"`
	StrategyID int64     `json:"strategyId"`
	OpenTime   time.Time `json:"openTime"`
	Value      float64   `json:"value"`
	Signal     Signal    `json:"signal"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserStrategy subscribes one user to one strategy. Positions are owned by
// this link; at most one non-terminal position may exist per link.
type UserStrategy struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	StrategyID int64     `json:"strategyId"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}
