package domain

import "time"

// Repository interfaces for the durable records the engine owns. Postgres
// implementations live in internal/repository; in-memory ones back the
// tests.

type ExchangeRepository interface {
	GetExchange(id int64) (*Exchange, error)
	DisableExchange(id int64) error
}

type MarketRepository interface {
	GetMarket(id int64) (*Market, error)
}

type EngineRepository interface {
	GetEngine(id int64) (*TradeEngine, error)
}

type StrategyRepository interface {
	GetStrategy(id int64) (*Strategy, error)
	// PendingStrategies returns active strategies whose next_refresh has
	// elapsed, mixers ordered last.
	PendingStrategies(now time.Time) ([]*Strategy, error)
	SetStrategyStatus(id int64, status StrategyStatus) error
	SetNextRefresh(id int64, status StrategyStatus, next time.Time) error
	// MarkDataReady flips strategies waiting on this market/timeframe from
	// REFRESHING back to IDLE once new candles landed.
	MarkDataReady(marketID int64, timeframe string) error
	DisableStrategy(id int64) error
	PostponeStrategy(id int64, delay time.Duration) error

	GetUserStrategy(id int64) (*UserStrategy, error)
	Subscriptions(strategyID int64) ([]*UserStrategy, error)
	DisableUserStrategy(id int64) error

	LatestIndicator(strategyID int64) (*Indicator, error)
	// PendingCandles returns candles of the strategy's market/timeframe that
	// do not have an indicator row yet, oldest first.
	PendingCandles(s *Strategy) ([]Candle, error)
	SaveIndicators(rows []Indicator) error
}

type CandleRepository interface {
	// LastCandleTime reports the newest stored bar's open time, ok=false
	// when no bar exists yet.
	LastCandleTime(marketID int64, timeframe string) (time.Time, bool, error)
	// InsertCandles deduplicates on (market, timeframe, open_time) and
	// returns how many rows were actually new.
	InsertCandles(rows []Candle) (int, error)
	// RecentCandles returns the newest limit bars, oldest first, so
	// indicator warm-up windows have history to work with.
	RecentCandles(marketID int64, timeframe string, limit int) ([]Candle, error)
}

type PositionRepository interface {
	CreatePosition(p *Position) error
	UpdatePosition(p *Position) error
	GetPosition(id string) (*Position, error)
	// CurrentPosition returns the non-terminal position for a subscription,
	// ok=false when none exists.
	CurrentPosition(userStrategyID int64) (*Position, bool, error)
	// LastStopped returns the most recently stopped position for the
	// cooldown check, ok=false when none exists.
	LastStopped(userStrategyID int64) (*Position, bool, error)
	PendingPositions(now time.Time) ([]*Position, error)
	// ActivePositions returns all non-locked open/opening positions for the
	// fast stop sweep, regardless of their own schedule.
	ActivePositions() ([]*Position, error)
	// AcquireRefreshLock performs the conditional set-if-false update on the
	// refreshing flag; false means another worker holds the position.
	AcquireRefreshLock(id string) (bool, error)
	ReleaseRefreshLock(id string) error
}

type OrderRepository interface {
	InsertOrder(o *Order) error
	UpdateOrder(o *Order) error
	GetOrder(id string) (*Order, error)
	OpenOrders(positionID string) ([]*Order, error)
	PositionOrders(positionID string) ([]*Order, error)
}

// Notifier is the fire-and-forget notification sink. Delivery failures are
// logged and swallowed, never fatal to the engine.
type Notifier interface {
	Notify(userID, title, body string)
}
