package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"trader-backend/internal/domain"
)

// warmupBars is the extra history handed to signal engines so indicators
// with long lookbacks have settled values at the first pending candle.
const warmupBars = 200

// SignalEngine computes indicator rows for one strategy. window is the
// candle history oldest first, warm-up included; rows are produced for
// candles at or after from.
type SignalEngine interface {
	RefreshIndicators(s *domain.Strategy, m *domain.Market, window []domain.Candle, from time.Time) ([]domain.Indicator, error)
}

// Deps carries the collaborators a signal engine may need; only the mixer
// reads other strategies' state.
type Deps struct {
	Strategies domain.StrategyRepository
}

// Constructor builds a signal engine from a strategy's opaque JSON params.
type Constructor func(params string, deps Deps) (SignalEngine, error)

var variantRegistry = map[string]Constructor{}

// RegisterVariant adds a signal engine constructor under its type key.
// Called from init; not safe for concurrent use.
func RegisterVariant(typ string, c Constructor) {
	variantRegistry[typ] = c
}

// NewSignalEngine resolves a strategy's type against the registry. An
// unknown type is a permanent condition.
func NewSignalEngine(s *domain.Strategy, deps Deps) (SignalEngine, error) {
	c, ok := variantRegistry[s.Type]
	if !ok {
		return nil, &domain.DisablingError{Reason: fmt.Sprintf("unknown strategy type %q", s.Type)}
	}
	return c(s.Params, deps)
}

// StrategyService refreshes strategy indicators and serves cached signals.
type StrategyService struct {
	exchanges  domain.ExchangeRepository
	markets    domain.MarketRepository
	strategies domain.StrategyRepository
	candles    domain.CandleRepository
	adapters   AdapterFactory

	now func() time.Time
}

func NewStrategyService(
	exchanges domain.ExchangeRepository,
	markets domain.MarketRepository,
	strategies domain.StrategyRepository,
	candles domain.CandleRepository,
	factory AdapterFactory,
) *StrategyService {
	return &StrategyService{
		exchanges:  exchanges,
		markets:    markets,
		strategies: strategies,
		candles:    candles,
		adapters:   factory,
		now:        time.Now,
	}
}

// GetSignal returns the strategy's most recent cached signal. A strategy
// with no indicator rows yet is neutral, never an error.
func (s *StrategyService) GetSignal(st *domain.Strategy) (domain.Signal, error) {
	ind, err := s.strategies.LatestIndicator(st.ID)
	if err != nil {
		return domain.SignalNeutral, err
	}
	if ind == nil {
		return domain.SignalNeutral, nil
	}
	return ind.Signal, nil
}

// Refresh syncs the strategy's market candles, computes indicator rows for
// bars without one, and advances next_refresh by one timeframe interval.
func (s *StrategyService) Refresh(ctx context.Context, st *domain.Strategy) error {
	ex, err := s.exchanges.GetExchange(st.ExchangeID)
	if err != nil {
		return err
	}
	if !ex.Enabled {
		return &domain.DisablingError{Reason: "exchange credential disabled"}
	}
	m, err := s.markets.GetMarket(st.MarketID)
	if err != nil {
		return err
	}
	adapter, err := s.adapters.New(ex)
	if err != nil {
		return &domain.DisablingError{Reason: "no adapter for credential", Err: err}
	}
	svc := NewExchangeService(ex, adapter, s.candles, s.strategies)

	if err := svc.Probe(ctx); err != nil {
		return err
	}

	if err := s.strategies.SetStrategyStatus(st.ID, domain.StrategyRefreshing); err != nil {
		return err
	}

	if _, err := svc.SyncOHLCV(ctx, m, st.Timeframe); err != nil {
		// leave the strategy runnable; the watchdog decides postpone/disable
		if serr := s.strategies.SetStrategyStatus(st.ID, domain.StrategyIdle); serr != nil {
			log.Printf("strategy %d: reset status: %v", st.ID, serr)
		}
		return err
	}

	pending, err := s.strategies.PendingCandles(st)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		window, err := s.candles.RecentCandles(m.ID, st.Timeframe, warmupBars+len(pending))
		if err != nil {
			return err
		}
		engine, err := NewSignalEngine(st, Deps{Strategies: s.strategies})
		if err != nil {
			return err
		}
		rows, err := engine.RefreshIndicators(st, m, window, pending[0].OpenTime)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := s.strategies.SaveIndicators(rows); err != nil {
				return err
			}
		}
	}

	next := s.now().Add(domain.TimeframeDuration(st.Timeframe))
	return s.strategies.SetNextRefresh(st.ID, domain.StrategyIdle, next)
}
