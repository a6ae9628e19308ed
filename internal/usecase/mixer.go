package usecase

import (
	"encoding/json"
	"time"

	"trader-backend/internal/domain"
)

// mixerEngine aggregates the latest cached signals of other strategies by
// quorum vote. Mixers are refreshed last within a scheduler batch, so the
// inputs are already current when the vote is taken.
type mixerEngine struct {
	StrategyIDs []int64 `json:"strategyIds"`
	Quorum      int     `json:"quorum"`

	deps Deps
}

func newMixerEngine(params string, deps Deps) (SignalEngine, error) {
	e := &mixerEngine{Quorum: 1, deps: deps}
	if err := json.Unmarshal([]byte(params), e); err != nil {
		return nil, &domain.DisablingError{Reason: "bad mixer params", Err: err}
	}
	if len(e.StrategyIDs) == 0 {
		return nil, &domain.DisablingError{Reason: "mixer has no input strategies"}
	}
	if e.Quorum < 1 || e.Quorum > len(e.StrategyIDs) {
		e.Quorum = len(e.StrategyIDs)
	}
	return e, nil
}

func (e *mixerEngine) RefreshIndicators(s *domain.Strategy, _ *domain.Market, window []domain.Candle, from time.Time) ([]domain.Indicator, error) {
	buy, sell := 0, 0
	for _, id := range e.StrategyIDs {
		ind, err := e.deps.Strategies.LatestIndicator(id)
		if err != nil {
			return nil, err
		}
		if ind == nil {
			continue
		}
		switch ind.Signal {
		case domain.SignalBuy:
			buy++
		case domain.SignalSell:
			sell++
		}
	}

	sig := domain.SignalNeutral
	switch {
	case buy >= e.Quorum && buy > sell:
		sig = domain.SignalBuy
	case sell >= e.Quorum && sell > buy:
		sig = domain.SignalSell
	}

	// One aggregate row pinned to the newest bar that still lacks one.
	at := from
	for _, c := range window {
		if !c.OpenTime.Before(from) {
			at = c.OpenTime
		}
	}
	return []domain.Indicator{{
		StrategyID: s.ID,
		OpenTime:   at,
		Value:      float64(buy - sell),
		Signal:     sig,
	}}, nil
}
