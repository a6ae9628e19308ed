package usecase

import (
	"encoding/json"
	"fmt"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/infrastructure/indicators"
)

func init() {
	RegisterVariant("rsi", newRSIEngine)
	RegisterVariant("ema_cross", newEMACrossEngine)
	RegisterVariant("bbands", newBBandsEngine)
	RegisterVariant(domain.StrategyTypeMixer, newMixerEngine)
}

func closesOf(window []domain.Candle, prec int) []float64 {
	scale := float64(domain.Scale(prec))
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = float64(c.Close) / scale
	}
	return out
}

type rsiEngine struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

func newRSIEngine(params string, _ Deps) (SignalEngine, error) {
	e := &rsiEngine{Period: 14, Overbought: 70, Oversold: 30}
	if err := json.Unmarshal([]byte(params), e); err != nil {
		return nil, &domain.DisablingError{Reason: "bad rsi params", Err: err}
	}
	if e.Period < 2 || e.Oversold >= e.Overbought {
		return nil, &domain.DisablingError{Reason: fmt.Sprintf("bad rsi params: period %d, bands %v/%v", e.Period, e.Oversold, e.Overbought)}
	}
	return e, nil
}

func (e *rsiEngine) RefreshIndicators(s *domain.Strategy, m *domain.Market, window []domain.Candle, from time.Time) ([]domain.Indicator, error) {
	values := indicators.RSI(closesOf(window, m.Quote.Precision), e.Period)
	rows := make([]domain.Indicator, 0)
	for i, c := range window {
		if c.OpenTime.Before(from) || i <= e.Period {
			continue
		}
		sig := domain.SignalNeutral
		switch {
		case values[i] < e.Oversold:
			sig = domain.SignalBuy
		case values[i] > e.Overbought:
			sig = domain.SignalSell
		}
		rows = append(rows, domain.Indicator{
			StrategyID: s.ID,
			OpenTime:   c.OpenTime,
			Value:      values[i],
			Signal:     sig,
		})
	}
	return rows, nil
}

type emaCrossEngine struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`
}

func newEMACrossEngine(params string, _ Deps) (SignalEngine, error) {
	e := &emaCrossEngine{Fast: 12, Slow: 26}
	if err := json.Unmarshal([]byte(params), e); err != nil {
		return nil, &domain.DisablingError{Reason: "bad ema_cross params", Err: err}
	}
	if e.Fast < 1 || e.Slow <= e.Fast {
		return nil, &domain.DisablingError{Reason: fmt.Sprintf("bad ema_cross params: fast %d, slow %d", e.Fast, e.Slow)}
	}
	return e, nil
}

func (e *emaCrossEngine) RefreshIndicators(s *domain.Strategy, m *domain.Market, window []domain.Candle, from time.Time) ([]domain.Indicator, error) {
	closes := closesOf(window, m.Quote.Precision)
	fast := indicators.EMA(closes, e.Fast)
	slow := indicators.EMA(closes, e.Slow)
	rows := make([]domain.Indicator, 0)
	for i, c := range window {
		if c.OpenTime.Before(from) || i < e.Slow {
			continue
		}
		sig := domain.SignalNeutral
		switch {
		case fast[i] > slow[i] && fast[i-1] <= slow[i-1]:
			sig = domain.SignalBuy
		case fast[i] < slow[i] && fast[i-1] >= slow[i-1]:
			sig = domain.SignalSell
		}
		rows = append(rows, domain.Indicator{
			StrategyID: s.ID,
			OpenTime:   c.OpenTime,
			Value:      fast[i] - slow[i],
			Signal:     sig,
		})
	}
	return rows, nil
}

type bbandsEngine struct {
	Period     int     `json:"period"`
	Multiplier float64 `json:"multiplier"`
}

func newBBandsEngine(params string, _ Deps) (SignalEngine, error) {
	e := &bbandsEngine{Period: 20, Multiplier: 2}
	if err := json.Unmarshal([]byte(params), e); err != nil {
		return nil, &domain.DisablingError{Reason: "bad bbands params", Err: err}
	}
	if e.Period < 2 || e.Multiplier <= 0 {
		return nil, &domain.DisablingError{Reason: fmt.Sprintf("bad bbands params: period %d, multiplier %v", e.Period, e.Multiplier)}
	}
	return e, nil
}

func (e *bbandsEngine) RefreshIndicators(s *domain.Strategy, m *domain.Market, window []domain.Candle, from time.Time) ([]domain.Indicator, error) {
	closes := closesOf(window, m.Quote.Precision)
	bands := indicators.Bollinger(closes, e.Period, e.Multiplier)
	rows := make([]domain.Indicator, 0)
	for i, c := range window {
		if c.OpenTime.Before(from) || i < e.Period-1 {
			continue
		}
		sig := domain.SignalNeutral
		switch {
		case closes[i] < bands.Lower[i]:
			sig = domain.SignalBuy
		case closes[i] > bands.Upper[i]:
			sig = domain.SignalSell
		}
		// percent B: where the close sits within the band
		value := 0.0
		if width := bands.Upper[i] - bands.Lower[i]; width > 0 {
			value = (closes[i] - bands.Lower[i]) / width * 100
		}
		rows = append(rows, domain.Indicator{
			StrategyID: s.ID,
			OpenTime:   c.OpenTime,
			Value:      value,
			Signal:     sig,
		})
	}
	return rows, nil
}
