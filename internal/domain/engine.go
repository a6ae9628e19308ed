package domain

import (
	"errors"
	"time"
)

// TradeEngine is a pure configuration bundle governing one phase of position
// execution (buy, sell or stop). It carries no behavior beyond validation.
// Stop thresholds are stored as positive magnitudes; the sign is applied at
// evaluation time by the position state machine.
type TradeEngine struct {
	ID              int64         `json:"id"`
	Name            string        `json:"name"`
	RefreshInterval time.Duration `json:"refreshInterval"`
	NumOrders       int           `json:"numOrders"`
	BucketInterval  time.Duration `json:"bucketInterval"`
	MinBuckets      int           `json:"minBuckets"`
	Spread          float64       `json:"spread"` // percent band around last price
	StopCooldown    time.Duration `json:"stopCooldown"`
	StopGain        float64       `json:"stopGain"`     // percent, 0 = disabled
	TrailingGain    float64       `json:"trailingGain"` // percent, 0 = disabled
	StopLoss        float64       `json:"stopLoss"`
	TrailingLoss    float64       `json:"trailingLoss"`
	LMRatio         float64       `json:"lmRatio"` // fraction executed at market, 0..1
}

func (e *TradeEngine) Validate() error {
	if e.RefreshInterval <= 0 {
		return errors.New("engine: refresh interval must be positive")
	}
	if e.NumOrders < 1 {
		return errors.New("engine: num orders must be at least 1")
	}
	if e.BucketInterval <= 0 {
		return errors.New("engine: bucket interval must be positive")
	}
	if e.MinBuckets < 1 {
		return errors.New("engine: min buckets must be at least 1")
	}
	if e.Spread < 0 {
		return errors.New("engine: spread must not be negative")
	}
	if e.StopGain < 0 || e.TrailingGain < 0 || e.StopLoss < 0 || e.TrailingLoss < 0 {
		return errors.New("engine: stop thresholds are stored as positive magnitudes")
	}
	if e.LMRatio < 0 || e.LMRatio > 1 {
		return errors.New("engine: lm ratio must be within [0,1]")
	}
	return nil
}
