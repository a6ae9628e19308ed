package usecase

import (
	"context"
	"testing"
	"time"

	"trader-backend/internal/domain"
)

func TestGetSignalDefaultsToNeutral(t *testing.T) {
	mem := testWorld()
	ss := NewStrategyService(mem, mem, mem, mem, &fakeFactory{adapter: newFakeAdapter(50_000_00)})

	st, _ := mem.GetStrategy(1)
	sig, err := ss.GetSignal(st)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if sig != domain.SignalNeutral {
		t.Fatalf("signal = %s, want NEUTRAL with no indicators", sig)
	}
}

func TestStrategyRefreshComputesIndicators(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)

	hour := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < 20; i++ {
		c := int64(50_000_00 - (i+1)*50_00)
		fake.candles = append(fake.candles, domain.Candle{
			Timeframe: "1h",
			OpenTime:  hour.Add(-time.Duration(20-i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1_000_000,
		})
	}

	ss := NewStrategyService(mem, mem, mem, mem, &fakeFactory{adapter: fake})
	st, _ := mem.GetStrategy(1)
	if err := ss.Refresh(context.Background(), st); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	ind, err := mem.LatestIndicator(1)
	if err != nil || ind == nil {
		t.Fatalf("no indicator after refresh: %v", err)
	}
	if ind.Signal != domain.SignalBuy {
		t.Fatalf("signal = %s, want BUY on a steady decline", ind.Signal)
	}

	st, _ = mem.GetStrategy(1)
	if st.Status != domain.StrategyIdle {
		t.Fatalf("status = %s, want IDLE", st.Status)
	}
	if !st.NextRefresh.After(time.Now()) {
		t.Fatal("next refresh not advanced")
	}

	// a second refresh finds no new candles and computes nothing new
	before := len(mem.Indicators)
	if err := ss.Refresh(context.Background(), st); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if len(mem.Indicators) != before {
		t.Fatalf("indicators grew from %d to %d without new data", before, len(mem.Indicators))
	}
}

func TestStrategyRefreshDisabledCredential(t *testing.T) {
	mem := testWorld()
	mem.Exchanges[1].Enabled = false

	ss := NewStrategyService(mem, mem, mem, mem, &fakeFactory{adapter: newFakeAdapter(50_000_00)})
	st, _ := mem.GetStrategy(1)
	err := ss.Refresh(context.Background(), st)
	if !domain.IsDisabling(err) {
		t.Fatalf("err = %v, want disabling", err)
	}
}
