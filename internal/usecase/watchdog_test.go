package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/repository"
)

func testWatchdog(mem *repository.Memory, adapter domain.Adapter) *Watchdog {
	factory := &fakeFactory{adapter: adapter}
	ss := NewStrategyService(mem, mem, mem, mem, factory)
	ps := NewPositionService(mem, mem, mem, mem, mem, mem, mem, factory, nil)
	return NewWatchdog(ss, ps, mem, mem, time.Second, 4)
}

func TestGuardStrategyPostpones(t *testing.T) {
	mem := testWorld()
	w := testWatchdog(mem, newFakeAdapter(50_000_00))

	st, _ := mem.GetStrategy(1)
	w.guardStrategy(st, &domain.PostponingError{Reason: "maintenance"})

	st, _ = mem.GetStrategy(1)
	if st.Status != domain.StrategyIdle {
		t.Fatalf("status = %s, want still IDLE", st.Status)
	}
	if !st.NextRefresh.After(time.Now()) {
		t.Fatal("next refresh not pushed forward")
	}
}

func TestGuardStrategyDisablesOnUnclassified(t *testing.T) {
	mem := testWorld()
	w := testWatchdog(mem, newFakeAdapter(50_000_00))

	st, _ := mem.GetStrategy(1)
	w.guardStrategy(st, errors.New("something unexpected"))

	st, _ = mem.GetStrategy(1)
	if st.Status != domain.StrategyInactive {
		t.Fatalf("status = %s, want INACTIVE", st.Status)
	}
}

func TestGuardPositionStallsAndDisablesOnPermanentFailure(t *testing.T) {
	mem := testWorld()
	w := testWatchdog(mem, newFakeAdapter(50_000_00))

	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpening,
		TargetCost: 100_000,
	})

	p, _ := mem.GetPosition("p1")
	w.guardPosition(context.Background(), p, &domain.DisablingError{Reason: "insufficient funds"})

	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionStalled {
		t.Fatalf("status = %s, want stalled", p.Status)
	}
	us, _ := mem.GetUserStrategy(1)
	if us.Active {
		t.Fatal("subscription still active after permanent failure")
	}
}

func TestGuardPositionPostponesOnVenueTrouble(t *testing.T) {
	mem := testWorld()
	w := testWatchdog(mem, newFakeAdapter(50_000_00))

	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpening,
		TargetCost: 100_000,
	})

	p, _ := mem.GetPosition("p1")
	w.guardPosition(context.Background(), p, &domain.PostponingError{Reason: "maintenance"})

	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionOpening {
		t.Fatalf("status = %s, want still opening", p.Status)
	}
	if !p.NextRefresh.After(time.Now()) {
		t.Fatal("next refresh not pushed forward")
	}
	us, _ := mem.GetUserStrategy(1)
	if !us.Active {
		t.Fatal("subscription disabled on a postponing condition")
	}
}

func TestRunShardedSameKeyStaysOrdered(t *testing.T) {
	var got []int
	jobs := make([]job, 0, 20)
	for i := 0; i < 20; i++ {
		i := i
		jobs = append(jobs, job{key: "same", run: func() {
			got = append(got, i) // single shard, no race
		}})
	}
	runSharded(4, jobs)

	if len(got) != 20 {
		t.Fatalf("ran %d jobs, want 20", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job order broken at %d: %v", i, got)
		}
	}
}

// TestCycleEndToEnd walks one whole watchdog pass: the due strategy syncs
// candles and computes a BUY, the subscription opens a position, and the
// position refresh places the first ladder rung.
func TestCycleEndToEnd(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{"USDT": {Free: "1500.00", Locked: "0"}}

	// thirty closed, strictly falling bars push RSI to the floor
	hour := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < 30; i++ {
		c := int64(50_000_00 - (i+1)*100_00)
		fake.candles = append(fake.candles, domain.Candle{
			Timeframe: "1h",
			OpenTime:  hour.Add(-time.Duration(30-i) * time.Hour),
			Open:      c + 50_00,
			High:      c + 100_00,
			Low:       c - 50_00,
			Close:     c,
			Volume:    1_000_000,
		})
	}

	w := testWatchdog(mem, fake)
	w.runCycle(context.Background())

	st, _ := mem.GetStrategy(1)
	if st.Status != domain.StrategyIdle {
		t.Fatalf("strategy status = %s, want IDLE", st.Status)
	}
	ind, _ := mem.LatestIndicator(1)
	if ind == nil || ind.Signal != domain.SignalBuy {
		t.Fatalf("latest indicator = %+v, want BUY", ind)
	}

	p, ok, _ := mem.CurrentPosition(1)
	if !ok {
		t.Fatal("no position opened from the BUY signal")
	}
	if p.Status != domain.PositionOpening {
		t.Fatalf("position status = %s, want opening", p.Status)
	}
	if p.TargetCost != 150_000 {
		t.Fatalf("target cost = %d, want 150000", p.TargetCost)
	}

	orders, _ := mem.PositionOrders(p.ID)
	if len(orders) == 0 {
		t.Fatal("no ladder order placed in the same pass")
	}
	if orders[0].Side != domain.OrderBuy || orders[0].Type != domain.OrderLimit {
		t.Fatalf("first order = %s %s, want limit buy", orders[0].Type, orders[0].Side)
	}
}
