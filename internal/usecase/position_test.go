package usecase

import (
	"context"
	"testing"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/repository"
)

func seedPosition(mem *repository.Memory, p *domain.Position) *domain.Position {
	if p.ID == "" {
		p.ID = "p1"
	}
	p.UserStrategyID = 1
	p.MarketID = 1
	if p.Side == "" {
		p.Side = domain.SideLong
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().Add(-time.Hour)
	}
	mem.Positions[p.ID] = p
	return p
}

func TestTrailingStopTriggersOnRetrace(t *testing.T) {
	mem := testWorld()
	mem.Engines[3].TrailingGain = 10

	// entry at 100.00, peak at 120.00: a 10% trailing gain arms at the
	// peak and fires once price retraces to 108.00
	seedPosition(mem, &domain.Position{
		Status:      domain.PositionOpen,
		EntryAmount: 100_000_000,
		EntryCost:   10_000_00,
		EntryPrice:  100_00,
		LastHigh:    120_00,
		LastLow:     100_00,
	})

	fake := newFakeAdapter(109_00)
	ps := testPositionService(mem, fake)
	ctx := context.Background()

	p, _ := mem.GetPosition("p1")
	if err := ps.CheckStops(ctx, p); err != nil {
		t.Fatalf("CheckStops: %v", err)
	}
	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionOpen {
		t.Fatalf("status = %s at 109.00, want still open", p.Status)
	}

	fake.setLastPrice(108_00)
	if err := ps.CheckStops(ctx, p); err != nil {
		t.Fatalf("CheckStops: %v", err)
	}
	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionStopping {
		t.Fatalf("status = %s at 108.00, want stopping", p.Status)
	}
}

func TestStopLossFromEntry(t *testing.T) {
	mem := testWorld()
	mem.Engines[3].StopLoss = 5

	seedPosition(mem, &domain.Position{
		Status:      domain.PositionOpen,
		EntryAmount: 100_000_000,
		EntryCost:   10_000_00,
		EntryPrice:  100_00,
		LastHigh:    100_00,
		LastLow:     100_00,
	})

	fake := newFakeAdapter(94_00) // -6% from entry
	ps := testPositionService(mem, fake)

	p, _ := mem.GetPosition("p1")
	if err := ps.CheckStops(context.Background(), p); err != nil {
		t.Fatalf("CheckStops: %v", err)
	}
	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionStopping {
		t.Fatalf("status = %s, want stopping", p.Status)
	}
}

func TestOpeningBecomesOpenWithinCostMin(t *testing.T) {
	mem := testWorld()
	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpening,
		TargetCost: 100_000, // 1000.00
		Bucket:     1,
		NextBucket: time.Now().Add(time.Hour),
	})
	// a filled entry order covering all but 5.00 of the target; that gap
	// is below the 10.00 cost minimum so the position is done opening
	mem.Orders["o1"] = &domain.Order{
		ID:         "o1",
		PositionID: "p1",
		Status:     domain.OrderClosed,
		Type:       domain.OrderLimit,
		Side:       domain.OrderBuy,
		Price:      50_000_00,
		Amount:     1_990_000,
		Filled:     1_990_000,
		Cost:       99_500,
		Time:       time.Now().Add(-time.Minute),
	}

	fake := newFakeAdapter(50_000_00)
	ps := testPositionService(mem, fake)

	p, _ := mem.GetPosition("p1")
	if err := ps.Refresh(context.Background(), p); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionOpen {
		t.Fatalf("status = %s, want open", p.Status)
	}
	if p.EntryCost != 99_500 || p.EntryAmount != 1_990_000 {
		t.Fatalf("aggregates = %d / %d", p.EntryCost, p.EntryAmount)
	}
	if p.EntryPrice != 50_000_00 {
		t.Fatalf("entry price = %d", p.EntryPrice)
	}
}

func TestOpenCreatesOpeningPosition(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{
		"USDT": {Free: "1500.00", Locked: "0"},
		"BTC":  {Free: "0", Locked: "0"},
	}
	ps := testPositionService(mem, fake)

	us, _ := mem.GetUserStrategy(1)
	st, _ := mem.GetStrategy(1)
	if err := ps.Open(context.Background(), us, st); err != nil {
		t.Fatalf("Open: %v", err)
	}

	p, ok, err := mem.CurrentPosition(1)
	if err != nil || !ok {
		t.Fatalf("no position created: %v", err)
	}
	if p.Status != domain.PositionOpening {
		t.Fatalf("status = %s, want opening", p.Status)
	}
	if p.TargetCost != 150_000 {
		t.Fatalf("target cost = %d, want 150000", p.TargetCost)
	}
}

func TestOpenAbsorbsHeldBase(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{
		"USDT": {Free: "1000.00", Locked: "0"},
		"BTC":  {Free: "0.01", Locked: "0"},
	}
	ps := testPositionService(mem, fake)

	us, _ := mem.GetUserStrategy(1)
	st, _ := mem.GetStrategy(1)
	if err := ps.Open(context.Background(), us, st); err != nil {
		t.Fatalf("Open: %v", err)
	}

	p, ok, _ := mem.CurrentPosition(1)
	if !ok {
		t.Fatal("no position created")
	}
	// 0.01 BTC at 50000.00 = 500.00 absorbed into the entry
	if p.EntryAmount != 1_000_000 || p.EntryCost != 50_000 {
		t.Fatalf("absorbed entry = %d / %d", p.EntryAmount, p.EntryCost)
	}
	if p.TargetCost != 150_000 {
		t.Fatalf("target cost = %d, want 150000", p.TargetCost)
	}
}

func TestRefreshKeepsAbsorbedHoldings(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{
		"USDT": {Free: "1000.00", Locked: "0"},
		"BTC":  {Free: "0.01", Locked: "0"},
	}
	ps := testPositionService(mem, fake)

	us, _ := mem.GetUserStrategy(1)
	st, _ := mem.GetStrategy(1)
	if err := ps.Open(context.Background(), us, st); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// the absorbed holdings are backed by a filled order, so rebuilding
	// the aggregates from the order log must reproduce them
	p, _, _ := mem.CurrentPosition(1)
	if err := ps.Refresh(context.Background(), p); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, _, _ = mem.CurrentPosition(1)
	if p.EntryAmount != 1_000_000 || p.EntryCost != 50_000 {
		t.Fatalf("entry after refresh = %d / %d, want 1000000 / 50000", p.EntryAmount, p.EntryCost)
	}
	if p.EntryPrice != 50_000_00 {
		t.Fatalf("entry price = %d, want 5000000", p.EntryPrice)
	}
	if p.Status != domain.PositionOpening {
		t.Fatalf("status = %s, want still opening", p.Status)
	}
	if p.TargetCost != 150_000 {
		t.Fatalf("target cost = %d, want 150000", p.TargetCost)
	}
}

func TestOpenSkipsDuringCooldown(t *testing.T) {
	mem := testWorld() // stop engine cooldown is one hour
	seedPosition(mem, &domain.Position{
		ID:       "old",
		Status:   domain.PositionStopped,
		ExitTime: time.Now().Add(-30 * time.Minute),
	})

	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{"USDT": {Free: "1500.00", Locked: "0"}}
	ps := testPositionService(mem, fake)

	us, _ := mem.GetUserStrategy(1)
	st, _ := mem.GetStrategy(1)
	if err := ps.Open(context.Background(), us, st); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, _ := mem.CurrentPosition(1); ok {
		t.Fatal("position created inside the cooldown window")
	}
}

func TestHandleSignalOpensOnlyOnEntrySignal(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.balances = domain.Balances{"USDT": {Free: "1500.00", Locked: "0"}}
	ps := testPositionService(mem, fake)

	us, _ := mem.GetUserStrategy(1)
	st, _ := mem.GetStrategy(1)

	if err := ps.HandleSignal(context.Background(), us, st, domain.SignalSell); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if _, ok, _ := mem.CurrentPosition(1); ok {
		t.Fatal("long position opened on SELL")
	}

	if err := ps.HandleSignal(context.Background(), us, st, domain.SignalBuy); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if _, ok, _ := mem.CurrentPosition(1); !ok {
		t.Fatal("no position opened on BUY")
	}
}

func TestBucketNeverExceedsMax(t *testing.T) {
	mem := testWorld()
	mem.Engines[1].NumOrders = 2
	mem.Engines[1].BucketInterval = 0 // every refresh may advance

	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpening,
		TargetCost: 10_000, // bucket_max = 10000 / (1000 * 2) = 5
		Bucket:     1,
		NextBucket: time.Now().Add(-time.Minute),
	})

	fake := newFakeAdapter(50_000_00)
	ps := testPositionService(mem, fake)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		p, _ := mem.GetPosition("p1")
		if err := ps.Refresh(ctx, p); err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
		p, _ = mem.GetPosition("p1")
		if p.Bucket > p.BucketMax {
			t.Fatalf("bucket %d exceeds max %d", p.Bucket, p.BucketMax)
		}
	}
	p, _ := mem.GetPosition("p1")
	if p.BucketMax != 5 || p.Bucket != 5 {
		t.Fatalf("bucket = %d/%d, want 5/5", p.Bucket, p.BucketMax)
	}
}

func TestSignalFlipStartsClosing(t *testing.T) {
	mem := testWorld()
	mem.Indicators = append(mem.Indicators, domain.Indicator{
		ID: 1, StrategyID: 1, OpenTime: time.Now(), Signal: domain.SignalSell,
	})
	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpen,
		TargetCost: 100_000,
		NextBucket: time.Now().Add(-time.Minute),
	})
	mem.Orders["o1"] = &domain.Order{
		ID:         "o1",
		PositionID: "p1",
		Status:     domain.OrderClosed,
		Type:       domain.OrderLimit,
		Side:       domain.OrderBuy,
		Price:      50_000_00,
		Amount:     1_990_000,
		Filled:     1_990_000,
		Cost:       99_500,
		Time:       time.Now().Add(-time.Hour),
	}

	fake := newFakeAdapter(50_000_00)
	ps := testPositionService(mem, fake)

	p, _ := mem.GetPosition("p1")
	if err := ps.Refresh(context.Background(), p); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, _ = mem.GetPosition("p1")
	if p.Status != domain.PositionClosing {
		t.Fatalf("status = %s, want closing", p.Status)
	}

	orders, _ := mem.PositionOrders("p1")
	sell := false
	for _, o := range orders {
		if o.Side == domain.OrderSell {
			sell = true
		}
	}
	if !sell {
		t.Fatal("no exit order placed after the flip")
	}
}

func TestRefreshSkipsLockedPosition(t *testing.T) {
	mem := testWorld()
	seedPosition(mem, &domain.Position{
		Status:     domain.PositionOpening,
		TargetCost: 100_000,
	})
	if ok, _ := mem.AcquireRefreshLock("p1"); !ok {
		t.Fatal("seed lock failed")
	}

	fake := newFakeAdapter(50_000_00)
	ps := testPositionService(mem, fake)

	p, _ := mem.GetPosition("p1")
	if err := ps.Refresh(context.Background(), p); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fake.createCalls != 0 {
		t.Fatalf("locked position still traded: %d create calls", fake.createCalls)
	}
}
