package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"trader-backend/internal/domain"
)

func TestCreateOrderRetriesTransient(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.createErrs = []error{&domain.TransientError{Wait: time.Millisecond}}
	svc := testExchangeService(mem, fake)

	o, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 100_000_000, 50_000_00)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o == nil || o.ExchangeOrderID == "" {
		t.Fatal("no order returned")
	}
	if fake.createCalls != 2 {
		t.Fatalf("createCalls = %d, want 2", fake.createCalls)
	}
	if len(fake.orders) != 1 {
		t.Fatalf("orders on venue = %d, want exactly 1", len(fake.orders))
	}
}

func TestCreateOrderStopsAfterRetryLimit(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.createErrs = []error{
		&domain.TransientError{}, &domain.TransientError{},
		&domain.TransientError{}, &domain.TransientError{},
		&domain.TransientError{},
	}
	svc := testExchangeService(mem, fake) // RetryLimit 3

	_, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 100_000_000, 50_000_00)
	if _, ok := domain.AsTransient(err); !ok {
		t.Fatalf("err = %v, want transient", err)
	}
	if fake.createCalls != 4 { // initial attempt plus three retries
		t.Fatalf("createCalls = %d, want 4", fake.createCalls)
	}
}

func TestCreateOrderTimeoutReconciles(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.createErrs = []error{&domain.TransientError{Timeout: true}}

	// the venue actually accepted the lost submission: cost within 0.1%
	// of the intended 50000.00, placed moments ago
	fake.orders["ex-99"] = &domain.Order{
		ExchangeOrderID: "ex-99",
		Status:          domain.OrderOpen,
		Type:            domain.OrderLimit,
		Side:            domain.OrderBuy,
		Price:           50_000_00,
		Amount:          100_000_000,
		Cost:            5_003_000,
		Time:            time.Now(),
	}
	svc := testExchangeService(mem, fake)

	o, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 100_000_000, 50_000_00)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ExchangeOrderID != "ex-99" {
		t.Fatalf("adopted order %q, want ex-99", o.ExchangeOrderID)
	}
	if fake.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1 (no duplicate submission)", fake.createCalls)
	}
}

func TestCreateOrderTimeoutIgnoresStaleMatches(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.createErrs = []error{&domain.TransientError{Timeout: true}}

	// right cost, wrong age: outside the two minute window
	fake.orders["ex-old"] = &domain.Order{
		ExchangeOrderID: "ex-old",
		Status:          domain.OrderOpen,
		Side:            domain.OrderBuy,
		Cost:            5_000_000,
		Time:            time.Now().Add(-10 * time.Minute),
	}
	svc := testExchangeService(mem, fake)

	o, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 100_000_000, 50_000_00)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ExchangeOrderID == "ex-old" {
		t.Fatal("adopted a stale order")
	}
	if fake.createCalls != 2 {
		t.Fatalf("createCalls = %d, want 2 (resubmitted)", fake.createCalls)
	}
}

func TestCreateOrderDisablingNotRetried(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	fake.createErrs = []error{&domain.DisablingError{Reason: "invalid api key"}}
	svc := testExchangeService(mem, fake)

	_, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 100_000_000, 50_000_00)
	if !domain.IsDisabling(err) {
		t.Fatalf("err = %v, want disabling", err)
	}
	if fake.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", fake.createCalls)
	}
}

func TestCreateOrderRejectsBelowMinimumsLocally(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	svc := testExchangeService(mem, fake)

	_, err := svc.CreateOrder(context.Background(), testMarket(), domain.OrderLimit, domain.OrderBuy, 1_000, 50_000_00)
	if !errors.Is(err, domain.ErrOrderTooSmall) {
		t.Fatalf("err = %v, want ErrOrderTooSmall", err)
	}
	if fake.createCalls != 0 {
		t.Fatalf("createCalls = %d, want 0 (rejected before the network)", fake.createCalls)
	}
}

func TestSyncOHLCVDropsFormingBar(t *testing.T) {
	mem := testWorld()
	mem.Strategies[1].Status = domain.StrategyRefreshing

	hour := time.Now().UTC().Truncate(time.Hour)
	fake := newFakeAdapter(50_000_00)
	for i := 3; i >= 0; i-- { // three closed bars plus the forming one
		fake.candles = append(fake.candles, domain.Candle{
			Timeframe: "1h",
			OpenTime:  hour.Add(-time.Duration(i) * time.Hour),
			Open:      50_000_00, High: 50_100_00, Low: 49_900_00, Close: 50_050_00,
			Volume: 1_000_000,
		})
	}
	svc := testExchangeService(mem, fake)

	n, err := svc.SyncOHLCV(context.Background(), testMarket(), "1h")
	if err != nil {
		t.Fatalf("SyncOHLCV: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted %d bars, want 3 (forming bar dropped)", n)
	}

	st, _ := mem.GetStrategy(1)
	if st.Status != domain.StrategyIdle {
		t.Fatalf("strategy status = %s, want IDLE after data landed", st.Status)
	}

	// a second pass finds nothing new
	n, err = svc.SyncOHLCV(context.Background(), testMarket(), "1h")
	if err != nil || n != 0 {
		t.Fatalf("second sync inserted %d, err %v", n, err)
	}
}

func TestSyncOHLCVFullPageOfFormingBars(t *testing.T) {
	mem := testWorld()

	// a full page whose every bar is still forming trims down to nothing;
	// the sync must stop instead of paging forward off an empty slice
	now := time.Now().UTC()
	fake := newFakeAdapter(50_000_00)
	fake.pageSize = 2
	fake.candles = []domain.Candle{
		{Timeframe: "1h", OpenTime: now, Close: 50_000_00},
		{Timeframe: "1h", OpenTime: now.Add(time.Hour), Close: 50_000_00},
	}
	svc := testExchangeService(mem, fake)

	n, err := svc.SyncOHLCV(context.Background(), testMarket(), "1h")
	if err != nil {
		t.Fatalf("SyncOHLCV: %v", err)
	}
	if n != 0 {
		t.Fatalf("inserted %d bars, want 0", n)
	}
}

func TestProbeLatencyPostpones(t *testing.T) {
	mem := testWorld()
	fake := newFakeAdapter(50_000_00)
	svc := testExchangeService(mem, fake)

	base := time.Now()
	calls := 0
	svc.now = func() time.Time {
		calls++
		if calls > 1 {
			return base.Add(6 * time.Second)
		}
		return base
	}

	err := svc.Probe(context.Background())
	if !domain.IsPostponing(err) {
		t.Fatalf("err = %v, want postponing on slow probe", err)
	}
}
