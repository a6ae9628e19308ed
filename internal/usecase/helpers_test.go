package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/repository"
)

// fakeAdapter is a stateful in-memory venue: orders accumulate, cancels
// mark them canceled, and fetches observe the same state the engine does.
type fakeAdapter struct {
	mu sync.Mutex

	lastPrice int64
	balances  domain.Balances
	candles   []domain.Candle
	pageSize  int

	orders map[string]*domain.Order
	seq    int

	// createErrs is a script of errors returned by successive CreateOrder
	// calls; a nil entry means that call succeeds.
	createErrs  []error
	createCalls int

	timeFn func() (time.Time, error)
}

func newFakeAdapter(lastPrice int64) *fakeAdapter {
	return &fakeAdapter{
		lastPrice: lastPrice,
		balances:  domain.Balances{},
		pageSize:  500,
		orders:    make(map[string]*domain.Order),
	}
}

func (a *fakeAdapter) FetchTime(ctx context.Context) (time.Time, error) {
	if a.timeFn != nil {
		return a.timeFn()
	}
	return time.Now(), nil
}

func (a *fakeAdapter) FetchBalance(ctx context.Context) (domain.Balances, error) {
	return a.balances, nil
}

func (a *fakeAdapter) FetchTicker(ctx context.Context, m *domain.Market) (*domain.Ticker, error) {
	return &domain.Ticker{Last: a.lastPrice, Time: time.Now()}, nil
}

func (a *fakeAdapter) FetchLastPrice(ctx context.Context, m *domain.Market) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPrice, nil
}

func (a *fakeAdapter) setLastPrice(p int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastPrice = p
}

func (a *fakeAdapter) FetchOHLCV(ctx context.Context, m *domain.Market, timeframe string, since time.Time) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0)
	for _, c := range a.candles {
		if !c.OpenTime.Before(since) {
			out = append(out, c)
		}
		if len(out) == a.pageSize {
			break
		}
	}
	return out, nil
}

func (a *fakeAdapter) PageSize() int { return a.pageSize }

func (a *fakeAdapter) FetchOrders(ctx context.Context, m *domain.Market, f domain.OrderFilter) ([]domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Order, 0)
	for _, o := range a.orders {
		if f.ExchangeOrderID != "" && o.ExchangeOrderID != f.ExchangeOrderID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (a *fakeAdapter) CancelOrder(ctx context.Context, m *domain.Market, exchangeOrderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if o, ok := a.orders[exchangeOrderID]; ok && o.Status == domain.OrderOpen {
		o.Status = domain.OrderCanceled
	}
	return nil
}

func (a *fakeAdapter) CancelAllOrders(ctx context.Context, m *domain.Market) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.orders {
		if o.Status == domain.OrderOpen {
			o.Status = domain.OrderCanceled
		}
	}
	return nil
}

func (a *fakeAdapter) CreateOrder(ctx context.Context, m *domain.Market, typ domain.OrderType, side domain.OrderSide, amount, price int64) (*domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	call := a.createCalls
	a.createCalls++
	if call < len(a.createErrs) && a.createErrs[call] != nil {
		return nil, a.createErrs[call]
	}

	a.seq++
	o := &domain.Order{
		ExchangeOrderID: fmt.Sprintf("ex-%d", a.seq),
		Status:          domain.OrderOpen,
		Type:            typ,
		Side:            side,
		Price:           price,
		Amount:          amount,
		Cost:            m.Cost(amount, price),
		Time:            time.Now(),
	}
	if typ == domain.OrderMarket {
		o.Status = domain.OrderClosed
		o.Filled = amount
	}
	a.orders[o.ExchangeOrderID] = o
	cp := *o
	return &cp, nil
}

var _ domain.Adapter = (*fakeAdapter)(nil)

type fakeFactory struct {
	adapter domain.Adapter
}

func (f *fakeFactory) New(ex *domain.Exchange) (domain.Adapter, error) {
	return f.adapter, nil
}

// testMarket quotes in cents (precision 2) against a base at precision 8.
func testMarket() *domain.Market {
	return &domain.Market{
		ID:              1,
		ExchangeID:      1,
		Symbol:          "BTCUSDT",
		Base:            domain.ExchangeAsset{ID: 1, ExchangeID: 1, Ticker: "BTC", Precision: 8},
		Quote:           domain.ExchangeAsset{ID: 2, ExchangeID: 1, Ticker: "USDT", Precision: 2},
		AmountPrecision: 5,
		PricePrecision:  2,
		AmountMin:       10_000,  // 0.0001 BTC
		PriceMin:        1_00,    // 1.00
		CostMin:         10_00,   // 10.00
	}
}

func testEngine(id int64) *domain.TradeEngine {
	return &domain.TradeEngine{
		ID:              id,
		Name:            fmt.Sprintf("engine-%d", id),
		RefreshInterval: time.Minute,
		NumOrders:       4,
		BucketInterval:  time.Hour,
		MinBuckets:      2,
		Spread:          1.0,
		StopCooldown:    time.Hour,
	}
}

// testWorld seeds a Memory repo with one enabled credential, one market,
// three engines, one long rsi strategy and one active subscription.
func testWorld() *repository.Memory {
	mem := repository.NewMemory()
	mem.Exchanges[1] = &domain.Exchange{
		ID:      1,
		UserID:  "user-1",
		Name:    "main",
		Type:    domain.ExchangeBinance,
		Enabled: true,
	}
	mem.Markets[1] = testMarket()
	mem.Engines[1] = testEngine(1)
	mem.Engines[2] = testEngine(2)
	mem.Engines[3] = testEngine(3)
	mem.Strategies[1] = &domain.Strategy{
		ID:           1,
		ExchangeID:   1,
		MarketID:     1,
		Timeframe:    "1h",
		Side:         domain.SideLong,
		Type:         "rsi",
		Params:       `{"period":14,"overbought":70,"oversold":30}`,
		BuyEngineID:  1,
		SellEngineID: 2,
		StopEngineID: 3,
		Status:       domain.StrategyIdle,
	}
	mem.Subs[1] = &domain.UserStrategy{
		ID:         1,
		UserID:     "user-1",
		StrategyID: 1,
		Active:     true,
	}
	return mem
}

func testPositionService(mem *repository.Memory, adapter domain.Adapter) *PositionService {
	return NewPositionService(mem, mem, mem, mem, mem, mem, mem, &fakeFactory{adapter: adapter}, nil)
}

func testExchangeService(mem *repository.Memory, adapter domain.Adapter) *ExchangeService {
	ex := &domain.Exchange{ID: 1, RetryLimit: 3, RateLimit: time.Millisecond}
	svc := NewExchangeService(ex, adapter, mem, mem)
	svc.sleep = func(time.Duration) {}
	return svc
}
