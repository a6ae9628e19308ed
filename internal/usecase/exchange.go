package usecase

import (
	"context"
	"fmt"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/infrastructure/metrics"
)

const (
	// latencyLimit is the probe round-trip above which the venue is treated
	// as degraded and the owning entity is postponed.
	latencyLimit = 5 * time.Second

	// reconcileWindow and reconcileTolerance bound the duplicate-submission
	// search after a create-order timeout: same side, cost within 0.1%,
	// placed within the last two minutes.
	reconcileWindow = 2 * time.Minute

	// defaultRetryWait is used when a transient error carries no wait hint
	// and the credential has no rate-limit window configured.
	defaultRetryWait = 2 * time.Second
)

// ohlcvEpoch is where candle backfill starts for a market with no stored
// history.
var ohlcvEpoch = time.Date(2017, 8, 17, 0, 0, 0, 0, time.UTC)

// AdapterFactory builds the concrete adapter for a credential.
type AdapterFactory interface {
	New(ex *domain.Exchange) (domain.Adapter, error)
}

// ExchangeService wraps one credential's adapter with the retry policy,
// order pre-validation, duplicate-submission reconciliation and candle
// syncing. Instances are built per credential per unit of work.
type ExchangeService struct {
	ex      *domain.Exchange
	adapter domain.Adapter

	candles    domain.CandleRepository
	strategies domain.StrategyRepository

	sleep func(time.Duration)
	now   func() time.Time
}

func NewExchangeService(ex *domain.Exchange, adapter domain.Adapter, candles domain.CandleRepository, strategies domain.StrategyRepository) *ExchangeService {
	return &ExchangeService{
		ex:         ex,
		adapter:    adapter,
		candles:    candles,
		strategies: strategies,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

func (s *ExchangeService) retryLimit() int {
	if s.ex.RetryLimit > 0 {
		return s.ex.RetryLimit
	}
	return 3
}

func (s *ExchangeService) retryWait(t *domain.TransientError) time.Duration {
	if t.Wait > 0 {
		return t.Wait
	}
	if s.ex.RateLimit > 0 {
		return s.ex.RateLimit
	}
	return defaultRetryWait
}

func retryKind(t *domain.TransientError) string {
	if t.Timeout {
		return "timeout"
	}
	return "rate_limit"
}

// withRetry runs op, sleeping and retrying on transient errors up to the
// credential's retry ceiling. Any other error is returned as classified.
func (s *ExchangeService) withRetry(op func() error) error {
	attempts := 0
	for {
		err := op()
		t, ok := domain.AsTransient(err)
		if !ok {
			return err
		}
		attempts++
		if attempts > s.retryLimit() {
			return err
		}
		metrics.Retries.WithLabelValues(retryKind(t)).Inc()
		s.sleep(s.retryWait(t))
	}
}

// Probe measures the venue's time endpoint round trip. A slow answer is a
// postponing condition even when the call itself succeeds.
func (s *ExchangeService) Probe(ctx context.Context) error {
	start := s.now()
	var err error
	rerr := s.withRetry(func() error {
		_, err = s.adapter.FetchTime(ctx)
		return err
	})
	if rerr != nil {
		return rerr
	}
	if lat := s.now().Sub(start); lat > latencyLimit {
		return &domain.PostponingError{
			Reason: fmt.Sprintf("elevated latency %s", lat.Round(time.Millisecond)),
		}
	}
	return nil
}

// LastPrice fetches the market's current last price with retries.
func (s *ExchangeService) LastPrice(ctx context.Context, m *domain.Market) (int64, error) {
	var price int64
	err := s.withRetry(func() error {
		var err error
		price, err = s.adapter.FetchLastPrice(ctx, m)
		return err
	})
	return price, err
}

// FreeBalance returns the free and locked holdings of one asset, scaled by
// its precision. A missing entry means a zero balance, not an error.
func (s *ExchangeService) FreeBalance(ctx context.Context, asset domain.ExchangeAsset) (free, locked int64, err error) {
	var bals domain.Balances
	err = s.withRetry(func() error {
		var err error
		bals, err = s.adapter.FetchBalance(ctx)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	b, ok := bals[asset.Ticker]
	if !ok {
		return 0, 0, nil
	}
	if free, err = domain.Transform(b.Free, asset.Precision); err != nil {
		return 0, 0, fmt.Errorf("balance %s: %w", asset.Ticker, err)
	}
	if locked, err = domain.Transform(b.Locked, asset.Precision); err != nil {
		return 0, 0, fmt.Errorf("balance %s: %w", asset.Ticker, err)
	}
	return free, locked, nil
}

// CreateOrder validates, clamps and submits one order. A submission that
// times out is reconciled against the venue's recent order history before
// being retried, so a request that was actually accepted is adopted instead
// of duplicated.
func (s *ExchangeService) CreateOrder(ctx context.Context, m *domain.Market, typ domain.OrderType, side domain.OrderSide, amount, price int64) (*domain.Order, error) {
	amount = domain.Truncate(amount, m.Base.Precision, m.AmountPrecision)
	price = m.TruncPrice(price)
	if err := m.ValidateOrder(amount, price); err != nil {
		return nil, err
	}
	want := m.Cost(amount, price)

	attempts := 0
	for {
		o, err := s.adapter.CreateOrder(ctx, m, typ, side, amount, price)
		if err == nil {
			metrics.Orders.WithLabelValues(string(typ), string(side)).Inc()
			return o, nil
		}
		t, ok := domain.AsTransient(err)
		if !ok {
			return nil, err
		}
		if t.Timeout {
			if found, rerr := s.reconcile(ctx, m, side, want); rerr == nil && found != nil {
				metrics.OrdersReconciled.Inc()
				return found, nil
			}
		}
		attempts++
		if attempts > s.retryLimit() {
			return nil, err
		}
		metrics.Retries.WithLabelValues(retryKind(t)).Inc()
		s.sleep(s.retryWait(t))
	}
}

// reconcile searches the venue's most recent open, then closed, orders for
// one matching a submission whose response was lost: same side, cost within
// 0.1% of the intended cost, placed within the reconcile window.
func (s *ExchangeService) reconcile(ctx context.Context, m *domain.Market, side domain.OrderSide, want int64) (*domain.Order, error) {
	cutoff := s.now().Add(-reconcileWindow)
	for _, status := range []domain.OrderStatus{domain.OrderOpen, domain.OrderClosed} {
		list, err := s.adapter.FetchOrders(ctx, m, domain.OrderFilter{Status: status})
		if err != nil {
			return nil, err
		}
		for i := range list {
			o := &list[i]
			if o.Side != side || o.Time.Before(cutoff) {
				continue
			}
			diff := o.Cost - want
			if diff < 0 {
				diff = -diff
			}
			if diff <= want/1000 {
				return o, nil
			}
		}
	}
	return nil, nil
}

// SyncOrder refreshes one stored order from the venue and returns the
// updated copy. The caller persists it.
func (s *ExchangeService) SyncOrder(ctx context.Context, m *domain.Market, o *domain.Order) (*domain.Order, error) {
	var list []domain.Order
	err := s.withRetry(func() error {
		var err error
		list, err = s.adapter.FetchOrders(ctx, m, domain.OrderFilter{ExchangeOrderID: o.ExchangeOrderID})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("order %s not found on exchange", o.ExchangeOrderID)
	}
	synced := list[0]
	synced.ID = o.ID
	synced.PositionID = o.PositionID
	return &synced, nil
}

// CancelOrder cancels an open order on the venue. Already-gone orders are
// not an error; the subsequent sync picks up their final state.
func (s *ExchangeService) CancelOrder(ctx context.Context, m *domain.Market, exchangeOrderID string) error {
	return s.withRetry(func() error {
		return s.adapter.CancelOrder(ctx, m, exchangeOrderID)
	})
}

func (s *ExchangeService) CancelAllOrders(ctx context.Context, m *domain.Market) error {
	return s.withRetry(func() error {
		return s.adapter.CancelAllOrders(ctx, m)
	})
}

// SyncOHLCV pages candles forward from the newest stored bar (or the fixed
// epoch for a fresh market), drops the still-forming final bar, and stores
// the rest. Strategies waiting on this market/timeframe are flipped back to
// idle once new rows landed.
func (s *ExchangeService) SyncOHLCV(ctx context.Context, m *domain.Market, timeframe string) (int, error) {
	bar := domain.TimeframeDuration(timeframe)

	since := ohlcvEpoch
	if last, ok, err := s.candles.LastCandleTime(m.ID, timeframe); err != nil {
		return 0, err
	} else if ok {
		since = last.Add(bar)
	}

	total := 0
	for {
		var page []domain.Candle
		err := s.withRetry(func() error {
			var err error
			page, err = s.adapter.FetchOHLCV(ctx, m, timeframe, since)
			return err
		})
		if err != nil {
			return total, err
		}
		fetched := len(page)
		if fetched == 0 {
			break
		}

		// The final bar may still be forming; only closed bars are stored.
		for len(page) > 0 && page[len(page)-1].OpenTime.Add(bar).After(s.now()) {
			page = page[:len(page)-1]
		}
		if len(page) > 0 {
			for i := range page {
				page[i].MarketID = m.ID
				page[i].Timeframe = timeframe
			}
			n, err := s.candles.InsertCandles(page)
			total += n
			if err != nil {
				return total, err
			}
			metrics.CandlesInserted.Add(float64(n))
		}

		// a full page can trim down to nothing when every bar is still
		// forming; there is no closed bar to page forward from
		if fetched < s.adapter.PageSize() || len(page) == 0 {
			break
		}
		since = page[len(page)-1].OpenTime.Add(bar)
	}

	if total > 0 && s.strategies != nil {
		if err := s.strategies.MarkDataReady(m.ID, timeframe); err != nil {
			return total, err
		}
	}
	return total, nil
}

// CreateLimitBuyOrders submits the next rung of a buy ladder built over
// total quote cost around lastPrice. Rung selection cycles with placed so
// each scheduler pass advances the ladder by exactly one order.
func (s *ExchangeService) CreateLimitBuyOrders(ctx context.Context, m *domain.Market, e *domain.TradeEngine, total, lastPrice int64, placed int) (*domain.Order, error) {
	rungs := BuyLadder(m, total, lastPrice, e.NumOrders, e.Spread)
	if len(rungs) == 0 {
		return nil, domain.ErrOrderTooSmall
	}
	r := rungs[placed%len(rungs)]
	amount := m.AmountCeil(r.Size, r.Price)
	return s.CreateOrder(ctx, m, domain.OrderLimit, domain.OrderBuy, amount, r.Price)
}

// CreateLimitSellOrders submits the next rung of a sell ladder built over
// total base amount around lastPrice.
func (s *ExchangeService) CreateLimitSellOrders(ctx context.Context, m *domain.Market, e *domain.TradeEngine, total, lastPrice int64, placed int) (*domain.Order, error) {
	rungs := SellLadder(m, total, lastPrice, e.NumOrders, e.Spread)
	if len(rungs) == 0 {
		return nil, domain.ErrOrderTooSmall
	}
	r := rungs[placed%len(rungs)]
	return s.CreateOrder(ctx, m, domain.OrderLimit, domain.OrderSell, r.Size, r.Price)
}
