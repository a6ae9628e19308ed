package usecase

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"

	"trader-backend/internal/domain"
)

// PositionService drives the position state machine: opening and resuming
// positions on signals, laddering entries and exits bucket by bucket,
// evaluating stops and settling terminal state.
type PositionService struct {
	exchanges  domain.ExchangeRepository
	markets    domain.MarketRepository
	engines    domain.EngineRepository
	strategies domain.StrategyRepository
	positions  domain.PositionRepository
	orders     domain.OrderRepository
	candles    domain.CandleRepository
	adapters   AdapterFactory
	notifier   domain.Notifier

	now func() time.Time
}

func NewPositionService(
	exchanges domain.ExchangeRepository,
	markets domain.MarketRepository,
	engines domain.EngineRepository,
	strategies domain.StrategyRepository,
	positions domain.PositionRepository,
	orders domain.OrderRepository,
	candles domain.CandleRepository,
	factory AdapterFactory,
	notifier domain.Notifier,
) *PositionService {
	return &PositionService{
		exchanges:  exchanges,
		markets:    markets,
		engines:    engines,
		strategies: strategies,
		positions:  positions,
		orders:     orders,
		candles:    candles,
		adapters:   factory,
		notifier:   notifier,
		now:        time.Now,
	}
}

// returnPct is the side-aware percentage move from one price to another:
// positive means the move favors the position.
func returnPct(side domain.PositionSide, from, to int64) float64 {
	if from == 0 || to == 0 {
		return 0
	}
	if side == domain.SideShort {
		return (float64(from)/float64(to) - 1) * 100
	}
	return (float64(to)/float64(from) - 1) * 100
}

// share returns total*num/den without intermediate overflow.
func share(total int64, num, den int) int64 {
	if den <= 0 {
		return total
	}
	n := new(big.Int).Mul(big.NewInt(total), big.NewInt(int64(num)))
	n.Quo(n, big.NewInt(int64(den)))
	return n.Int64()
}

func (s *PositionService) notify(userID, title, body string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, title, body)
	}
}

// entrySide is the order side that builds the position up.
func entrySide(side domain.PositionSide) domain.OrderSide {
	if side == domain.SideShort {
		return domain.OrderSell
	}
	return domain.OrderBuy
}

func exitSide(side domain.PositionSide) domain.OrderSide {
	if side == domain.SideShort {
		return domain.OrderBuy
	}
	return domain.OrderSell
}

// phaseSide is the order side the current status trades on.
func phaseSide(p *domain.Position) domain.OrderSide {
	if p.Status == domain.PositionOpening {
		return entrySide(p.Side)
	}
	return exitSide(p.Side)
}

// phaseEngineID selects the engine config governing the current phase.
func phaseEngineID(st *domain.Strategy, p *domain.Position) int64 {
	switch p.Status {
	case domain.PositionOpening:
		if p.Side == domain.SideShort {
			return st.SellEngineID
		}
		return st.BuyEngineID
	case domain.PositionClosing:
		if p.Side == domain.SideShort {
			return st.BuyEngineID
		}
		return st.SellEngineID
	default:
		return st.StopEngineID
	}
}

// HandleSignal opens a position when an active subscription without one
// receives its entry signal. Everything else is the refresh loop's job.
func (s *PositionService) HandleSignal(ctx context.Context, us *domain.UserStrategy, st *domain.Strategy, sig domain.Signal) error {
	if !us.Active {
		return nil
	}
	if _, ok, err := s.positions.CurrentPosition(us.ID); err != nil {
		return err
	} else if ok {
		return nil
	}
	want := domain.SignalBuy
	if st.Side == domain.SideShort {
		want = domain.SignalSell
	}
	if sig != want {
		return nil
	}
	return s.Open(ctx, us, st)
}

// Open creates a new opening position sized from the free balance plus any
// holdings already on the account. Targets below the market minimums are
// skipped, as are opens inside the stop cooldown window.
func (s *PositionService) Open(ctx context.Context, us *domain.UserStrategy, st *domain.Strategy) error {
	now := s.now()

	stopEngine, err := s.engines.GetEngine(st.StopEngineID)
	if err != nil {
		return err
	}
	if last, ok, err := s.positions.LastStopped(us.ID); err != nil {
		return err
	} else if ok && stopEngine.StopCooldown > 0 && now.Before(last.ExitTime.Add(stopEngine.StopCooldown)) {
		return nil
	}

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
	entryEngine, err := s.engines.GetEngine(phaseEngineForSide(st, st.Side))
	if err != nil {
		return err
	}
	if err := entryEngine.Validate(); err != nil {
		return &domain.DisablingError{Reason: "invalid engine config", Err: err}
	}

	adapter, err := s.adapters.New(ex)
	if err != nil {
		return &domain.DisablingError{Reason: "no adapter for credential", Err: err}
	}
	svc := NewExchangeService(ex, adapter, s.candles, s.strategies)

	last, err := svc.LastPrice(ctx, m)
	if err != nil {
		return err
	}

	p := &domain.Position{
		ID:             uuid.NewString(),
		UserStrategyID: us.ID,
		MarketID:       m.ID,
		Side:           st.Side,
		Status:         domain.PositionOpening,
		Bucket:         1,
		NextBucket:     now.Add(entryEngine.BucketInterval),
		LastHigh:       last,
		LastLow:        last,
		NextRefresh:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var absorbed *domain.Order
	if st.Side == domain.SideLong {
		freeQuote, _, err := svc.FreeBalance(ctx, m.Quote)
		if err != nil {
			return err
		}
		heldBase, _, err := svc.FreeBalance(ctx, m.Base)
		if err != nil {
			return err
		}
		heldCost := m.Cost(heldBase, last)
		p.TargetCost = freeQuote + heldCost
		p.TargetAmount = m.Amount(p.TargetCost, last)
		if heldBase >= m.AmountMin {
			// holdings present before the subscription are absorbed at the
			// current price, not ignored. They are recorded as a filled
			// order so aggregate rebuilds from the order log keep them.
			p.EntryAmount = heldBase
			p.EntryCost = heldCost
			p.EntryPrice = last
			absorbed = &domain.Order{
				Status: domain.OrderClosed,
				Type:   domain.OrderMarket,
				Side:   entrySide(p.Side),
				Price:  last,
				Amount: heldBase,
				Filled: heldBase,
				Cost:   heldCost,
				Time:   now,
			}
		}
		if p.TargetCost < m.CostMin {
			log.Printf("position open skipped for subscription %d: target below market minimum", us.ID)
			return nil
		}
	} else {
		freeBase, _, err := svc.FreeBalance(ctx, m.Base)
		if err != nil {
			return err
		}
		p.TargetAmount = freeBase
		p.TargetCost = m.Cost(freeBase, last)
		if p.TargetAmount < m.AmountMin {
			log.Printf("position open skipped for subscription %d: target below market minimum", us.ID)
			return nil
		}
	}

	if err := s.positions.CreatePosition(p); err != nil {
		return err
	}
	if absorbed != nil {
		if err := s.insertOrder(p, absorbed); err != nil {
			return err
		}
	}
	s.notify(us.UserID, "Position opening", positionBody(m, p))
	return nil
}

// phaseEngineForSide returns the engine that accumulates entries for a side.
func phaseEngineForSide(st *domain.Strategy, side domain.PositionSide) int64 {
	if side == domain.SideShort {
		return st.SellEngineID
	}
	return st.BuyEngineID
}

func positionBody(m *domain.Market, p *domain.Position) string {
	return m.Symbol + " " + string(p.Side) + " " + string(p.Status)
}

// Refresh runs one full pass of the state machine for a position: lock,
// price, order resync, stop evaluation, signal flip, accumulation, status
// derivation, reschedule. A position another worker holds is skipped.
func (s *PositionService) Refresh(ctx context.Context, p *domain.Position) error {
	ok, err := s.positions.AcquireRefreshLock(p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.positions.ReleaseRefreshLock(p.ID); err != nil {
			log.Printf("position %s: release refresh lock: %v", p.ID, err)
		}
	}()

	us, err := s.strategies.GetUserStrategy(p.UserStrategyID)
	if err != nil {
		return err
	}
	st, err := s.strategies.GetStrategy(us.StrategyID)
	if err != nil {
		return err
	}
	ex, err := s.exchanges.GetExchange(st.ExchangeID)
	if err != nil {
		return err
	}
	if !ex.Enabled {
		return &domain.DisablingError{Reason: "exchange credential disabled"}
	}
	m, err := s.markets.GetMarket(p.MarketID)
	if err != nil {
		return err
	}
	adapter, err := s.adapters.New(ex)
	if err != nil {
		return &domain.DisablingError{Reason: "no adapter for credential", Err: err}
	}
	svc := NewExchangeService(ex, adapter, s.candles, s.strategies)

	last, err := svc.LastPrice(ctx, m)
	if err != nil {
		return err
	}
	s.trackExtremes(p, last)

	if err := s.resyncOrders(ctx, svc, m, p); err != nil {
		return err
	}
	if err := s.recomputeAggregates(m, p); err != nil {
		return err
	}

	stopEngine, err := s.engines.GetEngine(st.StopEngineID)
	if err != nil {
		return err
	}
	if s.stopTriggered(p, stopEngine, last) {
		s.enterPhase(p, domain.PositionStopping, stopEngine)
		s.notify(us.UserID, "Stop triggered", positionBody(m, p))
	}

	if err := s.applySignal(p, st, us, m); err != nil {
		return err
	}

	if p.Status.Accumulating() {
		engine, err := s.engines.GetEngine(phaseEngineID(st, p))
		if err != nil {
			return err
		}
		if err := s.accumulate(ctx, svc, m, engine, p, last); err != nil {
			return err
		}
		if err := s.recomputeAggregates(m, p); err != nil {
			return err
		}
	}

	s.deriveStatus(p, m, us, last)

	engine, err := s.engines.GetEngine(phaseEngineID(st, p))
	if err != nil {
		return err
	}
	p.NextRefresh = s.now().Add(engine.RefreshInterval)
	p.UpdatedAt = s.now()
	return s.positions.UpdatePosition(p)
}

// CheckStops is the fast sweep pass: it only updates price extremes and
// evaluates stop conditions, independent of the position's own schedule.
func (s *PositionService) CheckStops(ctx context.Context, p *domain.Position) error {
	ok, err := s.positions.AcquireRefreshLock(p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.positions.ReleaseRefreshLock(p.ID); err != nil {
			log.Printf("position %s: release refresh lock: %v", p.ID, err)
		}
	}()

	us, err := s.strategies.GetUserStrategy(p.UserStrategyID)
	if err != nil {
		return err
	}
	st, err := s.strategies.GetStrategy(us.StrategyID)
	if err != nil {
		return err
	}
	ex, err := s.exchanges.GetExchange(st.ExchangeID)
	if err != nil {
		return err
	}
	m, err := s.markets.GetMarket(p.MarketID)
	if err != nil {
		return err
	}
	adapter, err := s.adapters.New(ex)
	if err != nil {
		return err
	}
	svc := NewExchangeService(ex, adapter, s.candles, s.strategies)

	last, err := svc.LastPrice(ctx, m)
	if err != nil {
		return err
	}
	s.trackExtremes(p, last)

	stopEngine, err := s.engines.GetEngine(st.StopEngineID)
	if err != nil {
		return err
	}
	if s.stopTriggered(p, stopEngine, last) {
		s.enterPhase(p, domain.PositionStopping, stopEngine)
		p.NextRefresh = s.now()
		s.notify(us.UserID, "Stop triggered", positionBody(m, p))
	}
	p.UpdatedAt = s.now()
	return s.positions.UpdatePosition(p)
}

func (s *PositionService) trackExtremes(p *domain.Position, last int64) {
	if last > p.LastHigh {
		p.LastHigh = last
	}
	if p.LastLow == 0 || last < p.LastLow {
		p.LastLow = last
	}
}

// enterPhase flips the status and resets the bucket clock for the phase's
// engine. Bucket one is available immediately.
func (s *PositionService) enterPhase(p *domain.Position, status domain.PositionStatus, e *domain.TradeEngine) {
	p.Status = status
	p.Bucket = 1
	p.NextBucket = s.now().Add(e.BucketInterval)
}

// resyncOrders cancels open limit orders and refreshes their final state so
// aggregates are exact and the next ladder rung prices off fresh data.
func (s *PositionService) resyncOrders(ctx context.Context, svc *ExchangeService, m *domain.Market, p *domain.Position) error {
	open, err := s.orders.OpenOrders(p.ID)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.ExchangeOrderID != "" {
			if err := svc.CancelOrder(ctx, m, o.ExchangeOrderID); err != nil {
				return err
			}
		}
		synced, err := svc.SyncOrder(ctx, m, o)
		if err != nil {
			return err
		}
		if err := s.orders.UpdateOrder(synced); err != nil {
			return err
		}
	}
	return nil
}

// recomputeAggregates rebuilds entry/exit totals from the stored orders.
// Rebuilding from scratch keeps the totals exact under partial fills and
// reconciled duplicates.
func (s *PositionService) recomputeAggregates(m *domain.Market, p *domain.Position) error {
	all, err := s.orders.PositionOrders(p.ID)
	if err != nil {
		return err
	}
	entry := entrySide(p.Side)

	p.EntryCost, p.EntryAmount = 0, 0
	p.ExitCost, p.ExitAmount = 0, 0
	p.Fee = 0
	for _, o := range all {
		if o.Filled <= 0 {
			continue
		}
		cost := o.Cost
		if o.Filled < o.Amount || cost == 0 {
			cost = m.Cost(o.Filled, o.Price)
		}
		p.Fee += o.Fee
		if o.Side == entry {
			p.EntryAmount += o.Filled
			p.EntryCost += cost
		} else {
			p.ExitAmount += o.Filled
			p.ExitCost += cost
		}
	}
	if p.EntryAmount > 0 {
		p.EntryPrice = domain.PriceOf(p.EntryCost, p.EntryAmount, m.Base.Precision)
	}
	if p.ExitAmount > 0 {
		p.ExitPrice = domain.PriceOf(p.ExitCost, p.ExitAmount, m.Base.Precision)
	}
	return nil
}

// stopTriggered evaluates the four stop conditions against the last price.
// Fixed stops measure from the entry price; trailing stops measure from the
// price extreme reached since entry.
func (s *PositionService) stopTriggered(p *domain.Position, e *domain.TradeEngine, last int64) bool {
	if p.Status != domain.PositionOpening && p.Status != domain.PositionOpen {
		return false
	}
	if p.EntryAmount <= 0 || p.EntryPrice <= 0 {
		return false
	}

	ret := returnPct(p.Side, p.EntryPrice, last)
	if e.StopGain > 0 && ret >= e.StopGain {
		return true
	}
	if e.StopLoss > 0 && ret <= -e.StopLoss {
		return true
	}

	favorable, adverse := p.LastHigh, p.LastLow
	if p.Side == domain.SideShort {
		favorable, adverse = p.LastLow, p.LastHigh
	}
	if e.TrailingGain > 0 && returnPct(p.Side, p.EntryPrice, favorable) > 0 {
		if returnPct(p.Side, favorable, last) <= -e.TrailingGain {
			return true
		}
	}
	if e.TrailingLoss > 0 && returnPct(p.Side, p.EntryPrice, adverse) < 0 {
		if returnPct(p.Side, adverse, last) >= e.TrailingLoss {
			return true
		}
	}
	return false
}

// applySignal flips the position between accumulation directions when the
// strategy's cached signal reverses: exit signal closes, entry signal
// resumes a closing position back to opening.
func (s *PositionService) applySignal(p *domain.Position, st *domain.Strategy, us *domain.UserStrategy, m *domain.Market) error {
	ind, err := s.strategies.LatestIndicator(st.ID)
	if err != nil {
		return err
	}
	if ind == nil {
		return nil
	}
	sig := ind.Signal

	entry, exit := domain.SignalBuy, domain.SignalSell
	if p.Side == domain.SideShort {
		entry, exit = domain.SignalSell, domain.SignalBuy
	}

	switch p.Status {
	case domain.PositionOpening, domain.PositionOpen:
		if sig == exit && p.EntryAmount > 0 {
			e, err := s.engines.GetEngine(phaseEngineID(st, &domain.Position{Side: p.Side, Status: domain.PositionClosing}))
			if err != nil {
				return err
			}
			s.enterPhase(p, domain.PositionClosing, e)
			s.notify(us.UserID, "Position closing", positionBody(m, p))
		}
	case domain.PositionClosing:
		if sig == entry {
			e, err := s.engines.GetEngine(phaseEngineForSide(st, p.Side))
			if err != nil {
				return err
			}
			s.enterPhase(p, domain.PositionOpening, e)
			s.notify(us.UserID, "Position resuming", positionBody(m, p))
		}
	}
	return nil
}

// phaseTotals returns the phase's full size and the part already filled, in
// the phase's budget unit: quote cost for buying phases, base amount for
// selling phases.
func phaseTotals(p *domain.Position, m *domain.Market, last int64) (total, done, minUnit int64) {
	buying := phaseSide(p) == domain.OrderBuy
	switch {
	case p.Status == domain.PositionOpening && buying:
		return p.TargetCost, p.EntryCost, m.CostMin
	case p.Status == domain.PositionOpening:
		return p.TargetAmount, p.EntryAmount, m.MinAmountAt(last)
	case buying:
		// short exit buys the entry amount back; budget in quote at the
		// current price
		return m.Cost(p.EntryAmount, last), p.ExitCost, m.CostMin
	default:
		return p.EntryAmount, p.ExitAmount, m.MinAmountAt(last)
	}
}

// accumulate advances the bucket clock and emits this pass's orders: an
// optional market slice of the open room plus one limit ladder rung.
func (s *PositionService) accumulate(ctx context.Context, svc *ExchangeService, m *domain.Market, e *domain.TradeEngine, p *domain.Position, last int64) error {
	now := s.now()
	total, done, minUnit := phaseTotals(p, m, last)
	if total <= 0 {
		return nil
	}

	bucketMax := int(total / (minUnit * int64(e.NumOrders)))
	if bucketMax < e.MinBuckets {
		bucketMax = e.MinBuckets
	}
	p.BucketMax = bucketMax
	if p.Bucket < 1 {
		p.Bucket = 1
	}
	if p.Bucket > bucketMax {
		p.Bucket = bucketMax
	}
	if p.Bucket < bucketMax && !now.Before(p.NextBucket) {
		p.Bucket++
		p.NextBucket = now.Add(e.BucketInterval)
	}

	room := share(total, p.Bucket, p.BucketMax) - done
	if room < minUnit {
		return nil
	}

	side := phaseSide(p)

	// market slice of the room, per the engine's limit/market ratio
	if e.LMRatio > 0 {
		slice := domain.Portion(room, e.LMRatio*100)
		if slice >= minUnit {
			amount := slice
			if side == domain.OrderBuy {
				amount = m.AmountCeil(slice, last)
			}
			o, err := svc.CreateOrder(ctx, m, domain.OrderMarket, side, amount, last)
			if err != nil {
				return err
			}
			if err := s.insertOrder(p, o); err != nil {
				return err
			}
			room -= slice
		}
	}
	if room < minUnit {
		return nil
	}

	placed, err := s.placedLimitOrders(p, side)
	if err != nil {
		return err
	}

	var o *domain.Order
	if side == domain.OrderBuy {
		o, err = svc.CreateLimitBuyOrders(ctx, m, e, room, last, placed)
	} else {
		o, err = svc.CreateLimitSellOrders(ctx, m, e, room, last, placed)
	}
	if err == domain.ErrOrderTooSmall {
		return nil
	}
	if err != nil {
		return err
	}
	return s.insertOrder(p, o)
}

func (s *PositionService) placedLimitOrders(p *domain.Position, side domain.OrderSide) (int, error) {
	all, err := s.orders.PositionOrders(p.ID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range all {
		if o.Type == domain.OrderLimit && o.Side == side {
			n++
		}
	}
	return n, nil
}

func (s *PositionService) insertOrder(p *domain.Position, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.PositionID = p.ID
	return s.orders.InsertOrder(o)
}

// deriveStatus settles phase completion: opening becomes open once the
// target is reached within one tradable minimum, closing and stopping
// become terminal once the held amount is unwound within one.
func (s *PositionService) deriveStatus(p *domain.Position, m *domain.Market, us *domain.UserStrategy, last int64) {
	switch p.Status {
	case domain.PositionOpening:
		if p.Side == domain.SideLong {
			if p.TargetCost-p.EntryCost < m.CostMin {
				p.Status = domain.PositionOpen
			}
		} else {
			if p.TargetAmount-p.EntryAmount < m.MinAmountAt(last) {
				p.Status = domain.PositionOpen
			}
		}
		if p.Status == domain.PositionOpen {
			s.notify(us.UserID, "Position open", positionBody(m, p))
		}
	case domain.PositionClosing, domain.PositionStopping:
		if p.EntryAmount-p.ExitAmount >= m.MinAmountAt(last) {
			return
		}
		if p.Status == domain.PositionClosing {
			p.Status = domain.PositionClosed
		} else {
			p.Status = domain.PositionStopped
		}
		p.ExitTime = s.now()
		if p.Side == domain.SideLong {
			p.PnL = p.ExitCost - p.EntryCost - p.Fee
		} else {
			p.PnL = p.EntryCost - p.ExitCost - p.Fee
		}
		p.ROI = returnPct(p.Side, p.EntryPrice, p.ExitPrice)
		s.notify(us.UserID, "Position "+string(p.Status), positionBody(m, p))
	}
}

// Postpone pushes the position's next refresh forward by delay.
func (s *PositionService) Postpone(p *domain.Position, delay time.Duration) error {
	p.NextRefresh = s.now().Add(delay)
	p.UpdatedAt = s.now()
	return s.positions.UpdatePosition(p)
}

// Stall parks a position whose balances cannot sustain further orders:
// open orders are canceled on the venue and the position goes terminal
// without settlement.
func (s *PositionService) Stall(ctx context.Context, p *domain.Position) error {
	return s.park(ctx, p, domain.PositionStalled)
}

// Drop administratively removes a position, canceling its open orders.
func (s *PositionService) Drop(ctx context.Context, p *domain.Position) error {
	return s.park(ctx, p, domain.PositionDeleted)
}

func (s *PositionService) park(ctx context.Context, p *domain.Position, status domain.PositionStatus) error {
	us, err := s.strategies.GetUserStrategy(p.UserStrategyID)
	if err != nil {
		return err
	}
	st, err := s.strategies.GetStrategy(us.StrategyID)
	if err != nil {
		return err
	}
	ex, err := s.exchanges.GetExchange(st.ExchangeID)
	if err != nil {
		return err
	}
	m, err := s.markets.GetMarket(p.MarketID)
	if err != nil {
		return err
	}
	adapter, err := s.adapters.New(ex)
	if err == nil {
		svc := NewExchangeService(ex, adapter, s.candles, s.strategies)
		if cerr := svc.CancelAllOrders(ctx, m); cerr != nil {
			log.Printf("position %s: cancel orders while parking: %v", p.ID, cerr)
		}
	}

	p.Status = status
	p.ExitTime = s.now()
	p.UpdatedAt = s.now()
	if err := s.positions.UpdatePosition(p); err != nil {
		return err
	}
	s.notify(us.UserID, "Position "+string(status), positionBody(m, p))
	return nil
}
