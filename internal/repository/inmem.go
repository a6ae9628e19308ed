package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"trader-backend/internal/domain"
)

// Memory is an in-memory implementation of every repository interface. It
// backs the engine's tests and makes a database-free dry run possible.
type Memory struct {
	mu sync.Mutex

	Exchanges  map[int64]*domain.Exchange
	Markets    map[int64]*domain.Market
	Engines    map[int64]*domain.TradeEngine
	Strategies map[int64]*domain.Strategy
	Subs       map[int64]*domain.UserStrategy
	Positions  map[string]*domain.Position
	Orders     map[string]*domain.Order
	Candles    []domain.Candle
	Indicators []domain.Indicator
}

func NewMemory() *Memory {
	return &Memory{
		Exchanges:  make(map[int64]*domain.Exchange),
		Markets:    make(map[int64]*domain.Market),
		Engines:    make(map[int64]*domain.TradeEngine),
		Strategies: make(map[int64]*domain.Strategy),
		Subs:       make(map[int64]*domain.UserStrategy),
		Positions:  make(map[string]*domain.Position),
		Orders:     make(map[string]*domain.Order),
	}
}

func (m *Memory) GetExchange(id int64) (*domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Exchanges[id]
	if !ok {
		return nil, fmt.Errorf("exchange %d not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) DisableExchange(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Exchanges[id]; ok {
		e.Enabled = false
	}
	return nil
}

func (m *Memory) GetMarket(id int64) (*domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.Markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d not found", id)
	}
	cp := *mk
	return &cp, nil
}

func (m *Memory) GetEngine(id int64) (*domain.TradeEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Engines[id]
	if !ok {
		return nil, fmt.Errorf("engine %d not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) GetStrategy(id int64) (*domain.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) PendingStrategies(now time.Time) ([]*domain.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Strategy, 0)
	for _, s := range m.Strategies {
		switch s.Status {
		case domain.StrategyIdle, domain.StrategyRefreshing, domain.StrategyResetting:
		default:
			continue
		}
		if s.NextRefresh.After(now) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mixer() != out[j].Mixer() {
			return !out[i].Mixer() // mixers last
		}
		return out[i].NextRefresh.Before(out[j].NextRefresh)
	})
	return out, nil
}

func (m *Memory) SetStrategyStatus(id int64, status domain.StrategyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Strategies[id]; ok {
		s.Status = status
	}
	return nil
}

func (m *Memory) SetNextRefresh(id int64, status domain.StrategyStatus, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Strategies[id]; ok {
		s.Status = status
		s.NextRefresh = next
	}
	return nil
}

func (m *Memory) MarkDataReady(marketID int64, timeframe string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Strategies {
		if s.MarketID == marketID && s.Timeframe == timeframe && s.Status == domain.StrategyRefreshing {
			s.Status = domain.StrategyIdle
		}
	}
	return nil
}

func (m *Memory) DisableStrategy(id int64) error {
	return m.SetStrategyStatus(id, domain.StrategyInactive)
}

func (m *Memory) PostponeStrategy(id int64, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Strategies[id]; ok {
		s.NextRefresh = time.Now().Add(delay)
	}
	return nil
}

func (m *Memory) GetUserStrategy(id int64) (*domain.UserStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.Subs[id]
	if !ok {
		return nil, fmt.Errorf("user strategy %d not found", id)
	}
	cp := *us
	return &cp, nil
}

func (m *Memory) Subscriptions(strategyID int64) ([]*domain.UserStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.UserStrategy, 0)
	for _, us := range m.Subs {
		if us.StrategyID == strategyID && us.Active {
			cp := *us
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DisableUserStrategy(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if us, ok := m.Subs[id]; ok {
		us.Active = false
	}
	return nil
}

func (m *Memory) LatestIndicator(strategyID int64) (*domain.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Indicator
	for i := range m.Indicators {
		ind := &m.Indicators[i]
		if ind.StrategyID != strategyID {
			continue
		}
		if latest == nil || ind.OpenTime.After(latest.OpenTime) {
			latest = ind
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) PendingCandles(s *domain.Strategy) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	have := make(map[time.Time]bool)
	for _, ind := range m.Indicators {
		if ind.StrategyID == s.ID {
			have[ind.OpenTime] = true
		}
	}
	out := make([]domain.Candle, 0)
	for _, c := range m.Candles {
		if c.MarketID == s.MarketID && c.Timeframe == s.Timeframe && !have[c.OpenTime] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (m *Memory) SaveIndicators(rows []domain.Indicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
outer:
	for _, ind := range rows {
		for _, have := range m.Indicators {
			if have.StrategyID == ind.StrategyID && have.OpenTime.Equal(ind.OpenTime) {
				continue outer
			}
		}
		ind.ID = int64(len(m.Indicators) + 1)
		m.Indicators = append(m.Indicators, ind)
	}
	return nil
}

func (m *Memory) LastCandleTime(marketID int64, timeframe string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	found := false
	for _, c := range m.Candles {
		if c.MarketID == marketID && c.Timeframe == timeframe && c.OpenTime.After(last) {
			last = c.OpenTime
			found = true
		}
	}
	return last, found, nil
}

func (m *Memory) InsertCandles(rows []domain.Candle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
outer:
	for _, c := range rows {
		for _, have := range m.Candles {
			if have.MarketID == c.MarketID && have.Timeframe == c.Timeframe && have.OpenTime.Equal(c.OpenTime) {
				continue outer
			}
		}
		m.Candles = append(m.Candles, c)
		inserted++
	}
	return inserted, nil
}

func (m *Memory) RecentCandles(marketID int64, timeframe string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Candle, 0)
	for _, c := range m.Candles {
		if c.MarketID == marketID && c.Timeframe == timeframe {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) CreatePosition(p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Positions[p.ID] = &cp
	return nil
}

func (m *Memory) UpdatePosition(p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Positions[p.ID]
	if !ok {
		return fmt.Errorf("position %s not found", p.ID)
	}
	refreshing := stored.Refreshing // only the lock calls touch it
	cp := *p
	cp.Refreshing = refreshing
	cp.UpdatedAt = time.Now().UTC()
	m.Positions[p.ID] = &cp
	return nil
}

func (m *Memory) GetPosition(id string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) CurrentPosition(userStrategyID int64) (*domain.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Position
	for _, p := range m.Positions {
		if p.UserStrategyID != userStrategyID || p.Status.Terminal() {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

func (m *Memory) LastStopped(userStrategyID int64) (*domain.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Position
	for _, p := range m.Positions {
		if p.UserStrategyID != userStrategyID || p.Status != domain.PositionStopped {
			continue
		}
		if best == nil || p.ExitTime.After(best.ExitTime) {
			best = p
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

func (m *Memory) PendingPositions(now time.Time) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0)
	for _, p := range m.Positions {
		if p.Status.Terminal() || p.Refreshing || p.NextRefresh.After(now) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRefresh.Before(out[j].NextRefresh) })
	return out, nil
}

func (m *Memory) ActivePositions() ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0)
	for _, p := range m.Positions {
		if p.Refreshing {
			continue
		}
		if p.Status != domain.PositionOpening && p.Status != domain.PositionOpen {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AcquireRefreshLock(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Positions[id]
	if !ok {
		return false, fmt.Errorf("position %s not found", id)
	}
	if p.Refreshing {
		return false, nil
	}
	p.Refreshing = true
	return true, nil
}

func (m *Memory) ReleaseRefreshLock(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Positions[id]; ok {
		p.Refreshing = false
	}
	return nil
}

func (m *Memory) InsertOrder(o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.Orders[o.ID] = &cp
	return nil
}

func (m *Memory) UpdateOrder(o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Orders[o.ID]; !ok {
		return fmt.Errorf("order %s not found", o.ID)
	}
	cp := *o
	m.Orders[o.ID] = &cp
	return nil
}

func (m *Memory) GetOrder(id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) OpenOrders(positionID string) ([]*domain.Order, error) {
	return m.ordersWhere(positionID, true)
}

func (m *Memory) PositionOrders(positionID string) ([]*domain.Order, error) {
	return m.ordersWhere(positionID, false)
}

func (m *Memory) ordersWhere(positionID string, openOnly bool) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Order, 0)
	for _, o := range m.Orders {
		if o.PositionID != positionID {
			continue
		}
		if openOnly && o.Status != domain.OrderOpen {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// compile-time checks
var (
	_ domain.ExchangeRepository = (*Memory)(nil)
	_ domain.MarketRepository   = (*Memory)(nil)
	_ domain.EngineRepository   = (*Memory)(nil)
	_ domain.StrategyRepository = (*Memory)(nil)
	_ domain.CandleRepository   = (*Memory)(nil)
	_ domain.PositionRepository = (*Memory)(nil)
	_ domain.OrderRepository    = (*Memory)(nil)
)
