package usecase

import (
	"context"
	"hash/fnv"
	"log"
	"strconv"
	"sync"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/infrastructure/metrics"
)

// Watchdog is the scheduler: a fixed-interval loop that sweeps stops,
// refreshes due strategies, opens positions on fresh signals and refreshes
// due positions. Units of work are sharded over a worker pool keyed by
// entity id, so two passes never touch the same entity concurrently while
// unrelated entities proceed in parallel.
type Watchdog struct {
	strategySvc *StrategyService
	positionSvc *PositionService
	strategies  domain.StrategyRepository
	positions   domain.PositionRepository

	interval      time.Duration
	postponeDelay time.Duration
	workers       int

	now func() time.Time
}

func NewWatchdog(
	strategySvc *StrategyService,
	positionSvc *PositionService,
	strategies domain.StrategyRepository,
	positions domain.PositionRepository,
	interval time.Duration,
	workers int,
) *Watchdog {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if workers < 1 {
		workers = 4
	}
	return &Watchdog{
		strategySvc:   strategySvc,
		positionSvc:   positionSvc,
		strategies:    strategies,
		positions:     positions,
		interval:      interval,
		postponeDelay: 15 * time.Minute,
		workers:       workers,
		now:           time.Now,
	}
}

// Run loops until the context is canceled. Each pass sleeps the fixed
// interval after finishing, it does not tick on wall-clock alignment.
func (w *Watchdog) Run(ctx context.Context) {
	log.Printf("watchdog running, interval %s, %d workers", w.interval, w.workers)
	for {
		start := w.now()
		w.runCycle(ctx)
		metrics.CycleSeconds.Set(w.now().Sub(start).Seconds())

		select {
		case <-ctx.Done():
			log.Println("watchdog stopped")
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Watchdog) runCycle(ctx context.Context) {
	w.refreshRisk(ctx)
	w.sweepStops(ctx)
	w.refreshStrategies(ctx)
	w.refreshPositions(ctx)
}

// refreshRisk is the venue-level risk phase. Nothing is evaluated at the
// account level yet; the phase runs first so later checks can rely on it.
func (w *Watchdog) refreshRisk(ctx context.Context) {}

// sweepStops evaluates stop conditions on every active position regardless
// of its own refresh schedule, so a fast move is caught within one pass.
func (w *Watchdog) sweepStops(ctx context.Context) {
	active, err := w.positions.ActivePositions()
	if err != nil {
		log.Printf("watchdog: list active positions: %v", err)
		return
	}
	metrics.OpenPositions.Set(float64(len(active)))

	jobs := make([]job, 0, len(active))
	for _, p := range active {
		p := p
		jobs = append(jobs, job{key: p.ID, run: func() {
			w.guardPosition(ctx, p, w.positionSvc.CheckStops(ctx, p))
		}})
	}
	runSharded(w.workers, jobs)
}

// refreshStrategies refreshes every due strategy and fans its fresh signal
// out to subscriptions. Plain strategies run first in parallel; mixers run
// in a second wave so the signals they aggregate are already current.
func (w *Watchdog) refreshStrategies(ctx context.Context) {
	due, err := w.strategies.PendingStrategies(w.now())
	if err != nil {
		log.Printf("watchdog: list pending strategies: %v", err)
		return
	}

	var plain, mixers []*domain.Strategy
	for _, st := range due {
		if st.Mixer() {
			mixers = append(mixers, st)
		} else {
			plain = append(plain, st)
		}
	}
	w.refreshStrategyBatch(ctx, plain)
	w.refreshStrategyBatch(ctx, mixers)
}

func (w *Watchdog) refreshStrategyBatch(ctx context.Context, batch []*domain.Strategy) {
	jobs := make([]job, 0, len(batch))
	for _, st := range batch {
		st := st
		jobs = append(jobs, job{key: strategyKey(st.ID), run: func() {
			if err := w.strategySvc.Refresh(ctx, st); err != nil {
				w.guardStrategy(st, err)
				return
			}
			w.fanOutSignal(ctx, st)
		}})
	}
	runSharded(w.workers, jobs)
}

// fanOutSignal hands the strategy's current signal to each active
// subscription so entry conditions open positions.
func (w *Watchdog) fanOutSignal(ctx context.Context, st *domain.Strategy) {
	sig, err := w.strategySvc.GetSignal(st)
	if err != nil {
		log.Printf("strategy %d: read signal: %v", st.ID, err)
		return
	}
	subs, err := w.strategies.Subscriptions(st.ID)
	if err != nil {
		log.Printf("strategy %d: list subscriptions: %v", st.ID, err)
		return
	}
	for _, us := range subs {
		if err := w.positionSvc.HandleSignal(ctx, us, st, sig); err != nil {
			w.guardSubscription(us, err)
		}
	}
}

// refreshPositions runs the full state machine pass on every due position.
func (w *Watchdog) refreshPositions(ctx context.Context) {
	due, err := w.positions.PendingPositions(w.now())
	if err != nil {
		log.Printf("watchdog: list pending positions: %v", err)
		return
	}
	jobs := make([]job, 0, len(due))
	for _, p := range due {
		p := p
		jobs = append(jobs, job{key: p.ID, run: func() {
			w.guardPosition(ctx, p, w.positionSvc.Refresh(ctx, p))
		}})
	}
	runSharded(w.workers, jobs)
}

// guardStrategy classifies a strategy refresh failure. Transient failures
// that survived local retries and postponing conditions push next_refresh
// forward; everything else disables the strategy.
func (w *Watchdog) guardStrategy(st *domain.Strategy, err error) {
	if err == nil {
		return
	}
	if _, transient := domain.AsTransient(err); transient || domain.IsPostponing(err) {
		log.Printf("strategy %d postponed: %v", st.ID, err)
		if perr := w.strategies.PostponeStrategy(st.ID, w.postponeDelay); perr != nil {
			log.Printf("strategy %d: postpone: %v", st.ID, perr)
		}
		metrics.Postpones.WithLabelValues("strategy").Inc()
		return
	}
	log.Printf("strategy %d disabled: %v", st.ID, err)
	if derr := w.strategies.DisableStrategy(st.ID); derr != nil {
		log.Printf("strategy %d: disable: %v", st.ID, derr)
	}
	metrics.Disables.WithLabelValues("strategy").Inc()
}

// guardSubscription classifies a signal-handling failure for one
// subscription without touching the shared strategy.
func (w *Watchdog) guardSubscription(us *domain.UserStrategy, err error) {
	if err == nil {
		return
	}
	if _, transient := domain.AsTransient(err); transient || domain.IsPostponing(err) {
		log.Printf("subscription %d: transient: %v", us.ID, err)
		metrics.Postpones.WithLabelValues("subscription").Inc()
		return
	}
	log.Printf("subscription %d disabled: %v", us.ID, err)
	if derr := w.strategies.DisableUserStrategy(us.ID); derr != nil {
		log.Printf("subscription %d: disable: %v", us.ID, derr)
	}
	metrics.Disables.WithLabelValues("subscription").Inc()
}

// guardPosition classifies a position refresh failure. Permanent failures
// stall the position and disable its subscription so capital stops moving
// until an operator looks at it.
func (w *Watchdog) guardPosition(ctx context.Context, p *domain.Position, err error) {
	if err == nil {
		return
	}
	if _, transient := domain.AsTransient(err); transient || domain.IsPostponing(err) {
		log.Printf("position %s postponed: %v", p.ID, err)
		if perr := w.positionSvc.Postpone(p, w.postponeDelay); perr != nil {
			log.Printf("position %s: postpone: %v", p.ID, perr)
		}
		metrics.Postpones.WithLabelValues("position").Inc()
		return
	}
	log.Printf("position %s stalled: %v", p.ID, err)
	if serr := w.positionSvc.Stall(ctx, p); serr != nil {
		log.Printf("position %s: stall: %v", p.ID, serr)
	}
	if derr := w.strategies.DisableUserStrategy(p.UserStrategyID); derr != nil {
		log.Printf("subscription %d: disable: %v", p.UserStrategyID, derr)
	}
	metrics.Disables.WithLabelValues("position").Inc()
}

type job struct {
	key string
	run func()
}

// runSharded executes jobs on a fixed pool, routing each job by the fnv
// hash of its key so jobs sharing a key run sequentially on one worker.
func runSharded(workers int, jobs []job) {
	if len(jobs) == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	chans := make([]chan func(), workers)
	var wg sync.WaitGroup
	for i := range chans {
		chans[i] = make(chan func(), len(jobs))
		wg.Add(1)
		go func(c chan func()) {
			defer wg.Done()
			for f := range c {
				f()
			}
		}(chans[i])
	}
	for _, j := range jobs {
		h := fnv.New32a()
		h.Write([]byte(j.key))
		chans[h.Sum32()%uint32(workers)] <- j.run
	}
	for _, c := range chans {
		close(c)
	}
	wg.Wait()
}

func strategyKey(id int64) string {
	return "strategy-" + strconv.FormatInt(id, 10)
}
