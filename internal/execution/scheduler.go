package execution

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
)

// Scheduler decouples order placement from evaluation. Placing an order
// arms a one-shot delayed evaluation (randomized within a bounded window
// to simulate fill latency); after that the order is re-evaluated on
// every quote tick for its instrument until it reaches a terminal state.
//
// Every armed order has a cancellable timer handle, so a user
// cancellation reliably removes the pending evaluation. An evaluation
// already in flight is harmless: the coordinator re-checks order status
// before mutating the ledger.
type Scheduler struct {
	coord *Coordinator
	met   *metrics.Metrics

	mu       sync.Mutex
	timers   map[string]*time.Timer
	bySymbol map[string]map[string]bool // instrument key -> armed order ids
	keyOf    map[string]string          // order id -> instrument key

	minDelay time.Duration
	maxDelay time.Duration

	rmu sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a Scheduler. The first evaluation of each order
// fires after a random delay in [minDelay, maxDelay].
func NewScheduler(coord *Coordinator, minDelay, maxDelay time.Duration, seed int64, met *metrics.Metrics) *Scheduler {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Scheduler{
		coord:    coord,
		met:      met,
		timers:   make(map[string]*time.Timer),
		bySymbol: make(map[string]map[string]bool),
		keyOf:    make(map[string]string),
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Arm schedules the order's first evaluation and registers it for
// re-evaluation on quote ticks.
func (s *Scheduler) Arm(o model.Order) {
	orderID := o.OrderID
	key := o.Key()

	s.mu.Lock()
	if set, ok := s.bySymbol[key]; ok {
		set[orderID] = true
	} else {
		s.bySymbol[key] = map[string]bool{orderID: true}
	}
	s.keyOf[orderID] = key
	s.timers[orderID] = time.AfterFunc(s.delay(), func() { s.fire(orderID) })
	pending := len(s.keyOf)
	s.mu.Unlock()

	if s.met != nil {
		s.met.PendingOrders.Set(float64(pending))
	}
}

// Rearm registers persisted pending orders after a restart or mode
// switch. Terminal orders in the slice are ignored.
func (s *Scheduler) Rearm(orders []model.Order) {
	for _, o := range orders {
		if o.IsPending() {
			s.Arm(o)
		}
	}
}

// Disarm removes an order from future scheduled evaluations.
func (s *Scheduler) Disarm(orderID string) {
	s.mu.Lock()
	s.disarmLocked(orderID)
	pending := len(s.keyOf)
	s.mu.Unlock()

	if s.met != nil {
		s.met.PendingOrders.Set(float64(pending))
	}
}

// DisarmAll removes every armed order. Used on ledger reset and mode switch.
func (s *Scheduler) DisarmAll() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.bySymbol = make(map[string]map[string]bool)
	s.keyOf = make(map[string]string)
	s.mu.Unlock()

	if s.met != nil {
		s.met.PendingOrders.Set(0)
	}
}

func (s *Scheduler) disarmLocked(orderID string) {
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
		delete(s.timers, orderID)
	}
	if key, ok := s.keyOf[orderID]; ok {
		delete(s.keyOf, orderID)
		if set, ok := s.bySymbol[key]; ok {
			delete(set, orderID)
			if len(set) == 0 {
				delete(s.bySymbol, key)
			}
		}
	}
}

// Run consumes quote ticks and re-evaluates every armed order for the
// tick's instrument. Blocks until ctx is cancelled or tickCh is closed.
func (s *Scheduler) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			s.onTick(tick)
		}
	}
}

func (s *Scheduler) onTick(tick model.Tick) {
	key := tick.Key()

	s.mu.Lock()
	set, ok := s.bySymbol[key]
	if !ok || len(set) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	// Evaluations of different orders may interleave; the coordinator
	// serializes the ledger mutation itself.
	for _, id := range ids {
		go s.fire(id)
	}
}

// fire evaluates one order and disarms it once terminal.
func (s *Scheduler) fire(orderID string) {
	o, ok := s.coord.Evaluate(orderID)
	if !ok {
		log.Printf("[scheduler] order %s vanished, disarming", orderID)
		s.Disarm(orderID)
		return
	}
	if o.IsTerminal() {
		s.Disarm(orderID)
	}
}

// PendingCount returns the number of armed orders.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyOf)
}

// delay picks a random first-evaluation delay in [minDelay, maxDelay].
func (s *Scheduler) delay() time.Duration {
	window := int64(s.maxDelay - s.minDelay)
	if window <= 0 {
		return s.minDelay
	}
	s.rmu.Lock()
	d := s.rng.Int63n(window + 1)
	s.rmu.Unlock()
	return s.minDelay + time.Duration(d)
}
