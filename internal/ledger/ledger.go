// Package ledger holds the authoritative in-memory state of orders,
// positions, holdings, and funds for one (user, mode) pair.
//
// All mutation goes through the execution coordinator; other components
// only read snapshots or individual copies. Prices and values are int64
// paise throughout.
package ledger

import (
	"sort"
	"sync"
	"time"

	"tradesim/internal/model"
)

// Ledger is the aggregate {orders, positions, holdings, funds} for the
// active mode. Exactly one aggregate is current at a time; switching mode
// swaps the whole aggregate, never merges two modes' data.
type Ledger struct {
	mu        sync.RWMutex
	mode      string
	orders    map[string]*model.Order
	positions map[string]*model.Position // key = "exchange:token"
	holdings  map[string]*model.Holding  // key = "exchange:token"
	funds     model.Funds
}

// New creates an empty ledger for a mode with the given starting funds.
func New(mode string, startingFunds int64) *Ledger {
	l := &Ledger{
		mode:      mode,
		orders:    make(map[string]*model.Order),
		positions: make(map[string]*model.Position),
		holdings:  make(map[string]*model.Holding),
	}
	l.funds.Available = startingFunds
	l.funds.Recompute()
	return l
}

// Mode returns the trading mode this ledger belongs to.
func (l *Ledger) Mode() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mode
}

// AddOrder records a new order. The ledger owns the stored copy.
func (l *Ledger) AddOrder(o model.Order) {
	l.mu.Lock()
	l.orders[o.OrderID] = &o
	l.mu.Unlock()
}

// Order returns a copy of the order with the given id.
func (l *Ledger) Order(orderID string) (model.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// OrderByBrokerID returns a copy of the order carrying the given broker
// order id (REAL mode postbacks are keyed by it).
func (l *Ledger) OrderByBrokerID(brokerOrderID string) (model.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.orders {
		if o.BrokerOrderID == brokerOrderID {
			return *o, true
		}
	}
	return model.Order{}, false
}

// Orders returns all orders sorted by placement time, oldest first.
func (l *Ledger) Orders() []model.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]model.Order, 0, len(l.orders))
	for _, o := range l.orders {
		result = append(result, *o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PlacedAt.Before(result[j].PlacedAt)
	})
	return result
}

// PendingOrders returns all orders still awaiting evaluation.
func (l *Ledger) PendingOrders() []model.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []model.Order
	for _, o := range l.orders {
		if o.IsPending() {
			result = append(result, *o)
		}
	}
	return result
}

// MarkTriggerPending moves an OPEN stop order into TRIGGER_PENDING.
// No-op for orders that already left OPEN.
func (l *Ledger) MarkTriggerPending(orderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok || o.Status != model.StatusOpen {
		return false
	}
	o.Status = model.StatusTriggerPending
	return true
}

// ExecuteOrder transitions a pending order to EXECUTED, filling the full
// quantity at avgPrice. Fills are all-or-nothing: filled quantity stays 0
// until this transition and then equals the requested quantity.
func (l *Ledger) ExecuteOrder(orderID string, avgPrice int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok || !o.IsPending() {
		return model.ErrInvalidTransition
	}
	o.Status = model.StatusExecuted
	o.FilledQty = o.Qty
	o.AvgPrice = avgPrice
	o.ExecutedAt = &at
	return nil
}

// RejectOrder transitions a pending order to REJECTED with a reason.
func (l *Ledger) RejectOrder(orderID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok || !o.IsPending() {
		return model.ErrInvalidTransition
	}
	o.Status = model.StatusRejected
	o.Reason = reason
	return nil
}

// CancelOrder transitions a pending order to CANCELLED. Cancelling an
// order that already reached a terminal state is an invalid transition.
func (l *Ledger) CancelOrder(orderID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok || !o.IsPending() {
		return model.ErrInvalidTransition
	}
	o.Status = model.StatusCancelled
	o.CancelledAt = &at
	return nil
}

// Positions returns a snapshot of all open positions.
func (l *Ledger) Positions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })
	return result
}

// Holdings returns a snapshot of all holdings.
func (l *Ledger) Holdings() []model.Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]model.Holding, 0, len(l.holdings))
	for _, h := range l.holdings {
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })
	return result
}

// Funds returns a copy of the cash ledger.
func (l *Ledger) Funds() model.Funds {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.funds
}

// SetFunds replaces the cash ledger. Used in REAL mode where funds are
// mirrored from the broker RMS limits, not computed locally.
func (l *Ledger) SetFunds(available, used int64) {
	l.mu.Lock()
	l.funds.Available = available
	l.funds.Used = used
	l.funds.Recompute()
	l.mu.Unlock()
}

// UpdateLastPrice records the latest market price on any matching
// position and holding rows.
func (l *Ledger) UpdateLastPrice(tick model.Tick) {
	key := tick.Key()
	l.mu.Lock()
	if p, ok := l.positions[key]; ok {
		p.LastPrice = tick.Price
	}
	if h, ok := l.holdings[key]; ok {
		h.LastPrice = tick.Price
	}
	l.mu.Unlock()
}

// Snapshot returns the full aggregate for persistence.
func (l *Ledger) Snapshot() *model.LedgerSnapshot {
	return &model.LedgerSnapshot{
		Mode:      l.Mode(),
		Orders:    l.Orders(),
		Positions: l.Positions(),
		Holdings:  l.Holdings(),
		Funds:     l.Funds(),
		SavedAt:   time.Now().UTC(),
	}
}

// Restore rebuilds the ledger from a persisted snapshot.
func Restore(snap *model.LedgerSnapshot, startingFunds int64) *Ledger {
	l := New(snap.Mode, startingFunds)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range snap.Orders {
		o := snap.Orders[i]
		l.orders[o.OrderID] = &o
	}
	for i := range snap.Positions {
		p := snap.Positions[i]
		l.positions[p.Key()] = &p
	}
	for i := range snap.Holdings {
		h := snap.Holdings[i]
		l.holdings[h.Key()] = &h
	}
	l.funds = snap.Funds
	l.funds.Recompute()
	return l
}

// Reset wipes the ledger back to a fresh funds baseline. Orders,
// positions, and holdings are destroyed.
func (l *Ledger) Reset(startingFunds int64) {
	l.mu.Lock()
	l.orders = make(map[string]*model.Order)
	l.positions = make(map[string]*model.Position)
	l.holdings = make(map[string]*model.Holding)
	l.funds = model.Funds{Available: startingFunds}
	l.funds.Recompute()
	l.mu.Unlock()
}
