// Package execution is the trading simulation core: it decides whether a
// pending order fills against the latest quote, applies the resulting
// ledger mutation, persists a snapshot, and publishes order/ledger events.
//
// The coordinator owns the active (user, mode) ledger exclusively. All
// evaluation and mutation is serialized behind a single mutex so two
// concurrent fills can never read-modify-write positions or funds from
// stale state.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradesim/internal/ledger"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/notification"
)

// CoordinatorConfig wires the coordinator's collaborators. Journal,
// Notifier, and Metrics are optional.
type CoordinatorConfig struct {
	Ledger        *ledger.Ledger
	Quotes        model.QuoteSource
	Store         model.SnapshotStore
	Bus           *Bus
	Slippage      *Slippage
	Journal       *Journal
	Notifier      notification.Notifier
	Metrics       *metrics.Metrics
	StartingFunds int64 // paise, funds baseline used by reset and fresh ledgers
}

// Coordinator is the order execution state machine. One evaluation at a
// time reads the latest quote, decides the fill, and commits exactly one
// ledger mutation per fill.
type Coordinator struct {
	mu sync.Mutex // serializes evaluate → mutate → persist

	led           *ledger.Ledger
	quotes        model.QuoteSource
	store         model.SnapshotStore
	bus           *Bus
	slip          *Slippage
	journal       *Journal
	notifier      notification.Notifier
	met           *metrics.Metrics
	startingFunds int64

	// dirty marks that the last snapshot save failed; the next mutation
	// writes a full snapshot again, so the durable store never lags the
	// in-memory ledger by more than one missed write.
	dirty bool
}

// NewCoordinator creates a Coordinator from the given config.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		led:           cfg.Ledger,
		quotes:        cfg.Quotes,
		store:         cfg.Store,
		bus:           cfg.Bus,
		slip:          cfg.Slippage,
		journal:       cfg.Journal,
		notifier:      cfg.Notifier,
		met:           cfg.Metrics,
		startingFunds: cfg.StartingFunds,
	}
}

// Ledger returns the active ledger for read-only consumers.
func (c *Coordinator) Ledger() *ledger.Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.led
}

// Mode returns the active trading mode.
func (c *Coordinator) Mode() string {
	return c.Ledger().Mode()
}

// Submit records a freshly validated order as OPEN and persists it.
// Evaluation happens asynchronously via the scheduler; the caller returns
// immediately.
func (c *Coordinator) Submit(o model.Order) {
	c.mu.Lock()
	c.led.AddOrder(o)
	c.persistLocked()
	c.mu.Unlock()

	c.emitOrder(o)
}

// Evaluate runs one evaluation tick for an order: reads the latest quote,
// decides whether the order fills, and applies the ledger mutation.
//
// Evaluating a terminal order is a no-op, which also closes the
// cancel/fill race: a cancellation that lands before a scheduled
// evaluation fires makes that evaluation do nothing. A missing quote is
// not an error; the order stays pending and is retried on the next tick.
//
// Returns the order's current state and whether the order exists.
func (c *Coordinator) Evaluate(orderID string) (model.Order, bool) {
	start := time.Now()

	c.mu.Lock()
	o, ok := c.led.Order(orderID)
	if !ok {
		c.mu.Unlock()
		return model.Order{}, false
	}
	if !o.IsPending() {
		c.mu.Unlock()
		return o, true
	}

	quote, ok := c.quotes.Price(o.Exchange, o.Token)
	if !ok {
		c.mu.Unlock()
		if c.met != nil {
			c.met.EvalSkips.Inc()
		}
		return o, true
	}

	fillPrice, fills := c.decide(&o, quote)
	if !fills {
		// Stop orders surface their transient trigger-pending state.
		if o.NeedsTrigger() && o.Status == model.StatusOpen && c.led.MarkTriggerPending(orderID) {
			o, _ = c.led.Order(orderID)
			c.mu.Unlock()
			c.emitOrder(o)
			return o, true
		}
		c.mu.Unlock()
		return o, true
	}

	now := time.Now().UTC()
	fill := ledger.Fill{
		OrderID:       o.OrderID,
		Token:         o.Token,
		Exchange:      o.Exchange,
		TradingSymbol: o.TradingSymbol,
		Side:          o.Side,
		Product:       o.Product,
		Mode:          o.Mode,
		Qty:           o.Qty,
		Price:         fillPrice,
		FilledAt:      now,
	}

	if err := c.led.ApplyFill(fill); err != nil {
		reason := model.RejectionReason(err)
		if reason == "" {
			reason = err.Error()
		}
		c.led.RejectOrder(orderID, reason)
		c.persistLocked()
		o, _ = c.led.Order(orderID)
		snap := c.led.Snapshot()
		c.mu.Unlock()

		log.Printf("[execution] order %s rejected: %s", orderID, reason)
		if c.met != nil {
			c.met.OrdersRejected.WithLabelValues(reason).Inc()
		}
		c.emitOrder(o)
		c.emitLedger(snap)
		c.notify(notification.AlertWarning, "Order rejected",
			fmt.Sprintf("%s %s %d %s (%s): %s", o.Side, o.TradingSymbol, o.Qty, o.OrderType, o.Product, reason))
		return o, true
	}

	c.led.ExecuteOrder(orderID, fillPrice, now)
	c.persistLocked()
	o, _ = c.led.Order(orderID)
	snap := c.led.Snapshot()
	c.mu.Unlock()

	log.Printf("[execution] order %s filled: %s %s qty=%d price=%d",
		orderID, o.Side, o.Key(), o.Qty, fillPrice)
	if c.journal != nil {
		if err := c.journal.RecordFill(fill); err != nil {
			log.Printf("[execution] journal write failed: %v", err)
			if c.met != nil {
				c.met.JournalErrors.Inc()
			}
		}
	}
	if c.met != nil {
		c.met.OrdersFilled.WithLabelValues(o.Mode, o.Product).Inc()
		c.met.EvalDuration.Observe(time.Since(start).Seconds())
	}
	c.emitOrder(o)
	c.emitLedger(snap)
	c.notify(notification.AlertInfo, "Order filled",
		fmt.Sprintf("%s %s qty=%d avg=%d (%s)", o.Side, o.TradingSymbol, o.Qty, fillPrice, o.Product))
	return o, true
}

// decide returns the fill price for the order at the given quote, and
// whether the fill condition is met. It never mutates the ledger.
//
// MARKET fills unconditionally at the quote plus slippage. LIMIT fills at
// the limit price exactly (marketable-limit guarantee) once the quote
// crosses it. STOP fills at the trigger price, STOP_MARKET at the quote
// plus slippage, once the trigger condition is met.
func (c *Coordinator) decide(o *model.Order, quote int64) (int64, bool) {
	switch o.OrderType {
	case model.OrderTypeMarket:
		return c.slip.Apply(quote, o.Side), true

	case model.OrderTypeLimit:
		if o.Side == model.SideBuy && quote <= o.Price {
			return o.Price, true
		}
		if o.Side == model.SideSell && quote >= o.Price {
			return o.Price, true
		}
		return 0, false

	case model.OrderTypeStop, model.OrderTypeStopMarket:
		triggered := (o.Side == model.SideBuy && quote >= o.TriggerPrice) ||
			(o.Side == model.SideSell && quote <= o.TriggerPrice)
		if !triggered {
			return 0, false
		}
		if o.OrderType == model.OrderTypeStopMarket {
			return c.slip.Apply(quote, o.Side), true
		}
		return o.TriggerPrice, true
	}
	return 0, false
}

// Cancel transitions a pending order to CANCELLED. Cancelling an order
// that already reached a terminal state returns ErrInvalidTransition.
func (c *Coordinator) Cancel(orderID string) error {
	c.mu.Lock()
	o, ok := c.led.Order(orderID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("order %s: not found", orderID)
	}
	if err := c.led.CancelOrder(orderID, time.Now().UTC()); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cancel order %s in status %s: %w", orderID, o.Status, err)
	}
	c.persistLocked()
	o, _ = c.led.Order(orderID)
	c.mu.Unlock()

	log.Printf("[execution] order %s cancelled", orderID)
	if c.met != nil {
		c.met.OrdersCancelled.Inc()
	}
	c.emitOrder(o)
	return nil
}

// BrokerReport is an out-of-band fill/reject notification from the live
// broker, fed back through the same ledger mutation path as paper fills.
type BrokerReport struct {
	BrokerOrderID string `json:"broker_order_id"`
	Status        string `json:"status"` // EXECUTED or REJECTED
	AvgPrice      int64  `json:"avg_price"`
	Reason        string `json:"reason,omitempty"`
}

// ApplyExternalFill mirrors a broker execution report into the ledger.
// REAL-mode fills run through the identical ApplyFill mutation as paper
// fills; only funds are skipped, since live funds are mirrored from the
// broker rather than computed.
func (c *Coordinator) ApplyExternalFill(rep BrokerReport) error {
	c.mu.Lock()
	o, ok := c.led.OrderByBrokerID(rep.BrokerOrderID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("broker order %s: not found", rep.BrokerOrderID)
	}
	if !o.IsPending() {
		// Duplicate postback; already terminal.
		c.mu.Unlock()
		return nil
	}

	if rep.Status != model.StatusExecuted {
		reason := rep.Reason
		if reason == "" {
			reason = "rejected by broker"
		}
		c.led.RejectOrder(o.OrderID, reason)
		c.persistLocked()
		o, _ = c.led.Order(o.OrderID)
		c.mu.Unlock()

		if c.met != nil {
			c.met.OrdersRejected.WithLabelValues("Broker").Inc()
		}
		c.emitOrder(o)
		return nil
	}

	now := time.Now().UTC()
	fill := ledger.Fill{
		OrderID:       o.OrderID,
		Token:         o.Token,
		Exchange:      o.Exchange,
		TradingSymbol: o.TradingSymbol,
		Side:          o.Side,
		Product:       o.Product,
		Mode:          o.Mode,
		Qty:           o.Qty,
		Price:         rep.AvgPrice,
		FilledAt:      now,
	}
	if err := c.led.ApplyFill(fill); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("apply broker fill %s: %w", rep.BrokerOrderID, err)
	}
	c.led.ExecuteOrder(o.OrderID, rep.AvgPrice, now)
	c.persistLocked()
	o, _ = c.led.Order(o.OrderID)
	snap := c.led.Snapshot()
	c.mu.Unlock()

	log.Printf("[execution] broker fill mirrored: order=%s broker=%s price=%d",
		o.OrderID, rep.BrokerOrderID, rep.AvgPrice)
	if c.journal != nil {
		if err := c.journal.RecordFill(fill); err != nil {
			log.Printf("[execution] journal write failed: %v", err)
		}
	}
	if c.met != nil {
		c.met.OrdersFilled.WithLabelValues(o.Mode, o.Product).Inc()
	}
	c.emitOrder(o)
	c.emitLedger(snap)
	return nil
}

// Reset wipes a mode's ledger back to the fresh funds baseline. Resetting
// the active mode swaps in an empty aggregate; resetting the inactive
// mode rewrites its persisted snapshot only.
func (c *Coordinator) Reset(mode string) error {
	c.mu.Lock()
	if mode == c.led.Mode() {
		c.led.Reset(c.startingFunds)
		c.persistLocked()
		snap := c.led.Snapshot()
		c.mu.Unlock()

		log.Printf("[execution] ledger reset for mode %s", mode)
		c.emitLedger(snap)
		return nil
	}
	c.mu.Unlock()

	fresh := ledger.New(mode, c.startingFunds)
	if err := c.store.Save(mode, fresh.Snapshot()); err != nil {
		return fmt.Errorf("reset %s ledger: %w", mode, err)
	}
	log.Printf("[execution] persisted fresh %s ledger", mode)
	return nil
}

// SwitchMode saves the active aggregate, loads the target mode's snapshot
// (or starts fresh), and swaps it in. Aggregates are swapped whole, never
// merged.
func (c *Coordinator) SwitchMode(mode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == c.led.Mode() {
		return nil
	}
	c.persistLocked()

	snap, err := c.store.Load(mode)
	if err != nil {
		return fmt.Errorf("load %s ledger: %w", mode, err)
	}
	if snap == nil {
		c.led = ledger.New(mode, c.startingFunds)
	} else {
		c.led = ledger.Restore(snap, c.startingFunds)
	}
	log.Printf("[execution] switched to mode %s", mode)
	return nil
}

// persistLocked writes the full ledger snapshot. Callers hold c.mu.
// A failed save is logged and retried implicitly: the next mutation
// persists the full aggregate again, so the durable copy never diverges
// by more than one missed write.
func (c *Coordinator) persistLocked() {
	if c.store == nil {
		return
	}
	start := time.Now()
	snap := c.led.Snapshot()
	if err := c.store.Save(c.led.Mode(), snap); err != nil {
		c.dirty = true
		log.Printf("[execution] snapshot save failed (will retry on next mutation): %v", err)
		if c.met != nil {
			c.met.SnapshotSaveErrors.Inc()
		}
		return
	}
	if c.dirty {
		log.Printf("[execution] snapshot save recovered after earlier failure")
		c.dirty = false
	}
	if c.met != nil {
		c.met.SnapshotSaveDur.Observe(time.Since(start).Seconds())
	}
}

func (c *Coordinator) emitOrder(o model.Order) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(Event{Type: EventOrder, Mode: o.Mode, Order: &o, TS: time.Now().UTC()})
}

func (c *Coordinator) emitLedger(snap *model.LedgerSnapshot) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(Event{Type: EventLedger, Mode: snap.Mode, Snapshot: snap, TS: time.Now().UTC()})
}

// notify delivers an alert off the evaluation path.
func (c *Coordinator) notify(level notification.AlertLevel, title, msg string) {
	if c.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.notifier.Send(ctx, notification.Alert{Level: level, Title: title, Message: msg}); err != nil {
			log.Printf("[execution] notification failed: %v", err)
		}
	}()
}
