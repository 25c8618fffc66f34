package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the execution core from concrete collaborators
// (quote feed, SQLite persistence, live broker). Each implementation
// satisfies one or more of these interfaces.

// QuoteSource supplies the latest tradable price for an instrument.
type QuoteSource interface {
	// Price returns the latest price in paise for "exchange:token".
	// ok is false when no price has been observed yet; that is not an
	// error, just a deferred retry for the caller.
	Price(exchange, token string) (price int64, ok bool)
}

// SnapshotStore durably saves and loads ledger snapshots keyed by mode.
type SnapshotStore interface {
	// Save persists the full ledger snapshot for a mode.
	Save(mode string, snap *LedgerSnapshot) error

	// Load returns the last saved snapshot for a mode.
	// Returns nil, nil if no snapshot exists.
	Load(mode string) (*LedgerSnapshot, error)

	// Close releases underlying resources.
	Close() error
}

// OrderSubmitter forwards orders to an external broker (REAL mode only).
// Fill/reject notifications arrive out-of-band and are fed back through
// the same ledger mutation path as paper fills.
type OrderSubmitter interface {
	// Submit places the order with the broker and returns the broker
	// order id. Implementations must bound the call with ctx.
	Submit(ctx context.Context, o *Order) (brokerOrderID string, err error)

	// Cancel requests cancellation of a previously submitted order.
	Cancel(ctx context.Context, brokerOrderID string) error
}
