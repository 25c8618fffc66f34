package portfolio

import (
	"fmt"
	"sync"

	"tradesim/internal/model"
)

// RiskLimits defines configurable pre-trade thresholds. A zero value
// disables the corresponding check.
type RiskLimits struct {
	MaxOrderQty      int64 `json:"max_order_qty"`      // max qty per order
	MaxOrderValue    int64 `json:"max_order_value"`    // max order turnover in paise
	MaxOpenPositions int   `json:"max_open_positions"` // max concurrent position rows
	MaxExposure      int64 `json:"max_exposure"`       // max total exposure in paise
}

// LedgerView is the read surface the risk manager needs from the ledger.
type LedgerView interface {
	Positions() []model.Position
	Holdings() []model.Holding
	Funds() model.Funds
}

// RiskManager rejects orders that would breach configured limits. Checks
// run before an order is recorded, so a breach never produces an Order
// record or a ledger mutation.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits
}

// NewRiskManager creates a RiskManager with the given limits.
func NewRiskManager(limits RiskLimits) *RiskManager {
	return &RiskManager{limits: limits}
}

// Check validates a prospective order against the limits. The reference
// price is the latest quote (market orders) or the order's own price.
func (rm *RiskManager) Check(o model.Order, refPrice int64, led LedgerView) error {
	rm.mu.RLock()
	limits := rm.limits
	rm.mu.RUnlock()

	if limits.MaxOrderQty > 0 && o.Qty > limits.MaxOrderQty {
		return fmt.Errorf("order qty %d exceeds limit %d", o.Qty, limits.MaxOrderQty)
	}

	value := o.Qty * refPrice
	if limits.MaxOrderValue > 0 && value > limits.MaxOrderValue {
		return fmt.Errorf("order value %d exceeds limit %d", value, limits.MaxOrderValue)
	}

	if limits.MaxOpenPositions > 0 && o.Product == model.ProductMIS {
		positions := led.Positions()
		isNew := true
		for i := range positions {
			if positions[i].Key() == o.Exchange+":"+o.Token {
				isNew = false
				break
			}
		}
		if isNew && len(positions) >= limits.MaxOpenPositions {
			return fmt.Errorf("open positions at limit %d", limits.MaxOpenPositions)
		}
	}

	if limits.MaxExposure > 0 {
		var exposure int64
		for _, p := range led.Positions() {
			e := p.Qty * p.LastPrice
			if e < 0 {
				e = -e
			}
			exposure += e
		}
		for _, h := range led.Holdings() {
			exposure += h.CurrentValue()
		}
		if exposure+value > limits.MaxExposure {
			return fmt.Errorf("exposure %d would exceed limit %d", exposure+value, limits.MaxExposure)
		}
	}

	return nil
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.limits
}

// SetLimits replaces the limits at runtime.
func (rm *RiskManager) SetLimits(limits RiskLimits) {
	rm.mu.Lock()
	rm.limits = limits
	rm.mu.Unlock()
}
