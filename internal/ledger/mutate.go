package ledger

import (
	"time"

	"tradesim/internal/model"
)

// Fill is one completed match of an order against a price, applied to the
// ledger as a single atomic mutation.
type Fill struct {
	OrderID       string    `json:"order_id"`
	Token         string    `json:"token"`
	Exchange      string    `json:"exchange"`
	TradingSymbol string    `json:"trading_symbol"`
	Side          string    `json:"side"`
	Product       string    `json:"product"`
	Mode          string    `json:"mode"`
	Qty           int64     `json:"qty"`
	Price         int64     `json:"price"` // actual fill price in paise, slippage included
	FilledAt      time.Time `json:"filled_at"`
}

// Value returns the fill turnover in paise.
func (f *Fill) Value() int64 {
	return f.Price * f.Qty
}

// ApplyFill applies one fill to positions/holdings and funds as a single
// atomic mutation. The mutation is validated in full before anything is
// committed: on a business-rule error (insufficient holdings or funds)
// the ledger is left untouched.
//
// Funds are computed only for PAPER fills; REAL mode funds are mirrored
// from the broker via SetFunds.
func (l *Ledger) ApplyFill(f Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := f.Exchange + ":" + f.Token
	value := f.Value()

	// Validate before touching anything.
	if f.Product == model.ProductCNC && f.Side == model.SideSell {
		h, ok := l.holdings[key]
		if !ok || h.Qty < f.Qty {
			return model.ErrInsufficientHoldings
		}
	}
	if f.Mode == model.ModePaper && f.Side == model.SideBuy && value > l.funds.Available {
		return model.ErrInsufficientFunds
	}

	if f.Product == model.ProductCNC {
		l.applyHolding(key, f, value)
	} else {
		l.applyPosition(key, f, value)
	}

	if f.Mode == model.ModePaper {
		l.applyFunds(f.Side, value)
	}
	return nil
}

// applyPosition mutates the MIS position for the fill's instrument.
// Signed quantity: buys add, sells subtract, and crossing zero flips the
// position between long and short. The average price is recomputed only
// when exposure increases in the current direction; reducing exposure
// preserves it, and crossing zero restarts it at the fill price.
func (l *Ledger) applyPosition(key string, f Fill, value int64) {
	p, ok := l.positions[key]
	if !ok {
		p = &model.Position{
			Token:         f.Token,
			Exchange:      f.Exchange,
			TradingSymbol: f.TradingSymbol,
			Product:       f.Product,
		}
		l.positions[key] = p
	}

	oldQty := p.Qty
	if f.Side == model.SideBuy {
		p.BuyValue += value
		newQty := oldQty + f.Qty
		switch {
		case oldQty >= 0:
			p.AvgPrice = weightedAvg(p.AvgPrice, oldQty, f.Price, f.Qty)
		case newQty > 0:
			// Covered the short and flipped long.
			p.AvgPrice = f.Price
		}
		p.Qty = newQty
	} else {
		p.SellValue += value
		newQty := oldQty - f.Qty
		switch {
		case oldQty <= 0:
			p.AvgPrice = weightedAvg(p.AvgPrice, -oldQty, f.Price, f.Qty)
		case newQty < 0:
			// Sold through the long and flipped short.
			p.AvgPrice = f.Price
		}
		p.Qty = newQty
	}

	p.LastPrice = f.Price
	if p.Qty == 0 {
		// Zero rows are never stored; realized P&L already moved to cash.
		delete(l.positions, key)
	}
}

// applyHolding mutates the CNC holding for the fill's instrument.
// Buys recompute the quantity-weighted average cost; sells reduce the
// quantity at the existing average cost. Callers have already validated
// that a sell cannot drive quantity negative.
func (l *Ledger) applyHolding(key string, f Fill, value int64) {
	h, ok := l.holdings[key]
	if !ok {
		h = &model.Holding{
			Token:         f.Token,
			Exchange:      f.Exchange,
			TradingSymbol: f.TradingSymbol,
		}
		l.holdings[key] = h
	}

	if f.Side == model.SideBuy {
		h.AvgCost = weightedAvg(h.AvgCost, h.Qty, f.Price, f.Qty)
		h.Qty += f.Qty
	} else {
		h.Qty -= f.Qty
	}

	h.Invested = h.AvgCost * h.Qty
	h.LastPrice = f.Price
	if h.Qty == 0 {
		delete(l.holdings, key)
	}
}

// applyFunds moves cash between available and used (blocked margin).
// A BUY blocks the fill value; a SELL releases it, with used floored at
// zero so repeated round-trips cannot drive it negative. Total is a
// derived value and is recomputed after every mutation.
func (l *Ledger) applyFunds(side string, value int64) {
	if side == model.SideBuy {
		l.funds.Available -= value
		l.funds.Used += value
	} else {
		l.funds.Available += value
		release := value
		if release > l.funds.Used {
			release = l.funds.Used
		}
		l.funds.Used -= release
	}
	l.funds.Recompute()
}

// weightedAvg returns the quantity-weighted average of an existing
// average price over oldQty and a fill price over fillQty.
func weightedAvg(oldAvg, oldQty, price, qty int64) int64 {
	total := oldQty + qty
	if total <= 0 {
		return price
	}
	return (oldAvg*oldQty + price*qty) / total
}
