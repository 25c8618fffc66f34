package model

// Holding represents delivery (CNC) shares owned across sessions.
// Quantity is never negative; a holding at zero quantity is removed.
// Sells reduce quantity at the existing average cost, so cost basis is
// unchanged by sells.
type Holding struct {
	Token         string `json:"token"`
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"trading_symbol"`
	Qty           int64  `json:"qty"`
	AvgCost       int64  `json:"avg_cost"`   // quantity-weighted average cost in paise
	Invested      int64  `json:"invested"`   // cost basis of the current quantity in paise
	LastPrice     int64  `json:"last_price"` // latest market price in paise
}

// CurrentValue returns the holding's market value in paise.
func (h *Holding) CurrentValue() int64 {
	return h.LastPrice * h.Qty
}

// Key returns a unique key for this holding: "exchange:token".
func (h *Holding) Key() string {
	return h.Exchange + ":" + h.Token
}
