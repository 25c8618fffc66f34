package model

// Position represents net open intraday (MIS) exposure in one instrument.
// A position with Qty == 0 is never stored; it is removed from the ledger.
type Position struct {
	Token         string `json:"token"`
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"trading_symbol"`
	Product       string `json:"product"`
	Qty           int64  `json:"qty"`        // positive = net long, negative = net short
	AvgPrice      int64  `json:"avg_price"`  // average entry price in paise
	BuyValue      int64  `json:"buy_value"`  // cumulative buy turnover in paise
	SellValue     int64  `json:"sell_value"` // cumulative sell turnover in paise
	LastPrice     int64  `json:"last_price"` // latest market price in paise
}

// UnrealizedPnL computes unrealized profit/loss in paise.
func (p *Position) UnrealizedPnL() int64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Key returns a unique key for this position: "exchange:token".
func (p *Position) Key() string {
	return p.Exchange + ":" + p.Token
}
