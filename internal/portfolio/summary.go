// Package portfolio derives P&L and exposure views from ledger state,
// and provides optional pre-trade risk checks for the order gateway.
package portfolio

import (
	"tradesim/internal/model"
)

// PnLSummary is the aggregate profit/loss view for one ledger, in paise.
type PnLSummary struct {
	RealizedPnL   int64 `json:"realized_pnl"`   // booked on open MIS rows
	UnrealizedPnL int64 `json:"unrealized_pnl"` // open positions + holdings at last price
	TotalPnL      int64 `json:"total_pnl"`
	Exposure      int64 `json:"exposure"` // abs value of open positions at last price
	OpenPositions int   `json:"open_positions"`
	Holdings      int   `json:"holdings"`
	Funds         model.Funds `json:"funds"`
}

// Compute derives the P&L summary from a ledger snapshot.
//
// Realized P&L on an open position row is the cash already banked by the
// closed portion: sell turnover minus buy turnover plus the cost of the
// remaining signed quantity. Rows removed at zero quantity have their
// realized P&L reflected in funds, not here.
func Compute(snap *model.LedgerSnapshot) PnLSummary {
	s := PnLSummary{Funds: snap.Funds}

	for i := range snap.Positions {
		p := &snap.Positions[i]
		s.OpenPositions++
		s.RealizedPnL += p.SellValue - p.BuyValue + p.Qty*p.AvgPrice
		s.UnrealizedPnL += p.UnrealizedPnL()

		exposure := p.Qty * p.LastPrice
		if exposure < 0 {
			exposure = -exposure
		}
		s.Exposure += exposure
	}

	for i := range snap.Holdings {
		h := &snap.Holdings[i]
		s.Holdings++
		s.UnrealizedPnL += h.CurrentValue() - h.Invested
		s.Exposure += h.CurrentValue()
	}

	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	return s
}
