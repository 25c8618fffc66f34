package model

import "time"

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types. STOP and STOP_MARKET map to Angel One SL / SL-M at the
// broker boundary.
const (
	OrderTypeMarket     = "MARKET"
	OrderTypeLimit      = "LIMIT"
	OrderTypeStop       = "STOP"
	OrderTypeStopMarket = "STOP_MARKET"
)

// Product types.
const (
	ProductMIS = "MIS" // intraday, can go net short
	ProductCNC = "CNC" // delivery, quantity never negative
)

// Trading modes.
const (
	ModePaper = "PAPER"
	ModeReal  = "REAL"
)

// Order statuses.
const (
	StatusOpen           = "OPEN"
	StatusTriggerPending = "TRIGGER_PENDING" // STOP/STOP_MARKET waiting on trigger
	StatusExecuted       = "EXECUTED"
	StatusCancelled      = "CANCELLED"
	StatusRejected       = "REJECTED"
)

// Order represents a single trade intent.
// All prices are int64 in paise (1 INR = 100 paise) to avoid float drift.
type Order struct {
	OrderID       string     `json:"order_id"`
	BrokerOrderID string     `json:"broker_order_id,omitempty"` // REAL mode only
	Token         string     `json:"token"`
	Exchange      string     `json:"exchange"`
	TradingSymbol string     `json:"trading_symbol"`
	Side          string     `json:"side"`       // BUY, SELL
	OrderType     string     `json:"order_type"` // MARKET, LIMIT, STOP, STOP_MARKET
	Product       string     `json:"product"`    // MIS, CNC
	Mode          string     `json:"mode"`       // PAPER, REAL
	Qty           int64      `json:"qty"`
	Price         int64      `json:"price"`         // limit price in paise (0 for market)
	TriggerPrice  int64      `json:"trigger_price"` // trigger price in paise
	Status        string     `json:"status"`
	FilledQty     int64      `json:"filled_qty"`
	AvgPrice      int64      `json:"avg_price"` // fill average in paise, set once at execution
	Reason        string     `json:"reason,omitempty"`
	PlacedAt      time.Time  `json:"placed_at"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusExecuted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsPending reports whether the order may still be evaluated or cancelled.
func (o *Order) IsPending() bool {
	return o.Status == StatusOpen || o.Status == StatusTriggerPending
}

// NeedsTrigger reports whether the order type waits on a trigger price.
func (o *Order) NeedsTrigger() bool {
	return o.OrderType == OrderTypeStop || o.OrderType == OrderTypeStopMarket
}

// Key returns the instrument key for this order: "exchange:token".
func (o *Order) Key() string {
	return o.Exchange + ":" + o.Token
}
