package execution

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/portfolio"
)

// OrderRequest is the caller-facing shape of a new order.
type OrderRequest struct {
	Token         string `json:"token"`
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"trading_symbol"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Product       string `json:"product"`
	Qty           int64  `json:"qty"`
	Price         int64  `json:"price"`         // paise, required for LIMIT
	TriggerPrice  int64  `json:"trigger_price"` // paise, required for STOP/STOP_MARKET
}

// GatewayConfig wires the order gateway. Broker is required only in REAL
// mode; Risk is optional pre-trade limit checking.
type GatewayConfig struct {
	Mode          string
	Coordinator   *Coordinator
	Scheduler     *Scheduler
	Quotes        model.QuoteSource
	Broker        model.OrderSubmitter
	BrokerTimeout time.Duration
	Risk          *portfolio.RiskManager
	Metrics       *metrics.Metrics
}

// Gateway validates order requests and routes them: paper orders go to
// the coordinator for simulated execution, real orders to the external
// broker. Both paths produce the same Order record shape and run through
// the same ledger mutation function, so ledger invariants have a single
// source of truth.
type Gateway struct {
	mode          string
	coord         *Coordinator
	sched         *Scheduler
	quotes        model.QuoteSource
	broker        model.OrderSubmitter
	brokerTimeout time.Duration
	risk          *portfolio.RiskManager
	met           *metrics.Metrics
	seq           atomic.Int64
}

// NewGateway creates an order gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.BrokerTimeout == 0 {
		cfg.BrokerTimeout = 7 * time.Second
	}
	return &Gateway{
		mode:          cfg.Mode,
		coord:         cfg.Coordinator,
		sched:         cfg.Scheduler,
		quotes:        cfg.Quotes,
		broker:        cfg.Broker,
		brokerTimeout: cfg.BrokerTimeout,
		risk:          cfg.Risk,
		met:           cfg.Metrics,
	}
}

// PlaceOrder validates the request and dispatches it. Validation and
// broker-submission failures are returned synchronously and create no
// Order record; everything after that is reported asynchronously through
// order events.
func (g *Gateway) PlaceOrder(ctx context.Context, req OrderRequest) (model.Order, error) {
	if err := g.validate(req); err != nil {
		return model.Order{}, err
	}

	now := time.Now().UTC()
	o := model.Order{
		OrderID:       g.nextOrderID(now),
		Token:         req.Token,
		Exchange:      req.Exchange,
		TradingSymbol: req.TradingSymbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Product:       req.Product,
		Mode:          g.mode,
		Qty:           req.Qty,
		Price:         req.Price,
		TriggerPrice:  req.TriggerPrice,
		Status:        model.StatusOpen,
		PlacedAt:      now,
	}

	if g.risk != nil {
		if err := g.risk.Check(o, g.refPrice(o), g.coord.Ledger()); err != nil {
			return model.Order{}, fmt.Errorf("%w: %v", model.ErrRiskLimit, err)
		}
	}

	if g.mode == model.ModeReal {
		brokerID, err := g.submitToBroker(ctx, &o)
		if err != nil {
			if g.met != nil {
				g.met.BrokerErrors.Inc()
			}
			return model.Order{}, fmt.Errorf("%w: %v", model.ErrBrokerUnavailable, err)
		}
		o.BrokerOrderID = brokerID
		g.coord.Submit(o)
	} else {
		g.coord.Submit(o)
		g.sched.Arm(o)
	}

	if g.met != nil {
		g.met.OrdersPlaced.WithLabelValues(g.mode, o.OrderType).Inc()
	}
	log.Printf("[gateway] placed %s order %s: %s %s qty=%d type=%s product=%s",
		g.mode, o.OrderID, o.Side, o.Key(), o.Qty, o.OrderType, o.Product)
	return o, nil
}

// CancelOrder cancels a pending order. In REAL mode the broker is asked
// first; the local record is cancelled only if the broker accepts.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	if g.mode == model.ModeReal {
		o, ok := g.coord.Ledger().Order(orderID)
		if ok && o.BrokerOrderID != "" && o.IsPending() {
			cctx, cancel := context.WithTimeout(ctx, g.brokerTimeout)
			err := g.broker.Cancel(cctx, o.BrokerOrderID)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrBrokerUnavailable, err)
			}
		}
	}

	if err := g.coord.Cancel(orderID); err != nil {
		return err
	}
	if g.sched != nil {
		g.sched.Disarm(orderID)
	}
	return nil
}

// ResetLedger wipes a mode's ledger to the fresh funds baseline.
func (g *Gateway) ResetLedger(mode string) error {
	if mode != model.ModePaper && mode != model.ModeReal {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if g.sched != nil && mode == g.coord.Mode() {
		g.sched.DisarmAll()
	}
	return g.coord.Reset(mode)
}

// HandleBrokerReport feeds an out-of-band broker fill/reject report into
// the common ledger mutation path.
func (g *Gateway) HandleBrokerReport(rep BrokerReport) error {
	return g.coord.ApplyExternalFill(rep)
}

func (g *Gateway) validate(req OrderRequest) error {
	if req.Qty <= 0 {
		return model.ErrInvalidQuantity
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("unsupported side %q", req.Side)
	}
	if req.Product != model.ProductMIS && req.Product != model.ProductCNC {
		return fmt.Errorf("unsupported product %q", req.Product)
	}

	switch req.OrderType {
	case model.OrderTypeMarket:
	case model.OrderTypeLimit:
		if req.Price <= 0 {
			return model.ErrMissingPrice
		}
	case model.OrderTypeStop, model.OrderTypeStopMarket:
		if req.TriggerPrice <= 0 {
			return model.ErrMissingPrice
		}
	default:
		return fmt.Errorf("unsupported order type %q", req.OrderType)
	}

	if _, ok := g.quotes.Price(req.Exchange, req.Token); !ok {
		return fmt.Errorf("%w: %s:%s", model.ErrSymbolNotFound, req.Exchange, req.Token)
	}
	return nil
}

// refPrice picks the price risk checks value the order at: the limit or
// trigger price when set, otherwise the latest quote.
func (g *Gateway) refPrice(o model.Order) int64 {
	if o.Price > 0 {
		return o.Price
	}
	if o.TriggerPrice > 0 {
		return o.TriggerPrice
	}
	quote, _ := g.quotes.Price(o.Exchange, o.Token)
	return quote
}

func (g *Gateway) submitToBroker(ctx context.Context, o *model.Order) (string, error) {
	if g.broker == nil {
		return "", fmt.Errorf("no broker configured")
	}
	start := time.Now()
	bctx, cancel := context.WithTimeout(ctx, g.brokerTimeout)
	defer cancel()

	brokerID, err := g.broker.Submit(bctx, o)
	if g.met != nil {
		g.met.BrokerSubmitDur.Observe(time.Since(start).Seconds())
	}
	return brokerID, err
}

// nextOrderID builds a process-unique order id, e.g. "PAPER-1717..-42".
// The timestamp component keeps ids unique across restarts.
func (g *Gateway) nextOrderID(now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", g.mode, now.UnixNano(), g.seq.Add(1))
}
