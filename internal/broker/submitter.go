package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"tradesim/internal/model"
)

// orderTypeToSmartAPI maps engine order types to Angel One order types.
var orderTypeToSmartAPI = map[string]string{
	model.OrderTypeMarket:     "MARKET",
	model.OrderTypeLimit:      "LIMIT",
	model.OrderTypeStop:       "STOPLOSS_LIMIT",
	model.OrderTypeStopMarket: "STOPLOSS_MARKET",
}

// productToSmartAPI maps engine products to Angel One product types.
var productToSmartAPI = map[string]string{
	model.ProductMIS: "INTRADAY",
	model.ProductCNC: "DELIVERY",
}

// SubmitterConfig holds credentials for the live broker session.
type SubmitterConfig struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
	Timeout    time.Duration
	Debug      bool
}

// Submitter implements model.OrderSubmitter against Angel One. It logs in
// lazily with a fresh TOTP and re-logs-in after a session expiry.
type Submitter struct {
	cfg    SubmitterConfig
	client *Client

	mu       sync.Mutex
	loggedIn bool
}

// NewSubmitter creates a live-broker order submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	return &Submitter{
		cfg: cfg,
		client: NewClient(ClientConfig{
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Debug:   cfg.Debug,
		}),
	}
}

// Submit forwards the order to the broker and returns the broker order id.
func (s *Submitter) Submit(ctx context.Context, o *model.Order) (string, error) {
	if err := s.ensureSession(ctx); err != nil {
		return "", err
	}

	variety := "NORMAL"
	if o.NeedsTrigger() {
		variety = "STOPLOSS"
	}
	params := map[string]any{
		"variety":         variety,
		"tradingsymbol":   o.TradingSymbol,
		"symboltoken":     o.Token,
		"transactiontype": o.Side,
		"exchange":        o.Exchange,
		"ordertype":       orderTypeToSmartAPI[o.OrderType],
		"producttype":     productToSmartAPI[o.Product],
		"duration":        "DAY",
		"quantity":        o.Qty,
	}
	if o.Price > 0 {
		params["price"] = paiseToRupees(o.Price)
	}
	if o.TriggerPrice > 0 {
		params["triggerprice"] = paiseToRupees(o.TriggerPrice)
	}

	brokerID, err := s.client.PlaceOrder(ctx, params)
	if err != nil {
		s.invalidate()
		return "", fmt.Errorf("broker submit: %w", err)
	}
	log.Printf("[broker] order placed: %s %s qty=%d broker_id=%s", o.Side, o.TradingSymbol, o.Qty, brokerID)
	return brokerID, nil
}

// Cancel requests cancellation of a previously submitted order.
func (s *Submitter) Cancel(ctx context.Context, brokerOrderID string) error {
	if err := s.ensureSession(ctx); err != nil {
		return err
	}
	if err := s.client.CancelOrder(ctx, brokerOrderID, "NORMAL"); err != nil {
		s.invalidate()
		return fmt.Errorf("broker cancel: %w", err)
	}
	return nil
}

// Funds mirrors available/used cash from the broker RMS limits, in paise.
func (s *Submitter) Funds(ctx context.Context) (available, used int64, err error) {
	if err := s.ensureSession(ctx); err != nil {
		return 0, 0, err
	}
	return s.client.RMSLimit(ctx)
}

// ensureSession logs in with a fresh TOTP if no session is active.
func (s *Submitter) ensureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		return nil
	}

	code, err := totp.GenerateCode(s.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generation: %w", err)
	}
	if err := s.client.GenerateSession(ctx, s.cfg.ClientCode, s.cfg.Password, code); err != nil {
		return err
	}
	s.loggedIn = true
	return nil
}

// invalidate drops the session so the next call re-logs-in.
func (s *Submitter) invalidate() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
}

func paiseToRupees(p int64) string {
	return fmt.Sprintf("%d.%02d", p/100, p%100)
}
