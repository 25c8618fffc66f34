package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradesim/internal/model"
	"tradesim/internal/portfolio"
)

// stubBroker implements model.OrderSubmitter.
type stubBroker struct {
	submitErr error
	cancelErr error
	submits   int
	cancels   int
}

func (b *stubBroker) Submit(ctx context.Context, o *model.Order) (string, error) {
	b.submits++
	if b.submitErr != nil {
		return "", b.submitErr
	}
	return "BRK-1", nil
}

func (b *stubBroker) Cancel(ctx context.Context, brokerOrderID string) error {
	b.cancels++
	return b.cancelErr
}

func newTestGateway(t *testing.T, mode string, broker model.OrderSubmitter) (*Gateway, *testEngine) {
	t.Helper()
	eng := newTestEngine(t, 0)
	sched := NewScheduler(eng.coord, time.Millisecond, 2*time.Millisecond, 7, nil)
	gw := NewGateway(GatewayConfig{
		Mode:          mode,
		Coordinator:   eng.coord,
		Scheduler:     sched,
		Quotes:        eng.quotes,
		Broker:        broker,
		BrokerTimeout: time.Second,
	})
	return gw, eng
}

func TestPlaceOrder_Validation(t *testing.T) {
	gw, eng := newTestGateway(t, model.ModePaper, nil)
	eng.quotes.set("NSE", "2885", 100_00)

	base := OrderRequest{
		Token:         "2885",
		Exchange:      "NSE",
		TradingSymbol: "RELIANCE-EQ",
		Side:          model.SideBuy,
		OrderType:     model.OrderTypeMarket,
		Product:       model.ProductMIS,
		Qty:           10,
	}

	cases := []struct {
		name    string
		mutate  func(r *OrderRequest)
		wantErr error
	}{
		{"zero qty", func(r *OrderRequest) { r.Qty = 0 }, model.ErrInvalidQuantity},
		{"negative qty", func(r *OrderRequest) { r.Qty = -5 }, model.ErrInvalidQuantity},
		{"limit without price", func(r *OrderRequest) { r.OrderType = model.OrderTypeLimit }, model.ErrMissingPrice},
		{"stop without trigger", func(r *OrderRequest) { r.OrderType = model.OrderTypeStop }, model.ErrMissingPrice},
		{"stop-market without trigger", func(r *OrderRequest) { r.OrderType = model.OrderTypeStopMarket }, model.ErrMissingPrice},
		{"unknown symbol", func(r *OrderRequest) { r.Token = "404" }, model.ErrSymbolNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := gw.PlaceOrder(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Free-form validation errors.
	for _, tc := range []struct {
		name   string
		mutate func(r *OrderRequest)
		substr string
	}{
		{"bad side", func(r *OrderRequest) { r.Side = "HOLD" }, "side"},
		{"bad product", func(r *OrderRequest) { r.Product = "NRML" }, "product"},
		{"bad order type", func(r *OrderRequest) { r.OrderType = "ICEBERG" }, "order type"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := gw.PlaceOrder(context.Background(), req)
			if err == nil || !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.substr, err)
			}
		})
	}

	// Nothing recorded for any rejected request.
	if got := len(eng.coord.Ledger().Orders()); got != 0 {
		t.Errorf("validation failures must not create orders, got %d", got)
	}
}

func TestPlaceOrder_Paper_RecordsOpenOrder(t *testing.T) {
	gw, eng := newTestGateway(t, model.ModePaper, nil)
	eng.quotes.set("NSE", "2885", 100_00)

	o, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token:         "2885",
		Exchange:      "NSE",
		TradingSymbol: "RELIANCE-EQ",
		Side:          model.SideBuy,
		OrderType:     model.OrderTypeLimit,
		Product:       model.ProductCNC,
		Qty:           10,
		Price:         99_00,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.OrderID == "" || !strings.HasPrefix(o.OrderID, model.ModePaper+"-") {
		t.Errorf("unexpected order id %q", o.OrderID)
	}
	if o.Status != model.StatusOpen || o.Mode != model.ModePaper {
		t.Errorf("unexpected order: %+v", o)
	}

	stored, ok := eng.coord.Ledger().Order(o.OrderID)
	if !ok || stored.Status != model.StatusOpen {
		t.Error("placed order not recorded as OPEN")
	}
}

func TestPlaceOrder_OrderIDsUnique(t *testing.T) {
	gw, eng := newTestGateway(t, model.ModePaper, nil)
	eng.quotes.set("NSE", "2885", 100_00)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		o, err := gw.PlaceOrder(context.Background(), OrderRequest{
			Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
			Side: model.SideBuy, OrderType: model.OrderTypeMarket,
			Product: model.ProductMIS, Qty: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if seen[o.OrderID] {
			t.Fatalf("duplicate order id %s", o.OrderID)
		}
		seen[o.OrderID] = true
	}
}

func TestPlaceOrder_Real_BrokerUnavailable(t *testing.T) {
	broker := &stubBroker{submitErr: errors.New("connect timeout")}
	gw, eng := newTestGateway(t, model.ModeReal, broker)
	eng.quotes.set("NSE", "2885", 100_00)

	_, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Qty: 10,
	})
	if !errors.Is(err, model.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
	if broker.submits != 1 {
		t.Errorf("expected 1 submit attempt, got %d", broker.submits)
	}
	// Failure is synchronous: no order record.
	if got := len(eng.coord.Ledger().Orders()); got != 0 {
		t.Errorf("failed submission must not create an order, got %d", got)
	}
}

func TestPlaceOrder_Real_RecordsBrokerOrderID(t *testing.T) {
	broker := &stubBroker{}
	gw, eng := newTestGateway(t, model.ModeReal, broker)
	eng.quotes.set("NSE", "2885", 100_00)

	o, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Qty: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.BrokerOrderID != "BRK-1" {
		t.Errorf("expected broker order id, got %q", o.BrokerOrderID)
	}
	stored, _ := eng.coord.Ledger().OrderByBrokerID("BRK-1")
	if stored.OrderID != o.OrderID {
		t.Error("order not findable by broker order id")
	}
}

func TestCancelOrder_Real_BrokerFirst(t *testing.T) {
	broker := &stubBroker{}
	gw, eng := newTestGateway(t, model.ModeReal, broker)
	eng.quotes.set("NSE", "2885", 100_00)

	o, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeLimit,
		Product: model.ProductMIS, Qty: 10, Price: 90_00,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Broker refuses: local record stays pending.
	broker.cancelErr = errors.New("session expired")
	if err := gw.CancelOrder(context.Background(), o.OrderID); !errors.Is(err, model.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
	stored, _ := eng.coord.Ledger().Order(o.OrderID)
	if !stored.IsPending() {
		t.Fatalf("local cancel must wait for broker accept, got %s", stored.Status)
	}

	// Broker accepts: local record cancelled.
	broker.cancelErr = nil
	if err := gw.CancelOrder(context.Background(), o.OrderID); err != nil {
		t.Fatal(err)
	}
	stored, _ = eng.coord.Ledger().Order(o.OrderID)
	if stored.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", stored.Status)
	}
}

func TestResetLedger_UnknownMode(t *testing.T) {
	gw, _ := newTestGateway(t, model.ModePaper, nil)
	if err := gw.ResetLedger("BACKTEST"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestResetLedger_DisarmsScheduler(t *testing.T) {
	gw, eng := newTestGateway(t, model.ModePaper, nil)
	eng.quotes.set("NSE", "2885", 100_00)

	// Limit far from the market stays armed.
	_, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeLimit,
		Product: model.ProductMIS, Qty: 10, Price: 1_00,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gw.sched.PendingCount() == 0 {
		t.Fatal("expected armed order")
	}

	if err := gw.ResetLedger(model.ModePaper); err != nil {
		t.Fatal(err)
	}
	if got := gw.sched.PendingCount(); got != 0 {
		t.Errorf("reset must disarm all orders, %d still armed", got)
	}
}

func TestPlaceOrder_RiskLimitRejected(t *testing.T) {
	gw, eng := newTestGateway(t, model.ModePaper, nil)
	gw.risk = portfolio.NewRiskManager(portfolio.RiskLimits{MaxOrderQty: 5})
	eng.quotes.set("NSE", "2885", 100_00)

	_, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Qty: 10,
	})
	if !errors.Is(err, model.ErrRiskLimit) {
		t.Fatalf("err = %v, want ErrRiskLimit", err)
	}
	// A risk rejection happens before the order exists.
	if got := len(eng.coord.Ledger().Orders()); got != 0 {
		t.Fatalf("expected no order records, got %d", got)
	}

	// Within the limit the same request goes through.
	o, err := gw.PlaceOrder(context.Background(), OrderRequest{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Qty: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != model.StatusOpen {
		t.Fatalf("status = %s, want OPEN", o.Status)
	}
}
