package portfolio

import (
	"strings"
	"testing"

	"tradesim/internal/model"
)

// stubLedger implements LedgerView with fixed state.
type stubLedger struct {
	positions []model.Position
	holdings  []model.Holding
	funds     model.Funds
}

func (s *stubLedger) Positions() []model.Position { return s.positions }
func (s *stubLedger) Holdings() []model.Holding   { return s.holdings }
func (s *stubLedger) Funds() model.Funds          { return s.funds }

func riskOrder(qty int64) model.Order {
	return model.Order{
		Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ",
		Side: model.SideBuy, Product: model.ProductMIS, Qty: qty,
	}
}

func TestRiskManager_ZeroLimitsDisableAllChecks(t *testing.T) {
	rm := NewRiskManager(RiskLimits{})
	led := &stubLedger{}

	if err := rm.Check(riskOrder(1_000_000), 100_000_00, led); err != nil {
		t.Fatalf("zero limits must pass everything, got %v", err)
	}
}

func TestRiskManager_MaxOrderQty(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxOrderQty: 100})
	led := &stubLedger{}

	if err := rm.Check(riskOrder(100), 10000, led); err != nil {
		t.Fatalf("qty at limit should pass: %v", err)
	}
	err := rm.Check(riskOrder(101), 10000, led)
	if err == nil {
		t.Fatal("qty above limit should fail")
	}
	if !strings.Contains(err.Error(), "qty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRiskManager_MaxOrderValue(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxOrderValue: 500_000_00})
	led := &stubLedger{}

	// 100 * 5000.00 = 500000.00, exactly at limit.
	if err := rm.Check(riskOrder(100), 5000_00, led); err != nil {
		t.Fatalf("value at limit should pass: %v", err)
	}
	if err := rm.Check(riskOrder(101), 5000_00, led); err == nil {
		t.Fatal("value above limit should fail")
	}
}

func TestRiskManager_MaxOpenPositions(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxOpenPositions: 1})
	led := &stubLedger{
		positions: []model.Position{{Token: "11536", Exchange: "NSE", Qty: 5, AvgPrice: 5000}},
	}

	// New instrument while at the limit is rejected.
	if err := rm.Check(riskOrder(10), 10000, led); err == nil {
		t.Fatal("new position beyond limit should fail")
	}

	// Adding to an existing position is always allowed.
	existing := riskOrder(10)
	existing.Token = "11536"
	if err := rm.Check(existing, 10000, led); err != nil {
		t.Fatalf("add to existing position should pass: %v", err)
	}

	// CNC orders don't open MIS positions, so the check does not apply.
	cnc := riskOrder(10)
	cnc.Product = model.ProductCNC
	if err := rm.Check(cnc, 10000, led); err != nil {
		t.Fatalf("CNC order should bypass position-count check: %v", err)
	}
}

func TestRiskManager_MaxExposure(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxExposure: 10_000_00})
	led := &stubLedger{
		// Short 10 @ 300.00 counts as absolute 3000.00 exposure.
		positions: []model.Position{{Token: "11536", Exchange: "NSE", Qty: -10, LastPrice: 300_00}},
		// 20 shares at 100.00 per share: 2000.00.
		holdings: []model.Holding{{Token: "3045", Exchange: "NSE", Qty: 20, LastPrice: 100_00}},
	}

	// Existing exposure = 3000.00 + 2000.00 = 5000.00.
	// Order value 5000.00 brings total exactly to the limit: pass.
	if err := rm.Check(riskOrder(50), 100_00, led); err != nil {
		t.Fatalf("exposure at limit should pass: %v", err)
	}
	// One more rupee of turnover breaches it.
	if err := rm.Check(riskOrder(51), 100_00, led); err == nil {
		t.Fatal("exposure beyond limit should fail")
	}
}

func TestRiskManager_SetLimitsTakesEffect(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxOrderQty: 10})
	led := &stubLedger{}

	if err := rm.Check(riskOrder(50), 100, led); err == nil {
		t.Fatal("expected rejection under initial limits")
	}

	rm.SetLimits(RiskLimits{MaxOrderQty: 100})
	if err := rm.Check(riskOrder(50), 100, led); err != nil {
		t.Fatalf("expected pass after raising limit: %v", err)
	}
	if got := rm.Limits().MaxOrderQty; got != 100 {
		t.Fatalf("Limits().MaxOrderQty = %d, want 100", got)
	}
}
