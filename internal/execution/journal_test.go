package execution

import (
	"path/filepath"
	"testing"
	"time"

	"tradesim/internal/ledger"
	"tradesim/internal/model"
)

func testFill(orderID, mode, side string, qty, price int64) ledger.Fill {
	return ledger.Fill{
		OrderID:       orderID,
		Token:         "2885",
		Exchange:      "NSE",
		TradingSymbol: "RELIANCE-EQ",
		Side:          side,
		Product:       model.ProductMIS,
		Mode:          mode,
		Qty:           qty,
		Price:         price,
		FilledAt:      time.Now().UTC(),
	}
}

func TestJournal_RecordAndQuery(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	if err := j.RecordFill(testFill("p1", model.ModePaper, model.SideBuy, 10, 100_00)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.RecordFill(testFill("p2", model.ModePaper, model.SideSell, 10, 110_00)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.RecordFill(testFill("r1", model.ModeReal, model.SideBuy, 5, 100_00)); err != nil {
		t.Fatalf("record: %v", err)
	}

	trades, err := j.GetTrades(model.ModePaper, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 paper trades, got %d", len(trades))
	}
	// Newest first.
	if trades[0].OrderID != "p2" || trades[1].OrderID != "p1" {
		t.Errorf("unexpected order: %s, %s", trades[0].OrderID, trades[1].OrderID)
	}
	if trades[1].Value != 10*100_00 {
		t.Errorf("expected value %d, got %d", 10*100_00, trades[1].Value)
	}
}

func TestJournal_LimitApplies(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		if err := j.RecordFill(testFill("o", model.ModePaper, model.SideBuy, 1, 100_00)); err != nil {
			t.Fatal(err)
		}
	}

	trades, err := j.GetTrades(model.ModePaper, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 3 {
		t.Errorf("expected limit of 3, got %d", len(trades))
	}
}
