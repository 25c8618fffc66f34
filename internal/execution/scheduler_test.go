package execution

import (
	"context"
	"testing"
	"time"

	"tradesim/internal/model"
)

func waitForStatus(t *testing.T, eng *testEngine, orderID, want string) model.Order {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o, ok := eng.coord.Ledger().Order(orderID); ok && o.Status == want {
			return o
		}
		time.Sleep(5 * time.Millisecond)
	}
	o, _ := eng.coord.Ledger().Order(orderID)
	t.Fatalf("timed out waiting for %s, last status %s", want, o.Status)
	return model.Order{}
}

func TestScheduler_DelayedFirstEvaluation(t *testing.T) {
	eng := newTestEngine(t, 0)
	eng.quotes.set("NSE", "2885", 100_00)
	sched := NewScheduler(eng.coord, time.Millisecond, 5*time.Millisecond, 1, nil)

	o := paperOrder("o1", model.SideBuy, model.OrderTypeMarket, 10, 0, 0)
	eng.coord.Submit(o)
	sched.Arm(o)

	got := waitForStatus(t, eng, "o1", model.StatusExecuted)
	if got.AvgPrice != 100_00 {
		t.Errorf("expected fill at 10000, got %d", got.AvgPrice)
	}

	deadline := time.Now().Add(time.Second)
	for sched.PendingCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sched.PendingCount(); got != 0 {
		t.Errorf("terminal order must be disarmed, %d still armed", got)
	}
}

func TestScheduler_TickDrivenReevaluation(t *testing.T) {
	eng := newTestEngine(t, 0)
	eng.quotes.set("NSE", "2885", 100_00)
	sched := NewScheduler(eng.coord, time.Millisecond, 2*time.Millisecond, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tickCh := make(chan model.Tick, 16)
	go sched.Run(ctx, tickCh)

	// Buy limit below the market: first evaluation leaves it OPEN.
	o := paperOrder("o1", model.SideBuy, model.OrderTypeLimit, 10, 95_00, 0)
	eng.coord.Submit(o)
	sched.Arm(o)

	time.Sleep(20 * time.Millisecond)
	if got, _ := eng.coord.Ledger().Order("o1"); got.Status != model.StatusOpen {
		t.Fatalf("expected OPEN before quote crossed, got %s", got.Status)
	}

	// Quote crosses the limit; the tick triggers re-evaluation.
	eng.quotes.set("NSE", "2885", 94_00)
	tickCh <- model.Tick{Token: "2885", Exchange: "NSE", Price: 94_00, TickTS: time.Now().UTC()}

	got := waitForStatus(t, eng, "o1", model.StatusExecuted)
	if got.AvgPrice != 95_00 {
		t.Errorf("expected limit-price fill at 9500, got %d", got.AvgPrice)
	}
}

func TestScheduler_TickForOtherInstrument_Ignored(t *testing.T) {
	eng := newTestEngine(t, 0)
	eng.quotes.set("NSE", "2885", 100_00)
	sched := NewScheduler(eng.coord, time.Hour, time.Hour, 1, nil) // timer never fires in-test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tickCh := make(chan model.Tick, 16)
	go sched.Run(ctx, tickCh)

	o := paperOrder("o1", model.SideBuy, model.OrderTypeMarket, 10, 0, 0)
	eng.coord.Submit(o)
	sched.Arm(o)

	tickCh <- model.Tick{Token: "11536", Exchange: "NSE", Price: 50_00, TickTS: time.Now().UTC()}
	time.Sleep(20 * time.Millisecond)

	if got, _ := eng.coord.Ledger().Order("o1"); got.Status != model.StatusOpen {
		t.Fatalf("tick for another instrument must not evaluate, got %s", got.Status)
	}
}

func TestScheduler_DisarmStopsEvaluation(t *testing.T) {
	eng := newTestEngine(t, 0)
	eng.quotes.set("NSE", "2885", 100_00)
	sched := NewScheduler(eng.coord, 30*time.Millisecond, 30*time.Millisecond, 1, nil)

	o := paperOrder("o1", model.SideBuy, model.OrderTypeMarket, 10, 0, 0)
	eng.coord.Submit(o)
	sched.Arm(o)
	sched.Disarm("o1")

	time.Sleep(60 * time.Millisecond)
	if got, _ := eng.coord.Ledger().Order("o1"); got.Status != model.StatusOpen {
		t.Fatalf("disarmed order must not evaluate, got %s", got.Status)
	}
	if sched.PendingCount() != 0 {
		t.Error("disarm left the order registered")
	}
}

func TestScheduler_Rearm_SkipsTerminalOrders(t *testing.T) {
	eng := newTestEngine(t, 0)
	sched := NewScheduler(eng.coord, time.Hour, time.Hour, 1, nil)

	open := paperOrder("o1", model.SideBuy, model.OrderTypeLimit, 10, 90_00, 0)
	executed := paperOrder("o2", model.SideBuy, model.OrderTypeMarket, 10, 0, 0)
	executed.Status = model.StatusExecuted
	cancelled := paperOrder("o3", model.SideBuy, model.OrderTypeMarket, 10, 0, 0)
	cancelled.Status = model.StatusCancelled

	sched.Rearm([]model.Order{open, executed, cancelled})
	if got := sched.PendingCount(); got != 1 {
		t.Errorf("expected only the pending order re-armed, got %d", got)
	}
}
