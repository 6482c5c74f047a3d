package watchlist

import (
	"testing"

	"marginledger/src/model"
)

func ptrFloat(v float64) *float64 { return &v }

func TestWatchListRegisterAndGet(t *testing.T) {
	wl := NewWatchList()

	wl.Register(&model.Order{
		OrderUID: "uid-1",
		Symbol:   "RELIANCE",
		StopLoss: ptrFloat(95),
		Target:   ptrFloat(110),
	})

	entry, ok := wl.Get("uid-1")
	if !ok {
		t.Fatal("expected entry to be watched")
	}
	if entry.Symbol != "RELIANCE" || *entry.StopLoss != 95 || *entry.Target != 110 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if wl.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", wl.Len())
	}
}

func TestWatchListUpdateTriggerRefreshes(t *testing.T) {
	wl := NewWatchList()

	order := &model.Order{OrderUID: "uid-1", Status: model.OrderStatusOpen, StopLoss: ptrFloat(95)}
	wl.Register(order)

	order.StopLoss = ptrFloat(97)
	wl.UpdateTrigger(order)

	entry, _ := wl.Get("uid-1")
	if *entry.StopLoss != 97 {
		t.Fatalf("expected refreshed stop loss 97, got %v", *entry.StopLoss)
	}
}

func TestWatchListUpdateTriggerRemovesClosed(t *testing.T) {
	wl := NewWatchList()

	order := &model.Order{OrderUID: "uid-1", Status: model.OrderStatusOpen}
	wl.Register(order)

	order.Status = model.OrderStatusClosed
	wl.UpdateTrigger(order)

	if _, ok := wl.Get("uid-1"); ok {
		t.Fatal("expected closed order removed from the watch list")
	}
	if wl.Len() != 0 {
		t.Fatalf("expected empty watch list, got %d", wl.Len())
	}
}

func TestWatchListRemove(t *testing.T) {
	wl := NewWatchList()
	wl.Register(&model.Order{OrderUID: "uid-1"})
	wl.Remove("uid-1")

	if wl.Len() != 0 {
		t.Fatalf("expected empty watch list, got %d", wl.Len())
	}
}
