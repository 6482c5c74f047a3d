// Package watchlist keeps the auto-exit trigger registry current. Stop-loss
// and target monitoring itself lives outside this core; placement and
// modification only have to keep the registry in sync.
package watchlist

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

// Entry is one watched order's trigger snapshot.
type Entry struct {
	OrderUID        string
	BrokerID        string
	CustomerID      string
	Symbol          string
	InstrumentToken string
	StopLoss        *float64
	Target          *float64
	UpdatedAt       time.Time
}

// WatchList is an in-process registry keyed by order business ID. It is an
// explicit service with its own lock, injected where needed rather than
// reached as ambient global state.
type WatchList struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewWatchList() *WatchList {
	return &WatchList{entries: make(map[string]Entry)}
}

func entryFromOrder(o *model.Order) Entry {
	return Entry{
		OrderUID:        o.OrderUID,
		BrokerID:        o.BrokerID,
		CustomerID:      o.CustomerID,
		Symbol:          o.Symbol,
		InstrumentToken: o.InstrumentToken,
		StopLoss:        o.StopLoss,
		Target:          o.Target,
		UpdatedAt:       time.Now(),
	}
}

// Register adds a freshly placed order to the watch list.
func (w *WatchList) Register(o *model.Order) {
	w.mu.Lock()
	w.entries[o.OrderUID] = entryFromOrder(o)
	w.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"order_uid": o.OrderUID,
		"symbol":    o.Symbol,
	}).Debug("Order registered on auto-exit watch list")
}

// UpdateTrigger refreshes the trigger snapshot after a modification. A
// CLOSED order is removed instead.
func (w *WatchList) UpdateTrigger(o *model.Order) {
	if !o.IsActive() {
		w.Remove(o.OrderUID)
		return
	}

	w.mu.Lock()
	w.entries[o.OrderUID] = entryFromOrder(o)
	w.mu.Unlock()
}

// Remove drops an order from the watch list.
func (w *WatchList) Remove(orderUID string) {
	w.mu.Lock()
	delete(w.entries, orderUID)
	w.mu.Unlock()
}

// Get returns the entry for an order, if watched.
func (w *WatchList) Get(orderUID string) (Entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[orderUID]
	return e, ok
}

// Len returns the number of watched orders.
func (w *WatchList) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}
