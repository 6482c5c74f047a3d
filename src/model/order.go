package model

import "time"

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	ProductIntraday  = "MIS"
	ProductOvernight = "NRML"

	OrderStatusOpen   = "OPEN"
	OrderStatusHold   = "HOLD"
	OrderStatusClosed = "CLOSED"

	OrderCategoryIntraday  = "INTRADAY"
	OrderCategoryOvernight = "OVERNIGHT"
	OrderCategoryHolding   = "HOLDING"

	// Provenance tags recorded at close time, indicating which prior state
	// the order transitioned from. Downstream release routing keys off them.
	CameFromOpen      = "Open"
	CameFromOvernight = "Overnight"
	CameFromHold      = "Hold"

	ExitReasonAutoSquareOff = "AUTO_SQUARE_OFF"
	ExitReasonBulkExit      = "BULK_EXIT"
)

// Order represents a customer's trade request together with the margin the
// ledger currently holds against it.
type Order struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	OrderUID string `gorm:"size:40;uniqueIndex" json:"order_uid"`

	BrokerID   string `gorm:"size:60;index:idx_orders_broker_customer" json:"broker_id"`
	CustomerID string `gorm:"size:60;index:idx_orders_broker_customer" json:"customer_id"`

	SecurityID      string `gorm:"size:60" json:"security_id"`
	Symbol          string `gorm:"size:60;index" json:"symbol"`
	Segment         string `gorm:"size:20" json:"segment"`
	InstrumentToken string `gorm:"size:60" json:"instrument_token"`
	// Contract kind supplied by the instrument resolver (EQUITY, FUTURE,
	// OPTION). Empty when the resolver could not classify; the symbol
	// suffix heuristic applies then.
	InstrumentKind string `gorm:"size:20" json:"instrument_kind,omitempty"`

	Side         string  `gorm:"size:10;not null" json:"side"`
	Product      string  `gorm:"size:10;not null" json:"product"`
	Quantity     float64 `json:"quantity"`
	LotSize      int     `json:"lot_size"`
	Price        float64 `json:"price"`
	JobbingPrice string  `gorm:"size:30" json:"jobbing_price"`

	StopLoss *float64 `json:"stop_loss,omitempty"`
	Target   *float64 `json:"target,omitempty"`

	MarginBlocked float64 `json:"margin_blocked"`
	// MarginReleased marks that the ledger reservation behind this order has
	// been returned. Distinct from MarginBlocked == 0: a HOLD transition
	// zeroes MarginBlocked while the ledger still holds the capital. Any
	// release path must check this flag first so a second close attempt is a
	// provable no-op.
	MarginReleased bool `gorm:"not null;default:false" json:"margin_released"`

	// Status is empty for an active NRML order that was never explicitly
	// opened; OPEN, HOLD and empty all count as active.
	Status   string `gorm:"size:20;index" json:"status,omitempty"`
	Category string `gorm:"size:20;index" json:"category"`

	// Expiry from the selected-instrument snapshot taken at placement.
	// SelectedExpiry wins over Expiry when both are set.
	SelectedExpiry *time.Time `json:"selected_expiry,omitempty"`
	Expiry         *time.Time `json:"expiry,omitempty"`

	ClosedLTP  float64    `json:"closed_ltp"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CameFrom   string     `gorm:"size:20" json:"came_from,omitempty"`
	ExitReason string     `gorm:"size:40" json:"exit_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName controls the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsActive reports whether the order can still be closed. OPEN, HOLD and an
// unset status are all active; a CLOSED order is never revisited.
func (o *Order) IsActive() bool {
	return o.Status != OrderStatusClosed
}

// IsIntradayProduct reports whether margin for this order is drawn from the
// intraday used/available pool rather than the overnight cash pool.
func (o *Order) IsIntradayProduct() bool {
	return o.Product == ProductIntraday
}

// EntryMargin returns the margin currently blocked, falling back to the
// entry notional when the blocked amount was never recorded.
func (o *Order) EntryMargin() float64 {
	if o.MarginBlocked > 0 {
		return o.MarginBlocked
	}
	return o.Price * o.Quantity
}

// EffectiveExpiry returns the instrument-snapshot expiry when present,
// otherwise the dedicated expiry field. Nil when the order has no expiry.
func (o *Order) EffectiveExpiry() *time.Time {
	if o.SelectedExpiry != nil {
		return o.SelectedExpiry
	}
	return o.Expiry
}

// DefaultCategory derives the order category from the product at creation
// time. The category is fixed afterwards and is the sole routing key for
// square-off eligibility.
func DefaultCategory(product string) string {
	if product == ProductIntraday {
		return OrderCategoryIntraday
	}
	return OrderCategoryOvernight
}
