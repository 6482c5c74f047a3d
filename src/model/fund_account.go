package model

import "time"

// FundAccount holds a customer's trading capital for a single broker.
// Intraday margin is tracked as a used/available pair so released margin is
// reusable within the session; the overnight pool is cash-style and is drawn
// down directly when an order is placed.
type FundAccount struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	BrokerID   string `gorm:"size:60;not null;uniqueIndex:idx_fund_broker_customer" json:"broker_id"`
	CustomerID string `gorm:"size:60;not null;uniqueIndex:idx_fund_broker_customer" json:"customer_id"`

	NetAvailableBalance float64 `json:"net_available_balance"`

	IntradayAvailableLimit float64 `json:"intraday_available_limit"`
	IntradayUsedLimit      float64 `json:"intraday_used_limit"`
	IntradayFreeLimit      float64 `json:"intraday_free_limit"`

	OvernightAvailableLimit float64 `json:"overnight_available_limit"`

	// Daily option exposure counters, one per pool. The trade date decides
	// when a counter rolls over to a fresh day (market calendar).
	OptionIntradayUsedToday  float64    `json:"option_intraday_used_today"`
	OptionIntradayTradeDate  *time.Time `json:"option_intraday_trade_date,omitempty"`
	OptionOvernightUsedToday float64    `json:"option_overnight_used_today"`
	OptionOvernightTradeDate *time.Time `json:"option_overnight_trade_date,omitempty"`

	// Version supports conditional writes so concurrent mutations of the
	// same account cannot silently lose an update.
	Version uint `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName controls the exact table name for fund accounts.
func (FundAccount) TableName() string {
	return "fund_accounts"
}

// FreeLimit returns the capital still available for new reservations.
// Intraday nets the used limit off the ceiling; the overnight pool is the
// free limit itself.
func (a *FundAccount) FreeLimit(intraday bool) float64 {
	if intraday {
		return a.IntradayAvailableLimit - a.IntradayUsedLimit
	}
	return a.OvernightAvailableLimit
}

// Reserve blocks margin against the selected pool.
func (a *FundAccount) Reserve(intraday bool, amount float64) {
	if intraday {
		a.IntradayUsedLimit += amount
		return
	}
	a.OvernightAvailableLimit -= amount
}

// Release returns previously blocked margin to the selected pool. The
// intraday used limit is clamped at zero so a racing rollback can never
// leave it negative; the overnight pool is clamped after the credit for the
// same reason.
func (a *FundAccount) Release(intraday bool, amount float64) {
	if intraday {
		a.IntradayUsedLimit -= amount
		if a.IntradayUsedLimit < 0 {
			a.IntradayUsedLimit = 0
		}
		return
	}
	a.OvernightAvailableLimit += amount
	if a.OvernightAvailableLimit < 0 {
		a.OvernightAvailableLimit = 0
	}
}

// ResetIntradayDaily zeroes intraday usage and refreshes the cached free
// limit. Invoked by the nightly maintenance trigger.
func (a *FundAccount) ResetIntradayDaily() {
	a.IntradayUsedLimit = 0
	a.IntradayFreeLimit = a.IntradayAvailableLimit
}
