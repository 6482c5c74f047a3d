package utils

import (
	"time"

	logger "github.com/sirupsen/logrus"
)

var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		logger.WithError(err).Warn("Failed to load Asia/Kolkata, using fixed IST offset")
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// MarketLocation returns the exchange calendar timezone (Asia/Kolkata).
func MarketLocation() *time.Location {
	return marketLocation
}

// MarketDay truncates t to midnight of its market calendar day.
func MarketDay(t time.Time) time.Time {
	local := t.In(marketLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, marketLocation)
}

// SameMarketDay reports whether a and b fall on the same market calendar day.
func SameMarketDay(a, b time.Time) bool {
	return MarketDay(a).Equal(MarketDay(b))
}

// IsTradingDay reports whether t is a regular trading day. Exchange holidays
// are out of scope here; weekends are not.
func IsTradingDay(t time.Time) bool {
	switch t.In(marketLocation).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// ExpiryDue reports whether the contract expiry falls on or before today's
// market calendar day.
func ExpiryDue(expiry, now time.Time) bool {
	return !MarketDay(expiry).After(MarketDay(now))
}
