package risk

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
	"marginledger/src/utils"
)

// OptionDailyCapRatio caps the capital committed to option contracts each
// calendar day at 10% of the pool's nominal available limit. The cap is
// anchored to the nominal limit, not the remaining free capacity.
var OptionDailyCapRatio = decimal.NewFromFloat(0.10)

const (
	InstrumentKindEquity = "EQUITY"
	InstrumentKindFuture = "FUTURE"
	InstrumentKindOption = "OPTION"
)

var optionSuffixes = []string{"CE", "PE", "CALL", "PUT"}

// IsOptionInstrument decides whether the daily option cap applies. A typed
// contract kind from the instrument resolver wins; when the resolver could
// not classify, the symbol suffix convention (CE/PE/CALL/PUT) decides and
// the fallback is logged.
func IsOptionInstrument(kind, symbol string) bool {
	if kind != "" {
		return strings.EqualFold(kind, InstrumentKindOption)
	}

	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range optionSuffixes {
		if strings.HasSuffix(s, suffix) {
			logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"suffix": suffix,
			}).Debug("Instrument kind missing, classified as option by symbol suffix")
			return true
		}
	}
	return false
}

// rollover resets the pool's counter the first time it is touched on a new
// market calendar day.
func rollover(acct *model.FundAccount, intraday bool, now time.Time) {
	if intraday {
		if acct.OptionIntradayTradeDate == nil || !utils.SameMarketDay(*acct.OptionIntradayTradeDate, now) {
			today := utils.MarketDay(now)
			acct.OptionIntradayUsedToday = 0
			acct.OptionIntradayTradeDate = &today
		}
		return
	}
	if acct.OptionOvernightTradeDate == nil || !utils.SameMarketDay(*acct.OptionOvernightTradeDate, now) {
		today := utils.MarketDay(now)
		acct.OptionOvernightUsedToday = 0
		acct.OptionOvernightTradeDate = &today
	}
}

func poolState(acct *model.FundAccount, intraday bool) (base, usedToday float64) {
	if intraday {
		return acct.IntradayAvailableLimit, acct.OptionIntradayUsedToday
	}
	return acct.OvernightAvailableLimit, acct.OptionOvernightUsedToday
}

func evaluate(acct *model.FundAccount, product string, required float64, label string, now time.Time) error {
	intraday := product == model.ProductIntraday
	rollover(acct, intraday, now)

	base, usedToday := poolState(acct, intraday)
	dailyCap := decimal.NewFromFloat(base).Mul(OptionDailyCapRatio)
	proposed := decimal.NewFromFloat(usedToday).Add(decimal.NewFromFloat(required))

	// Reaching the cap exactly is allowed; only strictly exceeding denies.
	if proposed.GreaterThan(dailyCap) {
		logger.WithFields(map[string]interface{}{
			"broker_id":   acct.BrokerID,
			"customer_id": acct.CustomerID,
			"product":     product,
			"cap":         dailyCap.InexactFloat64(),
			"used_today":  usedToday,
			"required":    required,
		}).Warn("Option daily cap breached")
		return model.NewOptionLimitExceeded(label, dailyCap.InexactFloat64(), usedToday, required)
	}
	return nil
}

// Check evaluates a fresh option margin requirement against the daily cap,
// rolling the counter over first when the trade date is stale.
func Check(acct *model.FundAccount, product string, required float64, now time.Time) error {
	return evaluate(acct, product, required, "Required", now)
}

// CheckAdditional evaluates only the incremental margin of a modification.
func CheckAdditional(acct *model.FundAccount, product string, delta float64, now time.Time) error {
	return evaluate(acct, product, delta, "Additional Required", now)
}

// Commit adds a successfully reserved amount to the pool's daily counter.
// Only called after the ledger reservation succeeded.
func Commit(acct *model.FundAccount, product string, amount float64, now time.Time) {
	intraday := product == model.ProductIntraday
	rollover(acct, intraday, now)
	if intraday {
		acct.OptionIntradayUsedToday += amount
		return
	}
	acct.OptionOvernightUsedToday += amount
}

// Rollback subtracts a compensated amount from the pool's daily counter,
// floored at zero.
func Rollback(acct *model.FundAccount, product string, amount float64) {
	if product == model.ProductIntraday {
		acct.OptionIntradayUsedToday -= amount
		if acct.OptionIntradayUsedToday < 0 {
			acct.OptionIntradayUsedToday = 0
		}
		return
	}
	acct.OptionOvernightUsedToday -= amount
	if acct.OptionOvernightUsedToday < 0 {
		acct.OptionOvernightUsedToday = 0
	}
}
