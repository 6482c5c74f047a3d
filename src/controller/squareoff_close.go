package controller

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

// SquareOffClose closes an order on behalf of the scheduler. The close price
// is the live quote for the order's instrument, degrading to the order's
// last known price when the feed is unavailable or returns zero; the close
// never aborts on a price-fetch failure.
//
// Fund release runs only for "Open" provenance (an active intraday order
// whose margin is still live). HOLD square-offs never touch the ledger (the
// capital stayed committed at the HOLD transition) and OVERNIGHT square-offs
// deliberately leave the overnight pool to the manual close path. The
// MarginReleased marker makes a second close attempt a provable no-op.
func (c *OrderController) SquareOffClose(ctx context.Context, order *model.Order, provenance string) error {

	if order == nil {
		return model.NewValidationError("order is required")
	}
	if !order.IsActive() {
		// Already closed, never revisited.
		return nil
	}

	unlock := c.locks.Lock(order.BrokerID, order.CustomerID)
	defer unlock()

	// The candidate snapshot may predate the lock; the copy read under the
	// lock is authoritative. A close that landed in between makes this pass
	// a no-op instead of a second release.
	fresh, err := c.orders.FindByID(ctx, order.ID)
	if err != nil {
		return model.NewPersistenceFailure("order lookup", err)
	}
	if fresh == nil || !fresh.IsActive() {
		return nil
	}
	*order = *fresh

	price := c.resolveClosePrice(ctx, order)
	now := c.now()

	order.Status = model.OrderStatusClosed
	order.ClosedAt = &now
	order.ClosedLTP = price
	order.CameFrom = provenance
	order.ExitReason = model.ExitReasonAutoSquareOff

	release := order.EntryMargin()
	order.MarginBlocked = 0

	if provenance == model.CameFromOpen && !order.MarginReleased {
		acct, err := c.funds.Find(ctx, order.BrokerID, order.CustomerID)
		if err != nil {
			return model.NewPersistenceFailure("fund account lookup", err)
		}
		if acct == nil {
			return model.NewFundAccountNotFound(order.BrokerID, order.CustomerID)
		}

		acct.Release(order.IsIntradayProduct(), release)
		order.MarginReleased = true

		// Ledger first, order second: the order must never read CLOSED with
		// the release not yet durable.
		if err := c.funds.Save(ctx, acct); err != nil {
			Capture(ctx, c.exceptions, serviceName, "order_controller", "SquareOffClose", "error", err,
				map[string]interface{}{"order_id": order.ID})
			return model.NewPersistenceFailure("fund account", err)
		}
	}

	if err := c.orders.Save(ctx, order); err != nil {
		logger.WithFields(map[string]interface{}{
			"order_id":   order.ID,
			"provenance": provenance,
		}).WithError(err).Error("Square-off order save failed after fund save, state requires reconciliation")
		Capture(ctx, c.exceptions, serviceName, "order_controller", "SquareOffClose.inconsistency", "fatal", err,
			map[string]interface{}{"order_id": order.ID, "provenance": provenance})
		return model.NewPersistenceFailure("order", err)
	}

	c.registrar.UpdateTrigger(order)

	logger.WithFields(map[string]interface{}{
		"order_id":   order.ID,
		"provenance": provenance,
		"closed_ltp": price,
	}).Info("Order squared off")

	return nil
}

// resolveClosePrice fetches the live quote, falling back to the order's last
// known price. The close price is never left at a hard zero when any prior
// price exists.
func (c *OrderController) resolveClosePrice(ctx context.Context, order *model.Order) float64 {
	if c.feed != nil && order.InstrumentToken != "" {
		price, err := c.feed.GetLastPrice(ctx, order.InstrumentToken)
		if err == nil && price > 0 {
			return price
		}
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"token":    order.InstrumentToken,
			}).WithError(err).Warn("Live price unavailable, using last known price")
		}
	}
	return order.Price
}
