package controller

import (
	"context"
	"strconv"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
	"marginledger/src/risk"
)

// ModifyRequest is a partial update; nil fields are left untouched.
type ModifyRequest struct {
	Quantity   *float64   `json:"quantity,omitempty"`
	Price      *float64   `json:"price,omitempty"`
	Status     *string    `json:"status,omitempty"`
	StopLoss   *float64   `json:"stop_loss,omitempty"`
	Target     *float64   `json:"target,omitempty"`
	ClosedLTP  *float64   `json:"closed_ltp,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CameFrom   *string    `json:"came_from,omitempty"`
	ExitReason *string    `json:"exit_reason,omitempty"`
}

func (c *OrderController) findOrder(ctx context.Context, ref string) (*model.Order, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		order, err := c.orders.FindByID(ctx, uint(id))
		if err != nil {
			return nil, model.NewPersistenceFailure("order lookup", err)
		}
		if order != nil {
			return order, nil
		}
	}

	// Fall back to the business identifier.
	order, err := c.orders.FindByOrderUID(ctx, ref)
	if err != nil {
		return nil, model.NewPersistenceFailure("order lookup", err)
	}
	return order, nil
}

// Modify applies a partial update to an order. Quantity increases reserve
// incremental margin; status transitions route margin release per the prior
// category and status. The fund account is persisted before the order, never
// the reverse.
func (c *OrderController) Modify(ctx context.Context, ref string, changes ModifyRequest) (*model.Order, error) {

	if ref == "" {
		return nil, model.NewValidationError("order reference is required")
	}

	order, err := c.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewOrderNotFound(ref)
	}

	unlock := c.locks.Lock(order.BrokerID, order.CustomerID)
	defer unlock()

	// The pre-lock lookup only located the order; re-read it under the lock
	// so the release guard never runs on a stale copy.
	order, err = c.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, model.NewPersistenceFailure("order lookup", err)
	}
	if order == nil {
		return nil, model.NewOrderNotFound(ref)
	}

	acct, err := c.funds.Find(ctx, order.BrokerID, order.CustomerID)
	if err != nil {
		return nil, model.NewPersistenceFailure("fund account lookup", err)
	}
	if acct == nil {
		return nil, model.NewFundAccountNotFound(order.BrokerID, order.CustomerID)
	}

	now := c.now()
	fundTouched := false

	effectivePrice := order.Price
	if changes.Price != nil {
		effectivePrice = *changes.Price
	}

	// Quantity increase on a live order reserves the incremental margin.
	if changes.Quantity != nil && *changes.Quantity > order.Quantity && order.Status != model.OrderStatusClosed {
		oldMargin := order.EntryMargin()
		newMargin := marginFor(effectivePrice, *changes.Quantity)
		delta := newMargin - oldMargin

		if delta > 0 {
			intraday := order.IsIntradayProduct()
			freeLimit := acct.FreeLimit(intraday)
			if delta > freeLimit {
				return nil, model.NewInsufficientFunds(delta, freeLimit)
			}

			if risk.IsOptionInstrument(order.InstrumentKind, order.Symbol) {
				if err := risk.CheckAdditional(acct, order.Product, delta, now); err != nil {
					return nil, err
				}
				risk.Commit(acct, order.Product, delta, now)
			}

			acct.Reserve(intraday, delta)
			order.MarginBlocked = newMargin
			fundTouched = true

			logger.WithFields(map[string]interface{}{
				"order_id":   order.ID,
				"old_margin": oldMargin,
				"new_margin": newMargin,
				"delta":      delta,
			}).Info("Incremental margin reserved for quantity increase")
		}
	}

	if changes.Quantity != nil {
		order.Quantity = *changes.Quantity
	}
	if changes.Price != nil {
		order.Price = *changes.Price
	}

	if changes.Status != nil {
		newStatus := strings.ToUpper(strings.TrimSpace(*changes.Status))
		priorStatus := order.Status

		switch {
		case newStatus == model.OrderStatusClosed && priorStatus == model.OrderStatusOpen &&
			order.Category == model.OrderCategoryIntraday:
			// Plain intraday close: give the session pool its margin back.
			if !order.MarginReleased {
				acct.Release(true, order.EntryMargin())
				order.MarginReleased = true
				fundTouched = true
			}
			order.MarginBlocked = 0

		case newStatus == model.OrderStatusHold && priorStatus == model.OrderStatusOpen &&
			order.Category == model.OrderCategoryIntraday:
			// Parking a position keeps the capital committed in the ledger;
			// only the order's recorded margin is cleared.
			order.MarginBlocked = 0

		case newStatus == model.OrderStatusClosed && priorStatus != model.OrderStatusClosed:
			// General close, covering overnight and hold paths. Margin from a
			// HOLD order routes back to the intraday pool it was drawn from.
			if !order.MarginReleased {
				intraday := order.IsIntradayProduct() || priorStatus == model.OrderStatusHold
				acct.Release(intraday, order.EntryMargin())
				order.MarginReleased = true
				fundTouched = true
			}
			order.MarginBlocked = 0
		}

		order.Status = newStatus

		if newStatus == model.OrderStatusClosed {
			if order.ClosedAt == nil && changes.ClosedAt == nil {
				closedAt := now
				order.ClosedAt = &closedAt
			}
			if order.CameFrom == "" && changes.CameFrom == nil {
				order.CameFrom = provenanceFor(priorStatus, order.Category)
			}
		}
	}

	if changes.StopLoss != nil {
		order.StopLoss = changes.StopLoss
	}
	if changes.Target != nil {
		order.Target = changes.Target
	}
	if changes.ClosedLTP != nil {
		order.ClosedLTP = *changes.ClosedLTP
	}
	if changes.ClosedAt != nil {
		order.ClosedAt = changes.ClosedAt
	}
	if changes.CameFrom != nil {
		order.CameFrom = *changes.CameFrom
	}
	if changes.ExitReason != nil {
		order.ExitReason = *changes.ExitReason
	}

	if fundTouched {
		if err := c.funds.Save(ctx, acct); err != nil {
			Capture(ctx, c.exceptions, serviceName, "order_controller", "Modify", "error", err,
				map[string]interface{}{"order_id": order.ID})
			return nil, model.NewPersistenceFailure("fund account", err)
		}
	}

	if err := c.orders.Save(ctx, order); err != nil {
		// The fund mutation is already durable; this window must be
		// reconciled out-of-band, never silently retried.
		logger.WithFields(map[string]interface{}{
			"order_id":     order.ID,
			"fund_touched": fundTouched,
		}).WithError(err).Error("Order save failed after fund save, state requires reconciliation")
		Capture(ctx, c.exceptions, serviceName, "order_controller", "Modify.inconsistency", "fatal", err,
			map[string]interface{}{"order_id": order.ID, "fund_touched": fundTouched})
		return nil, model.NewPersistenceFailure("order", err)
	}

	// Refresh (or drop, when CLOSED) the auto-exit trigger registration.
	c.registrar.UpdateTrigger(order)

	return order, nil
}

// provenanceFor derives the close provenance tag from the state the order
// left behind.
func provenanceFor(priorStatus, category string) string {
	switch {
	case priorStatus == model.OrderStatusHold:
		return model.CameFromHold
	case category == model.OrderCategoryOvernight:
		return model.CameFromOvernight
	default:
		return model.CameFromOpen
	}
}
