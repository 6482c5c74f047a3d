package controller

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

// ExitResult reports the outcome for one order of a bulk exit.
type ExitResult struct {
	OrderID        uint    `json:"order_id"`
	OrderUID       string  `json:"order_uid"`
	Success        bool    `json:"success"`
	ReleasedMargin float64 `json:"released_margin,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// ExitAll closes every OPEN intraday order for the customer in one
// best-effort batch. Orders fail independently; the fund account is saved
// once after the loop. When that final save fails, the per-order results are
// still returned alongside the error: the fund state is authoritative and
// the already-persisted orders must be reconciled against it.
func (c *OrderController) ExitAll(
	ctx context.Context,
	brokerID, customerID string,
	closePrices map[string]float64,
) ([]ExitResult, error) {

	if brokerID == "" || customerID == "" {
		return nil, model.NewValidationError("broker_id and customer_id are required")
	}

	// Candidates are fetched under the account lock so no close can land
	// between the snapshot and the releases below.
	unlock := c.locks.Lock(brokerID, customerID)
	defer unlock()

	orders, err := c.orders.FindOpenIntraday(ctx, brokerID, customerID)
	if err != nil {
		return nil, model.NewPersistenceFailure("order lookup", err)
	}
	if len(orders) == 0 {
		return []ExitResult{}, nil
	}

	acct, err := c.funds.Find(ctx, brokerID, customerID)
	if err != nil {
		return nil, model.NewPersistenceFailure("fund account lookup", err)
	}

	results := make([]ExitResult, 0, len(orders))

	if acct == nil {
		notFound := model.NewFundAccountNotFound(brokerID, customerID)
		for i := range orders {
			results = append(results, ExitResult{
				OrderID:  orders[i].ID,
				OrderUID: orders[i].OrderUID,
				Error:    notFound.Message,
			})
		}
		return results, notFound
	}

	now := c.now()

	for i := range orders {
		order := &orders[i]

		// An order whose margin already went back to the pool closes with a
		// zero release.
		release := 0.0
		if !order.MarginReleased {
			release = order.EntryMargin()
		}
		closedAt := now

		order.Status = model.OrderStatusClosed
		order.ClosedAt = &closedAt
		order.ClosedLTP = closePrices[order.OrderUID]
		order.CameFrom = model.CameFromOpen
		order.ExitReason = model.ExitReasonBulkExit
		order.MarginBlocked = 0
		order.MarginReleased = true

		acct.Release(true, release)

		if err := c.orders.Save(ctx, order); err != nil {
			// Undo the in-memory release so the final fund save stays honest.
			acct.Reserve(true, release)
			order.Status = model.OrderStatusOpen
			if release > 0 {
				order.MarginReleased = false
			}

			logger.WithFields(map[string]interface{}{
				"order_id": order.ID,
			}).WithError(err).Error("Bulk exit failed to close order")
			Capture(ctx, c.exceptions, serviceName, "order_controller", "ExitAll", "error", err,
				map[string]interface{}{"order_id": order.ID})

			results = append(results, ExitResult{
				OrderID:  order.ID,
				OrderUID: order.OrderUID,
				Error:    err.Error(),
			})
			continue
		}

		results = append(results, ExitResult{
			OrderID:        order.ID,
			OrderUID:       order.OrderUID,
			Success:        true,
			ReleasedMargin: release,
		})
	}

	if err := c.funds.Save(ctx, acct); err != nil {
		logger.WithFields(map[string]interface{}{
			"broker_id":   brokerID,
			"customer_id": customerID,
		}).WithError(err).Error("Bulk exit fund save failed, orders persisted ahead of the ledger")
		Capture(ctx, c.exceptions, serviceName, "order_controller", "ExitAll.fundSave", "fatal", err,
			map[string]interface{}{"broker_id": brokerID, "customer_id": customerID})
		return results, model.NewPersistenceFailure("fund account", err)
	}

	logger.WithFields(map[string]interface{}{
		"broker_id":   brokerID,
		"customer_id": customerID,
		"closed":      len(results),
	}).Info("Bulk exit completed")

	return results, nil
}
