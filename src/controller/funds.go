package controller

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

// ResetIntradayUsage zeroes the customer's intraday usage and refreshes the
// cached free limit. The nightly maintenance trigger calls this once per
// funded account.
func (c *OrderController) ResetIntradayUsage(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error) {

	unlock := c.locks.Lock(brokerID, customerID)
	defer unlock()

	acct, err := c.funds.Find(ctx, brokerID, customerID)
	if err != nil {
		return nil, model.NewPersistenceFailure("fund account lookup", err)
	}
	if acct == nil {
		return nil, model.NewFundAccountNotFound(brokerID, customerID)
	}

	acct.ResetIntradayDaily()

	if err := c.funds.Save(ctx, acct); err != nil {
		Capture(ctx, c.exceptions, serviceName, "order_controller", "ResetIntradayUsage", "error", err,
			map[string]interface{}{"broker_id": brokerID, "customer_id": customerID})
		return nil, model.NewPersistenceFailure("fund account", err)
	}

	logger.WithFields(map[string]interface{}{
		"broker_id":   brokerID,
		"customer_id": customerID,
	}).Info("Intraday usage reset")

	return acct, nil
}
