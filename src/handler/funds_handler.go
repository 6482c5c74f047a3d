package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

type fundAccountGetter interface {
	GetOrCreate(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error)
}

type intradayResetter interface {
	ResetIntradayUsage(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error)
}

// GetFundsHandler returns a handler that fetches the customer's fund
// snapshot, creating a zeroed account on first touch.
func GetFundsHandler(repo fundAccountGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brokerID := r.URL.Query().Get("broker")
		customerID := r.URL.Query().Get("customer")
		if brokerID == "" || customerID == "" {
			writeError(w, model.NewValidationError("broker and customer are required"))
			return
		}

		acct, err := repo.GetOrCreate(r.Context(), brokerID, customerID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch fund account")
			writeError(w, model.NewPersistenceFailure("fund account", err))
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Fund: acct})
	}
}

type resetFundsRequest struct {
	BrokerID   string `json:"broker_id"`
	CustomerID string `json:"customer_id"`
}

// ResetFundsHandler returns a handler for the nightly maintenance hook that
// zeroes a customer's intraday usage for the new session.
func ResetFundsHandler(ctrl intradayResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetFundsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, model.NewValidationError("invalid request body"))
			return
		}
		if req.BrokerID == "" || req.CustomerID == "" {
			writeError(w, model.NewValidationError("broker_id and customer_id are required"))
			return
		}

		acct, err := ctrl.ResetIntradayUsage(r.Context(), req.BrokerID, req.CustomerID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Fund: acct})
	}
}
