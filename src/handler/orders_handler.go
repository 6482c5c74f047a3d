package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"marginledger/src/controller"
	"marginledger/src/model"
	"marginledger/src/repository"
)

type orderPlacer interface {
	Place(ctx context.Context, req controller.PlaceRequest) (*model.Order, error)
}

type orderModifier interface {
	Modify(ctx context.Context, ref string, changes controller.ModifyRequest) (*model.Order, error)
}

type bulkExiter interface {
	ExitAll(ctx context.Context, brokerID, customerID string, closePrices map[string]float64) ([]controller.ExitResult, error)
}

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

// PlaceOrderHandler returns a handler that places a new order.
func PlaceOrderHandler(ctrl orderPlacer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req controller.PlaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, model.NewValidationError("invalid request body"))
			return
		}

		order, err := ctrl.Place(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, apiResponse{Success: true, Order: order})
	}
}

// ModifyOrderHandler returns a handler that applies a partial order update.
// The path parameter accepts the internal numeric id or the business id.
func ModifyOrderHandler(ctrl orderModifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "id")

		var changes controller.ModifyRequest
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			writeError(w, model.NewValidationError("invalid request body"))
			return
		}

		order, err := ctrl.Modify(r.Context(), ref, changes)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Order: order})
	}
}

type exitAllRequest struct {
	BrokerID    string             `json:"broker_id"`
	CustomerID  string             `json:"customer_id"`
	ClosePrices map[string]float64 `json:"close_prices"`
}

// ExitAllHandler returns a handler that closes every open intraday order for
// a customer. Partial failure is reported per order, not as a request error.
func ExitAllHandler(ctrl bulkExiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exitAllRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, model.NewValidationError("invalid request body"))
			return
		}

		results, err := ctrl.ExitAll(r.Context(), req.BrokerID, req.CustomerID, req.ClosePrices)
		if err != nil {
			// Per-item results still matter when the final fund save failed.
			if results != nil {
				logger.WithError(err).Error("bulk exit finished with an overall failure")
				code, message := model.ErrCodePersistence, err.Error()
				var lerr *model.LedgerError
				if errors.As(err, &lerr) {
					code, message = lerr.Code, lerr.Message
				}
				writeJSON(w, http.StatusInternalServerError, apiResponse{
					Success: false,
					Error:   &apiError{Code: code, Message: message},
					Results: results,
				})
				return
			}
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Results: results})
	}
}

// SearchOrdersHandler returns a handler that lists a customer's orders with
// optional status/category filters and pagination.
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brokerID := r.URL.Query().Get("broker")
		customerID := r.URL.Query().Get("customer")
		if brokerID == "" || customerID == "" {
			writeError(w, model.NewValidationError("broker and customer are required"))
			return
		}

		options := repository.OrderSearchOptions{
			BrokerID:   brokerID,
			CustomerID: customerID,
		}

		if status := r.URL.Query().Get("status"); status != "" {
			options.Status = &status
		}
		if category := r.URL.Query().Get("category"); category != "" {
			options.Category = &category
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsed, err := strconv.Atoi(pageParam)
			if err != nil || parsed <= 0 {
				writeError(w, model.NewValidationError("invalid page"))
				return
			}
			page = parsed
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsed, err := strconv.Atoi(sizeParam)
			if err != nil || parsed <= 0 {
				writeError(w, model.NewValidationError("invalid pageSize"))
				return
			}
			pageSize = parsed
		}

		options.Limit = pageSize
		options.Offset = (page - 1) * pageSize

		orders, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			writeError(w, model.NewPersistenceFailure("order search", err))
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Orders: orders})
	}
}
