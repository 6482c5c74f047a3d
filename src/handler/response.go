package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/model"
)

// apiError is the JSON shape of a structured rejection.
type apiError struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

type apiResponse struct {
	Success bool        `json:"success"`
	Error   *apiError   `json:"error,omitempty"`
	Order   interface{} `json:"order,omitempty"`
	Fund    interface{} `json:"fund,omitempty"`
	Orders  interface{} `json:"orders,omitempty"`
	Results interface{} `json:"results,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps a ledger rejection to an HTTP status; anything that is not
// a structured LedgerError becomes an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var lerr *model.LedgerError
	if !errors.As(err, &lerr) {
		logger.WithError(err).Error("unclassified error reached the handler")
		writeJSON(w, http.StatusInternalServerError, apiResponse{
			Success: false,
			Error:   &apiError{Code: model.ErrCodePersistence, Message: "Internal Server Error"},
		})
		return
	}

	status := http.StatusInternalServerError
	switch lerr.Code {
	case model.ErrCodeValidation:
		status = http.StatusBadRequest
	case model.ErrCodeNotFound:
		status = http.StatusNotFound
	case model.ErrCodeInsufficientFunds, model.ErrCodeOptionLimitExceeded:
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, apiResponse{
		Success: false,
		Error:   &apiError{Code: lerr.Code, Message: lerr.Message},
	})
}
