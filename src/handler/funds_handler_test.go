package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"marginledger/src/model"
)

type mockFundGetter struct {
	acct        *model.FundAccount
	err         error
	gotBroker   string
	gotCustomer string
}

func (m *mockFundGetter) GetOrCreate(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error) {
	m.gotBroker = brokerID
	m.gotCustomer = customerID
	return m.acct, m.err
}

func TestGetFundsHandler_Success(t *testing.T) {
	mock := &mockFundGetter{acct: &model.FundAccount{
		ID: 1, BrokerID: "zerodha", CustomerID: "CUST1",
		IntradayAvailableLimit: 100000, IntradayUsedLimit: 2500,
	}}
	handler := GetFundsHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/funds?broker=zerodha&customer=CUST1", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if mock.gotBroker != "zerodha" || mock.gotCustomer != "CUST1" {
		t.Fatalf("expected query params forwarded, got %q/%q", mock.gotBroker, mock.gotCustomer)
	}

	var resp struct {
		Success bool               `json:"success"`
		Fund    *model.FundAccount `json:"fund"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Success || resp.Fund == nil || resp.Fund.IntradayUsedLimit != 2500 {
		t.Fatalf("unexpected response: %s", rr.Body.String())
	}
}

func TestGetFundsHandler_MissingParams(t *testing.T) {
	handler := GetFundsHandler(&mockFundGetter{})

	req := httptest.NewRequest(http.MethodGet, "/funds?broker=zerodha", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGetFundsHandler_RepoError(t *testing.T) {
	handler := GetFundsHandler(&mockFundGetter{err: assert.AnError})

	req := httptest.NewRequest(http.MethodGet, "/funds?broker=zerodha&customer=CUST1", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

type mockResetter struct {
	acct        *model.FundAccount
	err         error
	gotBroker   string
	gotCustomer string
}

func (m *mockResetter) ResetIntradayUsage(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error) {
	m.gotBroker = brokerID
	m.gotCustomer = customerID
	return m.acct, m.err
}

func TestResetFundsHandler_Success(t *testing.T) {
	mock := &mockResetter{acct: &model.FundAccount{
		ID: 1, BrokerID: "zerodha", CustomerID: "CUST1",
		IntradayAvailableLimit: 100000,
	}}
	handler := ResetFundsHandler(mock)

	body := strings.NewReader(`{"broker_id":"zerodha","customer_id":"CUST1"}`)
	req := httptest.NewRequest(http.MethodPost, "/funds/reset-intraday", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if mock.gotBroker != "zerodha" || mock.gotCustomer != "CUST1" {
		t.Fatalf("expected body params forwarded, got %q/%q", mock.gotBroker, mock.gotCustomer)
	}
}

func TestResetFundsHandler_MissingParams(t *testing.T) {
	handler := ResetFundsHandler(&mockResetter{})

	req := httptest.NewRequest(http.MethodPost, "/funds/reset-intraday", strings.NewReader(`{"broker_id":"zerodha"}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestResetFundsHandler_AccountMissing(t *testing.T) {
	handler := ResetFundsHandler(&mockResetter{err: model.NewFundAccountNotFound("zerodha", "CUST1")})

	req := httptest.NewRequest(http.MethodPost, "/funds/reset-intraday", strings.NewReader(`{"broker_id":"zerodha","customer_id":"CUST1"}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
