package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"marginledger/src/connectors"
	"marginledger/src/locks"
	"marginledger/src/model"
)

type memFundRepo struct {
	acct    *model.FundAccount
	findErr error
	saveErr error
	finds   int
	saves   int
}

func (m *memFundRepo) Find(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error) {
	m.finds++
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.acct == nil || m.acct.BrokerID != brokerID || m.acct.CustomerID != customerID {
		return nil, nil
	}
	return m.acct, nil
}

func (m *memFundRepo) Save(ctx context.Context, acct *model.FundAccount) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	return nil
}

type memOrderRepo struct {
	orders    map[uint]*model.Order
	nextID    uint
	createErr error
	saveErrBy map[uint]error

	// beforeFind runs ahead of each FindByID; tests use it to interleave a
	// concurrent writer between a lookup and a locked re-read.
	beforeFind func(id uint)
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[uint]*model.Order), saveErrBy: make(map[uint]error)}
}

func (m *memOrderRepo) Create(ctx context.Context, order *model.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	order.ID = m.nextID
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	if m.beforeFind != nil {
		m.beforeFind(id)
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (m *memOrderRepo) FindByOrderUID(ctx context.Context, uid string) (*model.Order, error) {
	for _, order := range m.orders {
		if order.OrderUID == uid {
			copied := *order
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memOrderRepo) FindOpenIntraday(ctx context.Context, brokerID, customerID string) ([]model.Order, error) {
	var out []model.Order
	for id := uint(1); id <= m.nextID; id++ {
		order, ok := m.orders[id]
		if !ok {
			continue
		}
		if order.BrokerID == brokerID && order.CustomerID == customerID &&
			order.Category == model.OrderCategoryIntraday && order.Status == model.OrderStatusOpen {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (m *memOrderRepo) Save(ctx context.Context, order *model.Order) error {
	if err := m.saveErrBy[order.ID]; err != nil {
		return err
	}
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

type memExceptionRepo struct {
	created []*model.Exception
}

func (m *memExceptionRepo) Create(ctx context.Context, exc *model.Exception) error {
	m.created = append(m.created, exc)
	return nil
}

type stubFeed struct {
	price float64
	err   error
}

func (s *stubFeed) GetLastPrice(ctx context.Context, token string) (float64, error) {
	return s.price, s.err
}

type stubRegistrar struct {
	registered []string
	updated    []string
}

func (s *stubRegistrar) Register(o *model.Order)      { s.registered = append(s.registered, o.OrderUID) }
func (s *stubRegistrar) UpdateTrigger(o *model.Order) { s.updated = append(s.updated, o.OrderUID) }

type stubSubscriber struct {
	tokens []string
	err    error
}

func (s *stubSubscriber) Subscribe(token string) error {
	s.tokens = append(s.tokens, token)
	return s.err
}

type stubResolver struct {
	instrument *connectors.Instrument
	err        error
}

func (s *stubResolver) Resolve(ctx context.Context, ref string) (*connectors.Instrument, error) {
	return s.instrument, s.err
}

type testEnv struct {
	ctrl       *OrderController
	funds      *memFundRepo
	orders     *memOrderRepo
	exceptions *memExceptionRepo
	feed       *stubFeed
	registrar  *stubRegistrar
	subscriber *stubSubscriber
	resolver   *stubResolver
	now        time.Time
}

func newTestEnv(acct *model.FundAccount) *testEnv {
	env := &testEnv{
		funds:      &memFundRepo{acct: acct},
		orders:     newMemOrderRepo(),
		exceptions: &memExceptionRepo{},
		feed:       &stubFeed{},
		registrar:  &stubRegistrar{},
		subscriber: &stubSubscriber{},
		resolver:   &stubResolver{},
		now:        time.Date(2026, 3, 11, 10, 15, 0, 0, time.UTC),
	}
	env.ctrl = NewOrderController(
		env.funds, env.orders, env.exceptions,
		env.feed, env.registrar, env.subscriber, env.resolver,
		locks.NewAccountLocks(),
	)
	env.ctrl.now = func() time.Time { return env.now }
	return env
}

func fundedAccount() *model.FundAccount {
	return &model.FundAccount{
		ID:                      1,
		BrokerID:                "zerodha",
		CustomerID:              "CUST1",
		IntradayAvailableLimit:  100000,
		OvernightAvailableLimit: 50000,
	}
}

func placeRequest() PlaceRequest {
	return PlaceRequest{
		BrokerID:     "zerodha",
		CustomerID:   "CUST1",
		SecurityID:   "SEC1",
		Symbol:       "RELIANCE",
		Side:         "BUY",
		Product:      "MIS",
		Quantity:     10,
		Price:        100,
		JobbingPrice: "0.05",
	}
}

func ledgerCode(t *testing.T, err error) model.ErrorCode {
	t.Helper()
	var lerr *model.LedgerError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	return lerr.Code
}

func TestPlaceReservesIntradayMargin(t *testing.T) {
	env := newTestEnv(fundedAccount())

	req := placeRequest()
	req.InstrumentToken = "TOK1"

	order, err := env.ctrl.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("expected placement to succeed, got %v", err)
	}

	if order.Status != model.OrderStatusOpen {
		t.Fatalf("expected OPEN status for MIS, got %q", order.Status)
	}
	if order.Category != model.OrderCategoryIntraday {
		t.Fatalf("expected INTRADAY category, got %q", order.Category)
	}
	if order.MarginBlocked != 1000 {
		t.Fatalf("expected 1000 blocked, got %v", order.MarginBlocked)
	}
	if env.funds.acct.IntradayUsedLimit != 1000 {
		t.Fatalf("expected intraday used 1000, got %v", env.funds.acct.IntradayUsedLimit)
	}
	if env.funds.acct.OvernightAvailableLimit != 50000 {
		t.Fatalf("overnight pool must be untouched for MIS, got %v", env.funds.acct.OvernightAvailableLimit)
	}
	if env.funds.saves != 1 {
		t.Fatalf("expected one fund save, got %d", env.funds.saves)
	}
	if order.OrderUID == "" {
		t.Fatal("expected a business id to be assigned")
	}
	if len(env.registrar.registered) != 1 {
		t.Fatalf("expected order registered on the watch list, got %d", len(env.registrar.registered))
	}
	if len(env.subscriber.tokens) != 1 || env.subscriber.tokens[0] != "TOK1" {
		t.Fatalf("expected tick subscription for TOK1, got %v", env.subscriber.tokens)
	}
}

func TestPlaceOvernightDrawsCashPool(t *testing.T) {
	env := newTestEnv(fundedAccount())

	req := placeRequest()
	req.Product = "NRML"
	req.Quantity = 100

	order, err := env.ctrl.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("expected placement to succeed, got %v", err)
	}

	if order.Status != "" {
		t.Fatalf("expected unset status for NRML, got %q", order.Status)
	}
	if order.Category != model.OrderCategoryOvernight {
		t.Fatalf("expected OVERNIGHT category, got %q", order.Category)
	}
	if env.funds.acct.OvernightAvailableLimit != 40000 {
		t.Fatalf("expected overnight pool drawn to 40000, got %v", env.funds.acct.OvernightAvailableLimit)
	}
	if env.funds.acct.IntradayUsedLimit != 0 {
		t.Fatalf("intraday pool must be untouched for NRML, got %v", env.funds.acct.IntradayUsedLimit)
	}
}

func TestPlaceInsufficientFunds(t *testing.T) {
	acct := fundedAccount()
	acct.IntradayUsedLimit = 99500
	env := newTestEnv(acct)

	req := placeRequest()

	_, err := env.ctrl.Place(context.Background(), req)
	if code := ledgerCode(t, err); code != model.ErrCodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %s", code)
	}

	var lerr *model.LedgerError
	errors.As(err, &lerr)
	if want := "Insufficient funds. Required: 1000.00, Available: 500.00"; lerr.Message != want {
		t.Fatalf("unexpected message: %q", lerr.Message)
	}

	if env.funds.acct.IntradayUsedLimit != 99500 {
		t.Fatalf("denied placement must not mutate the account, got %v", env.funds.acct.IntradayUsedLimit)
	}
	if env.funds.saves != 0 {
		t.Fatalf("denied placement must not save, got %d saves", env.funds.saves)
	}
	if len(env.orders.orders) != 0 {
		t.Fatal("denied placement must not create an order")
	}
}

func TestPlaceExactFreeLimitAllowed(t *testing.T) {
	acct := fundedAccount()
	acct.IntradayUsedLimit = 99000
	env := newTestEnv(acct)

	// Free limit is exactly 1000, same as the requirement.
	if _, err := env.ctrl.Place(context.Background(), placeRequest()); err != nil {
		t.Fatalf("expected placement at exact free limit to pass, got %v", err)
	}
}

func TestPlaceOptionDailyCap(t *testing.T) {
	env := newTestEnv(fundedAccount())

	req := placeRequest()
	req.Symbol = "NIFTY26SEP24000CE"
	req.Quantity = 60
	// 6000 margin against a 10000 cap.
	if _, err := env.ctrl.Place(context.Background(), req); err != nil {
		t.Fatalf("expected first option placement to pass, got %v", err)
	}
	if env.funds.acct.OptionIntradayUsedToday != 6000 {
		t.Fatalf("expected option counter 6000, got %v", env.funds.acct.OptionIntradayUsedToday)
	}

	// A second 6000 breaches the cap; nothing may change.
	usedBefore := env.funds.acct.IntradayUsedLimit
	_, err := env.ctrl.Place(context.Background(), req)
	if code := ledgerCode(t, err); code != model.ErrCodeOptionLimitExceeded {
		t.Fatalf("expected OPTION_LIMIT_EXCEEDED, got %s", code)
	}
	if env.funds.acct.OptionIntradayUsedToday != 6000 {
		t.Fatalf("denied placement must not bump the counter, got %v", env.funds.acct.OptionIntradayUsedToday)
	}
	if env.funds.acct.IntradayUsedLimit != usedBefore {
		t.Fatalf("denied placement must not reserve, got %v", env.funds.acct.IntradayUsedLimit)
	}
}

func TestPlaceFundAccountMissing(t *testing.T) {
	env := newTestEnv(nil)

	_, err := env.ctrl.Place(context.Background(), placeRequest())
	if code := ledgerCode(t, err); code != model.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestPlaceValidation(t *testing.T) {
	env := newTestEnv(fundedAccount())

	tests := []struct {
		name   string
		mutate func(*PlaceRequest)
	}{
		{"missing customer", func(r *PlaceRequest) { r.CustomerID = "" }},
		{"missing symbol", func(r *PlaceRequest) { r.Symbol = "" }},
		{"bad side", func(r *PlaceRequest) { r.Side = "LONG" }},
		{"bad product", func(r *PlaceRequest) { r.Product = "CNC" }},
		{"zero quantity", func(r *PlaceRequest) { r.Quantity = 0 }},
		{"negative quantity", func(r *PlaceRequest) { r.Quantity = -5 }},
		{"missing jobbing price", func(r *PlaceRequest) { r.JobbingPrice = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := placeRequest()
			tt.mutate(&req)

			_, err := env.ctrl.Place(context.Background(), req)
			if code := ledgerCode(t, err); code != model.ErrCodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %s", code)
			}
		})
	}
}

func TestPlaceNormalizesSideAndProduct(t *testing.T) {
	env := newTestEnv(fundedAccount())

	req := placeRequest()
	req.Side = " buy "
	req.Product = "mis"

	order, err := env.ctrl.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("expected normalized placement to pass, got %v", err)
	}
	if order.Side != model.OrderSideBuy || order.Product != model.ProductIntraday {
		t.Fatalf("expected normalized side/product, got %q/%q", order.Side, order.Product)
	}
}

func TestPlaceCompensatesOnOrderCreateFailure(t *testing.T) {
	env := newTestEnv(fundedAccount())
	env.orders.createErr = fmt.Errorf("insert failed")

	req := placeRequest()
	req.Symbol = "NIFTY26SEP24000CE"

	_, err := env.ctrl.Place(context.Background(), req)
	if code := ledgerCode(t, err); code != model.ErrCodePersistence {
		t.Fatalf("expected PERSISTENCE_FAILURE, got %s", code)
	}

	if env.funds.acct.IntradayUsedLimit != 0 {
		t.Fatalf("expected reservation compensated, got used %v", env.funds.acct.IntradayUsedLimit)
	}
	if env.funds.acct.OptionIntradayUsedToday != 0 {
		t.Fatalf("expected option counter rolled back, got %v", env.funds.acct.OptionIntradayUsedToday)
	}
	if env.funds.saves != 2 {
		t.Fatalf("expected reserve save plus compensation save, got %d", env.funds.saves)
	}
	if len(env.exceptions.created) == 0 {
		t.Fatal("expected the failure to be captured")
	}
	if len(env.registrar.registered) != 0 {
		t.Fatal("failed placement must not reach the watch list")
	}
}

func TestPlaceTakesInstrumentSnapshot(t *testing.T) {
	expiry := time.Date(2026, 3, 26, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(fundedAccount())
	env.resolver.instrument = &connectors.Instrument{
		TradableID: "TOK9",
		Kind:       "OPTION",
		LotSize:    50,
		Expiry:     &expiry,
	}

	req := placeRequest()
	req.Symbol = "NIFTY26SEP24000"

	order, err := env.ctrl.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("expected placement to succeed, got %v", err)
	}

	if order.InstrumentKind != "OPTION" {
		t.Fatalf("expected resolved kind OPTION, got %q", order.InstrumentKind)
	}
	if order.LotSize != 50 || order.InstrumentToken != "TOK9" {
		t.Fatalf("expected resolved lot size and token, got %d/%q", order.LotSize, order.InstrumentToken)
	}
	if order.SelectedExpiry == nil || !order.SelectedExpiry.Equal(expiry) {
		t.Fatalf("expected selected expiry snapshot, got %v", order.SelectedExpiry)
	}
	// The resolved kind routes the placement through the option cap.
	if env.funds.acct.OptionIntradayUsedToday != 1000 {
		t.Fatalf("expected option counter 1000, got %v", env.funds.acct.OptionIntradayUsedToday)
	}
}

func TestPlaceResolverFailureDegrades(t *testing.T) {
	env := newTestEnv(fundedAccount())
	env.resolver.err = fmt.Errorf("resolver down")

	if _, err := env.ctrl.Place(context.Background(), placeRequest()); err != nil {
		t.Fatalf("resolver outage must not block placement, got %v", err)
	}
}
