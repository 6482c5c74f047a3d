package controller

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"marginledger/src/connectors"
	"marginledger/src/locks"
	"marginledger/src/model"
	"marginledger/src/repository"
	"marginledger/src/risk"
	"marginledger/src/watchlist"
)

const serviceName = "margin_ledger"

type fundAccountRepository interface {
	Find(ctx context.Context, brokerID, customerID string) (*model.FundAccount, error)
	Save(ctx context.Context, acct *model.FundAccount) error
}

type orderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	FindByOrderUID(ctx context.Context, uid string) (*model.Order, error)
	FindOpenIntraday(ctx context.Context, brokerID, customerID string) ([]model.Order, error)
	Save(ctx context.Context, order *model.Order) error
}

type exceptionRepository interface {
	Create(ctx context.Context, exc *model.Exception) error
}

type priceFeed interface {
	GetLastPrice(ctx context.Context, instrumentToken string) (float64, error)
}

type triggerRegistrar interface {
	Register(o *model.Order)
	UpdateTrigger(o *model.Order)
}

type tickSubscriber interface {
	Subscribe(instrumentToken string) error
}

type instrumentResolver interface {
	Resolve(ctx context.Context, symbolOrToken string) (*connectors.Instrument, error)
}

// OrderController orchestrates the order lifecycle: it is the only writer of
// Order.MarginBlocked and Order.Status, and every fund mutation it makes runs
// under the account's lock.
type OrderController struct {
	funds       fundAccountRepository
	orders      orderRepository
	exceptions  exceptionRepository
	feed        priceFeed
	registrar   triggerRegistrar
	subscriber  tickSubscriber
	instruments instrumentResolver
	locks       *locks.AccountLocks

	now func() time.Time
}

// NewOrderController wires an order controller from explicit collaborators.
func NewOrderController(
	funds fundAccountRepository,
	orders orderRepository,
	exceptions exceptionRepository,
	feed priceFeed,
	registrar triggerRegistrar,
	subscriber tickSubscriber,
	instruments instrumentResolver,
	accountLocks *locks.AccountLocks,
) *OrderController {
	return &OrderController{
		funds:       funds,
		orders:      orders,
		exceptions:  exceptions,
		feed:        feed,
		registrar:   registrar,
		subscriber:  subscriber,
		instruments: instruments,
		locks:       accountLocks,
		now:         time.Now,
	}
}

// NewDefaultOrderController wires the controller to the production
// repositories and connectors.
func NewDefaultOrderController() *OrderController {
	return NewOrderController(
		repository.NewFundAccountRepository(),
		repository.NewOrderRepository(),
		repository.NewExceptionRepository(),
		connectors.NewMarketFeedClientFromConfig(),
		watchlist.NewWatchList(),
		connectors.NewTickSubscriberFromConfig(),
		connectors.NewInstrumentClientFromConfig(),
		locks.NewAccountLocks(),
	)
}

// PlaceRequest carries a new order placement.
type PlaceRequest struct {
	BrokerID   string `json:"broker_id"`
	CustomerID string `json:"customer_id"`

	SecurityID      string `json:"security_id"`
	Symbol          string `json:"symbol"`
	Segment         string `json:"segment"`
	InstrumentToken string `json:"instrument_token"`
	InstrumentKind  string `json:"instrument_kind"`

	Side         string  `json:"side"`
	Product      string  `json:"product"`
	Quantity     float64 `json:"quantity"`
	LotSize      int     `json:"lot_size"`
	Price        float64 `json:"price"`
	JobbingPrice string  `json:"jobbing_price"`

	StopLoss *float64   `json:"stop_loss,omitempty"`
	Target   *float64   `json:"target,omitempty"`
	Expiry   *time.Time `json:"expiry,omitempty"`
}

func (r *PlaceRequest) normalize() {
	r.Side = strings.ToUpper(strings.TrimSpace(r.Side))
	r.Product = strings.ToUpper(strings.TrimSpace(r.Product))
}

func (r *PlaceRequest) validate() error {
	if r.BrokerID == "" || r.CustomerID == "" {
		return model.NewValidationError("broker_id and customer_id are required")
	}
	if r.SecurityID == "" || r.Symbol == "" {
		return model.NewValidationError("security_id and symbol are required")
	}
	if r.Side != model.OrderSideBuy && r.Side != model.OrderSideSell {
		return model.NewValidationError("side must be BUY or SELL, got %q", r.Side)
	}
	if r.Product != model.ProductIntraday && r.Product != model.ProductOvernight {
		return model.NewValidationError("product must be MIS or NRML, got %q", r.Product)
	}
	if r.Quantity <= 0 || math.IsNaN(r.Quantity) || math.IsInf(r.Quantity, 0) {
		return model.NewValidationError("quantity must be a positive finite number")
	}
	if strings.TrimSpace(r.JobbingPrice) == "" {
		return model.NewValidationError("jobbing_price is required")
	}
	return nil
}

// resolveInstrument fills contract details the request left blank from the
// reference-data service. Best effort: a nil result leaves the request as is.
func (c *OrderController) resolveInstrument(ctx context.Context, req *PlaceRequest) *connectors.Instrument {
	if c.instruments == nil {
		return nil
	}

	ref := req.InstrumentToken
	if ref == "" {
		ref = req.Symbol
	}

	instrument, err := c.instruments.Resolve(ctx, ref)
	if err != nil {
		logger.WithField("ref", ref).WithError(err).Warn("Instrument resolution failed")
		return nil
	}
	if instrument == nil {
		return nil
	}

	if req.InstrumentKind == "" {
		req.InstrumentKind = instrument.Kind
	}
	if req.LotSize == 0 {
		req.LotSize = instrument.LotSize
	}
	if req.InstrumentToken == "" {
		req.InstrumentToken = instrument.TradableID
	}

	return instrument
}

func marginFor(price, quantity float64) float64 {
	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		InexactFloat64()
}

// Place validates a placement, reserves margin against the customer's fund
// account, and persists the order. The reservation is at-most-once: a failed
// order persist compensates the ledger before the error is surfaced, so a
// rejected order never leaves stranded blocked margin.
func (c *OrderController) Place(ctx context.Context, req PlaceRequest) (*model.Order, error) {

	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	// Instrument snapshot before the account lock; a resolver outage never
	// blocks placement, the symbol suffix heuristic covers classification.
	selected := c.resolveInstrument(ctx, &req)

	unlock := c.locks.Lock(req.BrokerID, req.CustomerID)
	defer unlock()

	acct, err := c.funds.Find(ctx, req.BrokerID, req.CustomerID)
	if err != nil {
		return nil, model.NewPersistenceFailure("fund account lookup", err)
	}
	if acct == nil {
		// Placement requires pre-existing funding; no lazy create here.
		return nil, model.NewFundAccountNotFound(req.BrokerID, req.CustomerID)
	}

	now := c.now()
	requiredMargin := marginFor(req.Price, req.Quantity)
	intraday := req.Product == model.ProductIntraday
	isOption := risk.IsOptionInstrument(req.InstrumentKind, req.Symbol)

	if isOption {
		if err := risk.Check(acct, req.Product, requiredMargin, now); err != nil {
			return nil, err
		}
	}

	freeLimit := acct.FreeLimit(intraday)
	if requiredMargin > freeLimit {
		return nil, model.NewInsufficientFunds(requiredMargin, freeLimit)
	}

	acct.Reserve(intraday, requiredMargin)
	if isOption {
		risk.Commit(acct, req.Product, requiredMargin, now)
	}

	if err := c.funds.Save(ctx, acct); err != nil {
		// Nothing durable happened yet; surface without compensation.
		Capture(ctx, c.exceptions, serviceName, "order_controller", "Place", "error", err,
			map[string]interface{}{"broker_id": req.BrokerID, "customer_id": req.CustomerID})
		return nil, model.NewPersistenceFailure("fund account", err)
	}

	status := ""
	if intraday {
		status = model.OrderStatusOpen
	}

	order := &model.Order{
		OrderUID:        uuid.NewString(),
		BrokerID:        req.BrokerID,
		CustomerID:      req.CustomerID,
		SecurityID:      req.SecurityID,
		Symbol:          req.Symbol,
		Segment:         req.Segment,
		InstrumentToken: req.InstrumentToken,
		InstrumentKind:  req.InstrumentKind,
		Side:            req.Side,
		Product:         req.Product,
		Quantity:        req.Quantity,
		LotSize:         req.LotSize,
		Price:           req.Price,
		JobbingPrice:    req.JobbingPrice,
		StopLoss:        req.StopLoss,
		Target:          req.Target,
		Expiry:          req.Expiry,
		MarginBlocked:   requiredMargin,
		Status:          status,
		Category:        model.DefaultCategory(req.Product),
	}
	if selected != nil {
		order.SelectedExpiry = selected.Expiry
	}

	if err := c.orders.Create(ctx, order); err != nil {
		// Compensate: the reservation must not outlive the failed order.
		acct.Release(intraday, requiredMargin)
		if isOption {
			risk.Rollback(acct, req.Product, requiredMargin)
		}
		if saveErr := c.funds.Save(ctx, acct); saveErr != nil {
			logger.WithFields(map[string]interface{}{
				"broker_id":   req.BrokerID,
				"customer_id": req.CustomerID,
				"margin":      requiredMargin,
			}).WithError(saveErr).Error("Compensation save failed, blocked margin stranded")
			Capture(ctx, c.exceptions, serviceName, "order_controller", "Place.compensate", "fatal", saveErr,
				map[string]interface{}{"broker_id": req.BrokerID, "customer_id": req.CustomerID, "margin": requiredMargin})
		}
		Capture(ctx, c.exceptions, serviceName, "order_controller", "Place", "error", err,
			map[string]interface{}{"broker_id": req.BrokerID, "customer_id": req.CustomerID})
		return nil, model.NewPersistenceFailure("order", err)
	}

	logger.WithFields(map[string]interface{}{
		"order_id":       order.ID,
		"order_uid":      order.OrderUID,
		"symbol":         order.Symbol,
		"product":        order.Product,
		"margin_blocked": order.MarginBlocked,
		"intraday_used":  acct.IntradayUsedLimit,
	}).Info("Order placed")

	// Side effects outside the ledger invariant, best effort.
	c.registrar.Register(order)
	if c.subscriber != nil && order.InstrumentToken != "" {
		if err := c.subscriber.Subscribe(order.InstrumentToken); err != nil {
			logger.WithField("token", order.InstrumentToken).
				WithError(err).Warn("Market data subscription failed")
		}
	}

	return order, nil
}
