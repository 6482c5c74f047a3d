package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marginledger/src/database"
	"marginledger/src/model"
)

// CandidateSet selects which orders a square-off run evaluates.
type CandidateSet string

const (
	SetOpenIntraday CandidateSet = "open_intraday"
	SetHold         CandidateSet = "hold"
	SetOvernight    CandidateSet = "overnight"
)

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "OrderRepository",
		"op":      "Create",
		"symbol":  order.Symbol,
		"side":    order.Side,
		"product": order.Product,
		"qty":     order.Quantity,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "Create",
		"order_id":  order.ID,
		"order_uid": order.OrderUID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByOrderUID fetches a single order by its business identifier.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByOrderUID(ctx context.Context, uid string) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("order_uid = ?", uid).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":      "OrderRepository",
				"op":        "FindByOrderUID",
				"order_uid": uid,
			}).Info("Order not found by business ID")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "FindByOrderUID",
			"order_uid": uid,
		}).WithError(err).Error("Failed to fetch order by business ID")

		return nil, err
	}

	return &order, nil
}

// FindOpenIntraday returns all INTRADAY orders with status OPEN for the
// (broker, customer) pair. Bulk exit operates on exactly this set.
func (r *OrderRepository) FindOpenIntraday(
	ctx context.Context,
	brokerID, customerID string,
) ([]model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "FindOpenIntraday",
		"broker_id":   brokerID,
		"customer_id": customerID,
	}).Debug("Fetching open intraday orders")

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("broker_id = ? AND customer_id = ? AND category = ? AND status = ?",
			brokerID, customerID, model.OrderCategoryIntraday, model.OrderStatusOpen).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "OrderRepository",
			"op":          "FindOpenIntraday",
			"broker_id":   brokerID,
			"customer_id": customerID,
		}).WithError(err).Error("Failed to fetch open intraday orders")

		return nil, err
	}

	return orders, nil
}

// FindSquareOffCandidates returns a bounded batch of active orders in the
// given candidate set. Eligibility beyond the set (expiry checks) is decided
// by the caller per order.
func (r *OrderRepository) FindSquareOffCandidates(
	ctx context.Context,
	set CandidateSet,
	limit int,
) ([]model.Order, error) {

	if limit <= 0 {
		limit = 1000
	}

	q := r.db.WithContext(ctx).Limit(limit).Order("id ASC")

	switch set {
	case SetOpenIntraday:
		// OPEN or never explicitly opened, not parked on HOLD.
		q = q.Where("category = ? AND (status = ? OR status = '')",
			model.OrderCategoryIntraday, model.OrderStatusOpen)
	case SetHold:
		q = q.Where("status = ?", model.OrderStatusHold)
	case SetOvernight:
		q = q.Where("category = ? AND status <> ? AND status <> ?",
			model.OrderCategoryOvernight, model.OrderStatusClosed, model.OrderStatusHold)
	default:
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindSquareOffCandidates",
			"set":  set,
		}).Warn("Unknown candidate set")
		return nil, nil
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindSquareOffCandidates",
			"set":  set,
		}).WithError(err).Error("Failed to fetch square-off candidates")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "FindSquareOffCandidates",
		"set":         set,
		"rows_return": len(orders),
	}).Info("Square-off candidates fetched")

	return orders, nil
}

// Search lists orders for a (broker, customer) pair with optional status and
// category filters, newest first.
type OrderSearchOptions struct {
	BrokerID   string
	CustomerID string
	Status     *string
	Category   *string
	Limit      int
	Offset     int
}

func (r *OrderRepository) Search(
	ctx context.Context,
	options OrderSearchOptions,
) ([]model.Order, error) {

	q := r.db.WithContext(ctx).
		Where("broker_id = ? AND customer_id = ?", options.BrokerID, options.CustomerID)

	if options.Status != nil {
		q = q.Where("status = ?", *options.Status)
	}
	if options.Category != nil {
		q = q.Where("category = ?", *options.Category)
	}
	if options.Limit > 0 {
		q = q.Limit(options.Limit)
	}
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	var orders []model.Order
	if err := q.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "OrderRepository",
			"op":          "Search",
			"broker_id":   options.BrokerID,
			"customer_id": options.CustomerID,
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	return orders, nil
}

// Save writes all mutated fields of an existing order back.
func (r *OrderRepository) Save(ctx context.Context, order *model.Order) error {

	logger.WithFields(map[string]interface{}{
		"repo":           "OrderRepository",
		"op":             "Save",
		"order_id":       order.ID,
		"status":         order.Status,
		"margin_blocked": order.MarginBlocked,
	}).Debug("Saving order")

	err := r.db.WithContext(ctx).Save(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Save",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to save order")

		return err
	}

	return nil
}
