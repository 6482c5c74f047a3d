package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marginledger/src/database"
	"marginledger/src/model"
)

// FundAccountRepository handles read/write operations for fund accounts.
type FundAccountRepository struct {
	db *gorm.DB
}

// NewFundAccountRepository creates a new repository instance using the main read/write database.
func NewFundAccountRepository() *FundAccountRepository {
	return &FundAccountRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *FundAccountRepository) WithDB(db *gorm.DB) *FundAccountRepository {
	return &FundAccountRepository{db: db}
}

// Find fetches the fund account for a (broker, customer) pair.
// Returns (nil, nil) if the account is not found.
func (r *FundAccountRepository) Find(
	ctx context.Context,
	brokerID, customerID string,
) (*model.FundAccount, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "FundAccountRepository",
		"op":          "Find",
		"broker_id":   brokerID,
		"customer_id": customerID,
	}).Debug("Fetching fund account")

	var acct model.FundAccount

	err := r.db.WithContext(ctx).
		Where("broker_id = ? AND customer_id = ?", brokerID, customerID).
		First(&acct).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":        "FundAccountRepository",
				"op":          "Find",
				"broker_id":   brokerID,
				"customer_id": customerID,
			}).Info("Fund account not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "FundAccountRepository",
			"op":          "Find",
			"broker_id":   brokerID,
			"customer_id": customerID,
		}).WithError(err).Error("Failed to fetch fund account")

		return nil, err
	}

	return &acct, nil
}

// GetOrCreate fetches the fund account, creating a zeroed one on first
// touch. Placement does not use this path; fund queries do.
func (r *FundAccountRepository) GetOrCreate(
	ctx context.Context,
	brokerID, customerID string,
) (*model.FundAccount, error) {

	acct, err := r.Find(ctx, brokerID, customerID)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		return acct, nil
	}

	acct = &model.FundAccount{BrokerID: brokerID, CustomerID: customerID}
	if err := r.db.WithContext(ctx).Create(acct).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "FundAccountRepository",
			"op":          "GetOrCreate",
			"broker_id":   brokerID,
			"customer_id": customerID,
		}).WithError(err).Error("Failed to create fund account")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "FundAccountRepository",
		"op":          "GetOrCreate",
		"account_id":  acct.ID,
		"broker_id":   brokerID,
		"customer_id": customerID,
	}).Info("Fund account created")

	return acct, nil
}

// Save writes the mutated account back with a conditional update on the
// version column. Returns model.ErrVersionConflict when another writer got
// there first; the caller reloads and retries, never overwrites.
func (r *FundAccountRepository) Save(
	ctx context.Context,
	acct *model.FundAccount,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":          "FundAccountRepository",
		"op":            "Save",
		"account_id":    acct.ID,
		"intraday_used": acct.IntradayUsedLimit,
		"version":       acct.Version,
	}).Debug("Saving fund account")

	res := r.db.WithContext(ctx).
		Model(&model.FundAccount{}).
		Where("id = ? AND version = ?", acct.ID, acct.Version).
		Updates(map[string]interface{}{
			"net_available_balance":       acct.NetAvailableBalance,
			"intraday_available_limit":    acct.IntradayAvailableLimit,
			"intraday_used_limit":         acct.IntradayUsedLimit,
			"intraday_free_limit":         acct.IntradayFreeLimit,
			"overnight_available_limit":   acct.OvernightAvailableLimit,
			"option_intraday_used_today":  acct.OptionIntradayUsedToday,
			"option_intraday_trade_date":  acct.OptionIntradayTradeDate,
			"option_overnight_used_today": acct.OptionOvernightUsedToday,
			"option_overnight_trade_date": acct.OptionOvernightTradeDate,
			"version":                     acct.Version + 1,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "FundAccountRepository",
			"op":         "Save",
			"account_id": acct.ID,
		}).WithError(res.Error).Error("Failed to save fund account")

		return res.Error
	}

	if res.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":       "FundAccountRepository",
			"op":         "Save",
			"account_id": acct.ID,
			"version":    acct.Version,
		}).Warn("Fund account version conflict")

		return model.ErrVersionConflict
	}

	acct.Version++
	return nil
}
