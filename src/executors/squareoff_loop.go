package executors

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/controller"
	"marginledger/src/model"
	"marginledger/src/repository"
	"marginledger/src/utils"
)

type candidateRepository interface {
	FindSquareOffCandidates(ctx context.Context, set repository.CandidateSet, limit int) ([]model.Order, error)
}

type orderCloser interface {
	SquareOffClose(ctx context.Context, order *model.Order, provenance string) error
}

// RunResult summarizes one square-off pass.
type RunResult struct {
	Set       repository.CandidateSet `json:"set"`
	Processed int                     `json:"processed"`
	Closed    int                     `json:"closed"`
	Skipped   int                     `json:"skipped"`
	Failed    int                     `json:"failed"`
}

// SquareOffRunner evaluates candidate orders and closes the eligible ones
// through the order controller. Orders are evaluated independently; a
// failure (or panic) on one never stops the batch.
type SquareOffRunner struct {
	orders candidateRepository
	closer orderCloser

	batchSize int
	now       func() time.Time
}

// NewSquareOffRunner wires a runner from explicit collaborators.
func NewSquareOffRunner(orders candidateRepository, closer orderCloser, batchSize int) *SquareOffRunner {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &SquareOffRunner{
		orders:    orders,
		closer:    closer,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// NewDefaultSquareOffRunner wires the runner to the production repository
// and controller.
func NewDefaultSquareOffRunner() *SquareOffRunner {
	config := GetConfig()
	return NewSquareOffRunner(
		repository.NewOrderRepository(),
		controller.NewDefaultOrderController(),
		config.BatchSize,
	)
}

// Run processes one candidate set. Eligibility per order:
//
//   - open intraday: always close, expiry irrelevant;
//   - hold: close only when an expiry is present and due;
//   - overnight: close only when an expiry is present and due.
func (r *SquareOffRunner) Run(ctx context.Context, set repository.CandidateSet) (RunResult, error) {

	result := RunResult{Set: set}

	candidates, err := r.orders.FindSquareOffCandidates(ctx, set, r.batchSize)
	if err != nil {
		return result, err
	}

	now := r.now()

	for i := range candidates {
		order := &candidates[i]
		result.Processed++

		eligible, provenance := r.evaluate(order, set, now)
		if !eligible {
			result.Skipped++
			continue
		}

		if err := r.closeOne(ctx, order, provenance); err != nil {
			result.Failed++
			logger.WithFields(map[string]interface{}{
				"order_id":   order.ID,
				"set":        set,
				"provenance": provenance,
			}).WithError(err).Error("Square-off failed for order, continuing batch")
			continue
		}
		result.Closed++
	}

	logger.WithFields(map[string]interface{}{
		"set":       set,
		"processed": result.Processed,
		"closed":    result.Closed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Square-off run completed")

	return result, nil
}

// evaluate computes the per-order decision from category, status and expiry.
// Nothing here is persisted; the decision is recomputed every run.
func (r *SquareOffRunner) evaluate(order *model.Order, set repository.CandidateSet, now time.Time) (bool, string) {
	if !order.IsActive() {
		return false, ""
	}

	switch set {
	case repository.SetOpenIntraday:
		if order.Status == model.OrderStatusHold {
			return false, ""
		}
		// Active intraday orders close at session end no matter the expiry.
		return true, model.CameFromOpen

	case repository.SetHold:
		expiry := order.EffectiveExpiry()
		if expiry == nil || !utils.ExpiryDue(*expiry, now) {
			return false, ""
		}
		return true, model.CameFromHold

	case repository.SetOvernight:
		if order.Status == model.OrderStatusHold {
			return false, ""
		}
		expiry := order.EffectiveExpiry()
		if expiry == nil || !utils.ExpiryDue(*expiry, now) {
			return false, ""
		}
		return true, model.CameFromOvernight
	}

	return false, ""
}

// closeOne isolates a single close so a panic inside one order cannot take
// the batch down.
func (r *SquareOffRunner) closeOne(ctx context.Context, order *model.Order, provenance string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic closing order %d: %v", order.ID, rec)
		}
	}()
	return r.closer.SquareOffClose(ctx, order, provenance)
}

// StartLoop runs the scheduler until the context is cancelled. Each tick
// checks whether a wall-clock trigger was crossed since the previous tick:
// the session-close trigger (trading days only) squares off open intraday
// orders; the midnight maintenance pass re-evaluates HOLD and OVERNIGHT
// candidates.
func StartLoop(ctx context.Context, runner *SquareOffRunner) error {
	config := GetConfig()

	sessionClose, err := parseClock(config.SessionCloseAt)
	if err != nil {
		return fmt.Errorf("invalid SQUAREOFF_SESSION_CLOSE: %w", err)
	}
	midnightPass, err := parseClock(config.MidnightPassAt)
	if err != nil {
		return fmt.Errorf("invalid SQUAREOFF_MIDNIGHT_PASS: %w", err)
	}

	ticker := time.NewTicker(config.LoopPeriod)
	defer ticker.Stop()

	last := runner.now()
	logger.WithFields(map[string]interface{}{
		"loop_period":   config.LoopPeriod.String(),
		"session_close": config.SessionCloseAt,
		"midnight_pass": config.MidnightPassAt,
	}).Info("Square-off loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Square-off loop stopped")
			return nil

		case <-ticker.C:
			now := runner.now()

			if crossed(last, now, sessionClose) && utils.IsTradingDay(now) {
				if _, err := runner.Run(ctx, repository.SetOpenIntraday); err != nil {
					logger.WithError(err).Error("Session-close square-off run failed")
				}
			}

			if crossed(last, now, midnightPass) {
				if _, err := runner.Run(ctx, repository.SetHold); err != nil {
					logger.WithError(err).Error("Midnight hold square-off run failed")
				}
				if _, err := runner.Run(ctx, repository.SetOvernight); err != nil {
					logger.WithError(err).Error("Midnight overnight square-off run failed")
				}
			}

			last = now
		}
	}
}

type clockTime struct {
	hour, minute int
}

func parseClock(s string) (clockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clockTime{}, err
	}
	return clockTime{hour: t.Hour(), minute: t.Minute()}, nil
}

// crossed reports whether the market wall-clock trigger fell inside
// (last, now].
func crossed(last, now time.Time, at clockTime) bool {
	loc := utils.MarketLocation()
	day := now.In(loc)
	trigger := time.Date(day.Year(), day.Month(), day.Day(), at.hour, at.minute, 0, 0, loc)

	if trigger.After(now) {
		// Trigger still ahead today; it may have been crossed yesterday when
		// the tick spans midnight.
		trigger = trigger.AddDate(0, 0, -1)
	}
	return trigger.After(last) && !trigger.After(now)
}
