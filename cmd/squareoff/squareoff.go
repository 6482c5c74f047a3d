package squareoff

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"marginledger/src/database"
	"marginledger/src/executors"
)

type SquareOff struct {
}

func (t *SquareOff) Start() error {
	config := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.WithFields(map[string]interface{}{
		"session_close": config.SessionCloseAt,
		"midnight_pass": config.MidnightPassAt,
	}).Info("Starting square-off scheduler")

	runner := executors.NewDefaultSquareOffRunner()
	if err := executors.StartLoop(ctx, runner); err != nil {
		logrus.WithError(err).Error("Failed to start square-off loop")
		return err
	}

	return nil
}
