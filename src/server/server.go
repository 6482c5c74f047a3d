package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"marginledger/src/controller"
	"marginledger/src/executors"
	"marginledger/src/handler"
	"marginledger/src/repository"
)

func router() chi.Router {
	ctrl := controller.NewDefaultOrderController()
	runner := executors.NewDefaultSquareOffRunner()
	orderRepo := repository.NewOrderRepository()
	fundRepo := repository.NewFundAccountRepository()

	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Post("/orders", handler.PlaceOrderHandler(ctrl))
	r.Patch("/orders/{id}", handler.ModifyOrderHandler(ctrl))
	r.Get("/orders", handler.SearchOrdersHandler(orderRepo))
	r.Post("/orders/exit-all", handler.ExitAllHandler(ctrl))
	r.Post("/squareoff/run", handler.SquareOffHandler(runner))
	r.Get("/funds", handler.GetFundsHandler(fundRepo))
	r.Post("/funds/reset-intraday", handler.ResetFundsHandler(ctrl))

	return r
}

// StartServer runs the HTTP surface until SIGINT or SIGTERM.
func StartServer(port string) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: router(),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
