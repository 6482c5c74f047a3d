package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"marginledger/src/executors"
	"marginledger/src/model"
	"marginledger/src/repository"
)

type squareOffRunner interface {
	Run(ctx context.Context, set repository.CandidateSet) (executors.RunResult, error)
}

// SquareOffHandler returns the manual square-off trigger used for
// operational debugging. The set query parameter picks the candidate set.
func SquareOffHandler(runner squareOffRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set := repository.CandidateSet(r.URL.Query().Get("set"))

		switch set {
		case repository.SetOpenIntraday, repository.SetHold, repository.SetOvernight:
		default:
			writeError(w, model.NewValidationError(
				"set must be one of open_intraday, hold, overnight"))
			return
		}

		result, err := runner.Run(r.Context(), set)
		if err != nil {
			logger.WithError(err).Error("manual square-off run failed")
			writeError(w, model.NewPersistenceFailure("square-off run", err))
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Results: result})
	}
}
