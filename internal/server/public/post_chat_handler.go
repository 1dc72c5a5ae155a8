package public

import (
	"errors"
	"fmt"
	"net/http"

	"inference-gateway/admission"
	"inference-gateway/ledger"
	"inference-gateway/logging"

	"github.com/labstack/echo/v4"
)

func (s *Server) postChat(ctx echo.Context) error {
	var request ChatRequest
	if err := ctx.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body")
	}

	logging.Debug("PostChat received", logging.Server,
		"address", request.RequesterAddress, "model", request.Model)

	resultChan, err := s.queue.Submit(request.RequesterAddress, request.Query, request.Model)
	if err != nil {
		return mapTaskError(err)
	}

	select {
	case <-ctx.Request().Context().Done():
		// The task keeps running and billing; only the response is abandoned.
		logging.Warn("Client gone before task completed", logging.Server,
			"address", request.RequesterAddress)
		return ctx.Request().Context().Err()
	case result := <-resultChan:
		if result.Err != nil {
			return mapTaskError(result.Err)
		}

		response := ChatResponse{
			Response:       result.Response,
			Model:          result.Model,
			Cost:           result.Cost.String(),
			ExternalId:     result.ExternalId,
			ResponseTimeMs: result.ResponseTimeMs,
			Valid:          result.Valid,
		}
		if result.ReconciliationErr != nil {
			response.Warning = result.ReconciliationErr.Error()
		}
		return ctx.JSON(http.StatusOK, response)
	}
}

// mapTaskError translates the admission and ledger error taxonomy into HTTP
// status codes.
func mapTaskError(err error) error {
	var insufficientFunds *ledger.InsufficientFundsError
	if errors.As(err, &insufficientFunds) {
		return echo.NewHTTPError(http.StatusPaymentRequired,
			fmt.Sprintf("Insufficient balance: required %s, available %s",
				insufficientFunds.Required.String(), insufficientFunds.Available.String()))
	}

	var modelNotFound *admission.ModelNotFoundError
	if errors.As(err, &modelNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, modelNotFound.Error())
	}

	switch {
	case errors.Is(err, admission.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, admission.ErrModelNotFound):
		return ErrModelUnavailable
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientBalance
	case errors.Is(err, admission.ErrDispatchTimeout):
		return ErrUpstreamTimeout
	case errors.Is(err, admission.ErrUpstreamDispatch):
		return ErrUpstreamFailed
	case errors.Is(err, admission.ErrQueueStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Gateway is shutting down")
	default:
		return err
	}
}
