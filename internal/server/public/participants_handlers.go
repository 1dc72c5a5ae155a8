package public

import (
	"errors"
	"net/http"
	"strconv"

	"inference-gateway/ledger"
	"inference-gateway/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (s *Server) getParticipantBalance(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ErrAddressRequired
	}

	balance, err := s.ledger.GetBalance(address)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	return ctx.JSON(http.StatusOK, BalanceDto{
		Address: ledger.NormalizeAddress(address),
		Balance: balance.String(),
	})
}

func (s *Server) getParticipantHistory(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ErrAddressRequired
	}

	limit := intQueryParam(ctx, "limit", 50)
	offset := intQueryParam(ctx, "offset", 0)

	entries, err := s.ledger.History(address, limit, offset)
	if err != nil {
		return err
	}

	dtos := make([]EntryDto, len(entries))
	for i, entry := range entries {
		dtos[i] = EntryDto{
			Id:                entry.Id,
			Kind:              string(entry.Kind),
			Amount:            entry.Amount.String(),
			Description:       entry.Description,
			ExternalReference: entry.ExternalReference,
			CreatedAt:         entry.CreatedAt.UnixMilli(),
		}
	}

	return ctx.JSON(http.StatusOK, HistoryDto{
		Address: ledger.NormalizeAddress(address),
		Entries: dtos,
	})
}

// fundParticipant credits an account directly. Deposits without a reference
// get a generated one so replaying the request cannot double-credit by
// accident on a retried reference, while still always being accepted.
func (s *Server) fundParticipant(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ErrAddressRequired
	}

	var request FundRequest
	if err := ctx.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body")
	}

	amount, err := decimal.NewFromString(request.Amount)
	if err != nil || !amount.IsPositive() {
		return echo.NewHTTPError(http.StatusBadRequest, "Amount must be a positive decimal")
	}

	reference := request.Reference
	if reference == "" {
		reference = "manual-" + uuid.New().String()
	}

	balance, err := s.ledger.Credit(address, amount, "manual funding", reference)
	if err != nil {
		return err
	}

	logging.Info("Account funded", logging.Server,
		"address", address, "amount", amount.String(), "reference", reference)

	return ctx.JSON(http.StatusOK, BalanceDto{
		Address: ledger.NormalizeAddress(address),
		Balance: balance.String(),
	})
}

func (s *Server) withdrawFromParticipant(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ErrAddressRequired
	}

	var request WithdrawRequest
	if err := ctx.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body")
	}

	amount, err := decimal.NewFromString(request.Amount)
	if err != nil || !amount.IsPositive() {
		return echo.NewHTTPError(http.StatusBadRequest, "Amount must be a positive decimal")
	}

	balance, err := s.ledger.Withdraw(address, amount, "manual withdrawal")
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return mapTaskError(err)
		}
		return err
	}

	logging.Info("Withdrawal completed", logging.Server,
		"address", address, "amount", amount.String())

	return ctx.JSON(http.StatusOK, BalanceDto{
		Address: ledger.NormalizeAddress(address),
		Balance: balance.String(),
	})
}

func intQueryParam(ctx echo.Context, name string, fallback int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
