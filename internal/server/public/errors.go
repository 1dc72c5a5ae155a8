package public

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrAddressRequired     = echo.NewHTTPError(http.StatusBadRequest, "Address is required")
	ErrAccountNotFound     = echo.NewHTTPError(http.StatusNotFound, "Account not found")
	ErrInsufficientBalance = echo.NewHTTPError(http.StatusPaymentRequired, "Insufficient balance")
	ErrModelUnavailable    = echo.NewHTTPError(http.StatusNotFound, "Model not available")
	ErrUpstreamFailed      = echo.NewHTTPError(http.StatusBadGateway, "Upstream dispatch failed")
	ErrUpstreamTimeout     = echo.NewHTTPError(http.StatusGatewayTimeout, "Upstream dispatch timed out")
)
