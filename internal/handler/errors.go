package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/service"

	"github.com/labstack/echo/v4"
)

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {success:false, error}. Only the
// user-safe message of a service error reaches the client.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "internal server error, please try again"

		var svcErr *service.Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &svcErr):
			status = StatusFor(svcErr)
			msg = svcErr.Message
		case errors.As(err, &httpErr):
			status = httpErr.Code
			msg = fmt.Sprint(httpErr.Message)
		}

		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, dto.ErrorResponse{Success: false, Error: msg})
	}
}
