package handler // HTTP handlers translating requests into service calls

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/service"
)

// requestTimeout bounds the service work done for one request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	// an inactive account is known but not allowed in
	if errors.Is(err, service.ErrAccountInactive) {
		return http.StatusForbidden
	}
	switch service.KindOf(err) {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict, service.KindStateConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Internal errors are logged and
// replaced with a generic message.
func fail(c echo.Context, log *zap.SugaredLogger, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "method", c.Request().Method, "route", c.Path(), "error", err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
