package middleware // reusable echo middleware: auth, roles, rate limiting, caching, request logs

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/model"
)

// Context keys set by JWTAuth.
const (
	ctxIdentity = "identity"
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxKind     = "kind"
)

// TokenValidator resolves a raw access token to the identity it was
// issued for. *service.SessionManager satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*model.Identity, error)
}

// JWTAuth rejects requests without a valid Bearer access token. On
// success the identity is stored in the context together with its id,
// role and principal type so later middleware and handlers can read
// them without parsing the token again.
func JWTAuth(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			// Validate checks signature and expiry, then that the
			// principal still exists and is active.
			id, err := v.Validate(c.Request().Context(), raw)
			if err != nil || id == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxIdentity, id)
			c.Set(ctxUserID, id.ID)
			c.Set(ctxRole, id.Role)
			c.Set(ctxKind, string(id.Kind))
			return next(c)
		}
	}
}
