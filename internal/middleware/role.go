package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/model"
)

// RequireRole enforces that the authenticated principal has one of roles.
// It must run after JWTAuth, which stores the role under "role".
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireKind restricts a route to staff users or to customers.
func RequireKind(kind model.PrincipalKind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if k, _ := c.Get(ctxKind).(string); k != string(kind) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
