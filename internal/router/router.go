package router // package router wires handlers and middleware onto echo routes

import (
	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational routes.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	// load balancers probe this; it also reports mysql and redis reachability
	e.GET("/healthz", handler.Health(checks))
}

// RegisterAuth registers registration, login and session routes.
// Unauthenticated operations live under /v1/auth and pass through the rate
// limiter; the caller-scoped ones also require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/users/register", a.RegisterUser)
	g.POST("/users/login", a.LoginUser)
	g.POST("/customers/register", a.RegisterCustomer)
	g.POST("/customers/login", a.LoginCustomer)
	g.POST("/refresh", a.Refresh)
	g.POST("/revoke", a.Revoke)
	// logout works with a dead or missing access token, so no JWTAuth here
	g.POST("/logout", a.Logout)
	g.GET("/validate", a.Validate)

	g.POST("/revoke-all", a.RevokeAll, auth)
	g.GET("/sessions", a.ListSessions, auth)

	e.GET("/v1/me", a.Me, auth)
}
