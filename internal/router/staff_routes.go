package router

import (
	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/handler"
	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
)

// RegisterPublic registers the unauthenticated, cached promotion listing.
func RegisterPublic(e *echo.Echo, p *handler.PromotionHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/promotions", p.Search, cache)
}

// RegisterStaff registers endpoints for store staff and admins. The
// service layer further restricts sync to the actor's own store.
func RegisterStaff(e *echo.Echo, p *handler.PromotionHandler, d *handler.DeviceHandler, auth, cache echo.MiddlewareFunc) {
	staff := middleware.RequireKind(model.KindUser)

	e.POST("/v1/sync/promotions", p.Sync, auth, staff,
		middleware.RequireRole(model.RoleAdmin, model.RoleStoreManager, model.RoleStoreOperator))

	admin := e.Group("/v1/admin", auth, staff, middleware.RequireRole(model.RoleAdmin))
	admin.GET("/devices/stats", d.AllStats, cache)
}
