package router

import (
	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/handler"
	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
)

// RegisterCustomer registers customer-scoped endpoints. All routes require
// a valid access token issued to a customer.
func RegisterCustomer(e *echo.Echo, d *handler.DeviceHandler, f *handler.FavoriteHandler, auth echo.MiddlewareFunc) {
	customerOnly := middleware.RequireKind(model.KindCustomer)

	devices := e.Group("/v1/devices", auth, customerOnly)
	devices.POST("", d.Register)
	devices.DELETE("", d.Unregister)
	devices.POST("/validate", d.Validate)
	devices.GET("/stats", d.Stats)

	favorites := e.Group("/v1/favorites", auth, customerOnly)
	favorites.POST("", f.Add)
	favorites.GET("", f.List)
	favorites.DELETE("/:promotionId", f.Remove)
}
