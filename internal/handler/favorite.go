package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
)

type Favorites interface {
	Add(ctx context.Context, customerID, promotionID string) (*model.Favorite, error)
	Remove(ctx context.Context, customerID, promotionID string) (bool, error)
	List(ctx context.Context, customerID string) ([]model.Favorite, error)
}

// FavoriteHandler lets customers follow promotions, which opts them into
// favorite-store notifications.
type FavoriteHandler struct {
	favorites Favorites
	log       *zap.SugaredLogger
}

func NewFavoriteHandler(f Favorites, log *zap.SugaredLogger) *FavoriteHandler {
	return &FavoriteHandler{favorites: f, log: log}
}

type favoriteReq struct {
	PromotionID string `json:"promotion_id"`
}

func (h *FavoriteHandler) Add(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req favoriteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	f, err := h.favorites.Add(ctx, id.ID, req.PromotionID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *FavoriteHandler) Remove(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	removed, err := h.favorites.Remove(ctx, id.ID, c.Param("promotionId"))
	if err != nil {
		return fail(c, h.log, err)
	}
	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "favorite not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FavoriteHandler) List(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.favorites.List(ctx, id.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	if list == nil {
		list = []model.Favorite{}
	}
	return c.JSON(http.StatusOK, echo.Map{"favorites": list})
}
