package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/repository"
	"github.com/promohub/promotions-api/internal/service"
)

type PromotionSyncer interface {
	Sync(ctx context.Context, actor model.Identity, in service.SyncInput) (*service.SyncResult, error)
}

type PromotionSearcher interface {
	Search(ctx context.Context, q repository.PromotionSearchQuery, now time.Time) ([]repository.PromotionRow, int64, error)
}

// PromotionHandler receives catalog pushes from store back offices and
// serves the public promotion listing.
type PromotionHandler struct {
	sync   PromotionSyncer
	search PromotionSearcher
	log    *zap.SugaredLogger
}

func NewPromotionHandler(s PromotionSyncer, search PromotionSearcher, log *zap.SugaredLogger) *PromotionHandler {
	return &PromotionHandler{sync: s, search: search, log: log}
}

type syncStoreReq struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address *string `json:"address"`
}

type syncPromotionReq struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	PriceCents    int64      `json:"price_cents"`
	DiscountCents int64      `json:"discount_cents"`
	StartsAt      *time.Time `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at"`
	Active        *bool      `json:"active"`
}

type syncReq struct {
	Store      syncStoreReq       `json:"store"`
	Promotions []syncPromotionReq `json:"promotions"`
}

// Sync upserts the store and its promotions. Notifications go out in the
// background; the response does not wait for them.
func (h *PromotionHandler) Sync(c echo.Context) error {
	actor, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req syncReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	in := service.SyncInput{
		Store:      model.Store{ID: req.Store.ID, Name: req.Store.Name, Address: req.Store.Address},
		Promotions: make([]model.Promotion, 0, len(req.Promotions)),
	}
	for _, p := range req.Promotions {
		active := p.Active == nil || *p.Active
		in.Promotions = append(in.Promotions, model.Promotion{
			ID:            p.ID,
			Title:         p.Title,
			Description:   p.Description,
			PriceCents:    p.PriceCents,
			DiscountCents: p.DiscountCents,
			StartsAt:      p.StartsAt,
			EndsAt:        p.EndsAt,
			Active:        active,
		})
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.sync.Sync(ctx, *actor, in)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Search lists current promotions. Query parameters: title, store,
// time=current|upcoming|any, page, page_size.
func (h *PromotionHandler) Search(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	q := repository.PromotionSearchQuery{
		Title:      c.QueryParam("title"),
		Store:      c.QueryParam("store"),
		TimeFilter: c.QueryParam("time"),
		Page:       page,
		PageSize:   size,
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	rows, total, err := h.search.Search(ctx, q, time.Now().UTC())
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":     rows,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}
