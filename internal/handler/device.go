package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/service"
)

type Devices interface {
	Register(ctx context.Context, customerID, token, platform string) (*model.DeviceToken, error)
	Unregister(ctx context.Context, customerID, token string) (bool, error)
	ValidateAndClean(ctx context.Context, customerID string) (service.CleanResult, error)
	Stats(ctx context.Context, customerID string) (model.DeviceStats, error)
}

// DeviceHandler manages a customer's push-notification devices.
type DeviceHandler struct {
	devices Devices
	log     *zap.SugaredLogger
}

func NewDeviceHandler(d Devices, log *zap.SugaredLogger) *DeviceHandler {
	return &DeviceHandler{devices: d, log: log}
}

type deviceReq struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *DeviceHandler) Register(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	d, err := h.devices.Register(ctx, id.ID, req.Token, strings.ToLower(strings.TrimSpace(req.Platform)))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *DeviceHandler) Unregister(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req deviceReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return badRequest(c, "token required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	removed, err := h.devices.Unregister(ctx, id.ID, req.Token)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": removed})
}

// Validate drops the caller's devices whose tokens are malformed.
func (h *DeviceHandler) Validate(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.devices.ValidateAndClean(ctx, id.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": res.Valid, "removed": res.Removed})
}

// Stats reports the caller's own devices.
func (h *DeviceHandler) Stats(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return h.stats(c, id.ID)
}

// AllStats reports every registered device; admin only.
func (h *DeviceHandler) AllStats(c echo.Context) error { return h.stats(c, "") }

func (h *DeviceHandler) stats(c echo.Context, customerID string) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.devices.Stats(ctx, customerID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total":       st.Total,
		"valid":       st.Valid,
		"invalid":     st.Invalid,
		"by_platform": st.ByPlatform,
	})
}
