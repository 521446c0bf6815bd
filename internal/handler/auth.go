package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/middleware"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/service"
)

// Sessions is the slice of *service.SessionManager used by AuthHandler.
type Sessions interface {
	RegisterUser(ctx context.Context, in service.RegisterUserInput, device string) (*service.AuthResult, error)
	RegisterCustomer(ctx context.Context, in service.RegisterCustomerInput, device string) (*service.AuthResult, error)
	Login(ctx context.Context, kind model.PrincipalKind, creds service.Credentials, device string) (*service.AuthResult, error)
	Refresh(ctx context.Context, secret, device string) (*service.AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshSecret string) service.LogoutResult
	Revoke(ctx context.Context, secret string) (bool, error)
	RevokeAll(ctx context.Context, principalID string, kind model.PrincipalKind) (int64, error)
	Validate(ctx context.Context, accessToken string) (*model.Identity, error)
	Sessions(ctx context.Context, principalID string, kind model.PrincipalKind) ([]model.RefreshToken, int, error)
}

// AuthHandler serves registration, login and session endpoints for both
// staff users and customers.
type AuthHandler struct {
	sessions Sessions
	log      *zap.SugaredLogger
}

func NewAuthHandler(s Sessions, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{sessions: s, log: log}
}

// ----- DTOs -----

type registerUserReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id"`
}

type registerCustomerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type authResp struct {
	AccessToken      string         `json:"access_token"`
	RefreshToken     string         `json:"refresh_token"`
	TokenType        string         `json:"token_type"`
	ExpiresIn        int64          `json:"expires_in"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	User             model.Identity `json:"user"`
}

type sessionResp struct {
	ID         string             `json:"id"`
	State      model.SessionState `json:"state"`
	DeviceInfo *string            `json:"device_info,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

func toAuthResp(r *service.AuthResult) authResp {
	return authResp{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(r.ExpiresIn / time.Second),
		AccessExpiresAt:  r.AccessExpiresAt,
		RefreshExpiresAt: r.RefreshExpiresAt,
		User:             r.Principal,
	}
}

// RegisterUser creates a staff account and opens its first session.
func (h *AuthHandler) RegisterUser(c echo.Context) error {
	var req registerUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.sessions.RegisterUser(ctx, service.RegisterUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     strings.ToUpper(strings.TrimSpace(req.Role)),
		StoreID:  req.StoreID,
	}, middleware.DeviceInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(res))
}

// RegisterCustomer creates a shopper account and opens its first session.
func (h *AuthHandler) RegisterCustomer(c echo.Context) error {
	var req registerCustomerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.sessions.RegisterCustomer(ctx, service.RegisterCustomerInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	}, middleware.DeviceInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(res))
}

func (h *AuthHandler) LoginUser(c echo.Context) error { return h.login(c, model.KindUser) }

func (h *AuthHandler) LoginCustomer(c echo.Context) error { return h.login(c, model.KindCustomer) }

func (h *AuthHandler) login(c echo.Context, kind model.PrincipalKind) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.sessions.Login(ctx, kind, service.Credentials{Email: req.Email, Password: req.Password}, middleware.DeviceInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

const errInvalidRefresh = "invalid refresh token"

// Refresh rotates a refresh secret into a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.sessions.Refresh(ctx, req.RefreshToken, middleware.DeviceInfo(c))
	if err != nil {
		// unknown, stale and orphaned secrets look the same to the caller
		switch service.KindOf(err) {
		case service.KindUnauthorized, service.KindStateConflict:
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": errInvalidRefresh})
		}
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// Revoke invalidates one refresh secret. Unknown secrets report
// revoked=false with 200.
func (h *AuthHandler) Revoke(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ok, err := h.sessions.Revoke(ctx, req.RefreshToken)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": ok})
}

// Logout always answers 200. The bearer token is optional and a refresh
// token in the body is revoked when present.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx, cancel := requestContext(c)
	defer cancel()

	res := h.sessions.Logout(ctx, middleware.BearerToken(c), req.RefreshToken)
	return c.JSON(http.StatusOK, echo.Map{"success": res.Success, "message": res.Message})
}

// Validate reports whether the bearer token is usable. An invalid token
// answers 401 with valid=false.
func (h *AuthHandler) Validate(c echo.Context) error {
	raw := middleware.BearerToken(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"valid": false})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.sessions.Validate(ctx, raw)
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			return fail(c, h.log, err)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"valid": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "user": id})
}

// RevokeAll ends every session of the caller.
func (h *AuthHandler) RevokeAll(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.sessions.RevokeAll(ctx, id.ID, id.Kind)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}

// ListSessions shows the caller's refresh-token records.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	list, active, err := h.sessions.Sessions(ctx, id.ID, id.Kind)
	if err != nil {
		return fail(c, h.log, err)
	}
	now := time.Now()
	out := make([]sessionResp, 0, len(list))
	for _, t := range list {
		out = append(out, sessionResp{ID: t.ID, State: t.State(now), DeviceInfo: t.DeviceInfo, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out, "active": active})
}

// Me echoes the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, id)
}
