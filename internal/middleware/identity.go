package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/promohub/promotions-api/internal/model"
)

// HeaderDeviceInfo is the client-supplied device descriptor attached to
// refresh-token records.
const HeaderDeviceInfo = "X-Device-Info"

// CurrentIdentity returns the identity stored by JWTAuth.
func CurrentIdentity(c echo.Context) (*model.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(*model.Identity)
	return id, ok && id != nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// It returns "" when the header is missing or uses another scheme.
func BearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// DeviceInfo describes the calling device: the X-Device-Info header, or
// the User-Agent when the client sends none.
func DeviceInfo(c echo.Context) string {
	if v := strings.TrimSpace(c.Request().Header.Get(HeaderDeviceInfo)); v != "" {
		return v
	}
	return c.Request().UserAgent()
}

// currentUserID is used for rate limit keys; unauthenticated callers share
// the "anon" bucket.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
