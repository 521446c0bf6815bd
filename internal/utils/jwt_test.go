package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
)

func newTestCodec(t *testing.T, now *time.Time) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(config.Auth{
		JWTSecret:          "access-secret",
		AccessTokenTTL:     "15m",
		RefreshTokenSecret: "refresh-key",
		RefreshTokenTTL:    "7d",
	})
	require.NoError(t, err)
	return c.WithClock(func() time.Time { return *now })
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)

	id := model.Identity{ID: "u-1", Email: "a@x.com", Role: model.RoleAdmin, StoreID: "s-1", Kind: model.KindUser}
	raw, exp, err := c.SignAccessToken(ClaimsFor(id))
	require.NoError(t, err)
	require.Equal(t, now.Add(15*time.Minute), exp)

	claims, ok := c.VerifyAccessToken(raw)
	require.True(t, ok)
	require.Equal(t, "u-1", claims.Subject)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, model.KindUser, claims.Kind)
	require.Equal(t, "s-1", claims.StoreID)
	require.NotEmpty(t, claims.ID)

	now = now.Add(15 * time.Minute)
	_, ok = c.VerifyAccessToken(raw)
	require.False(t, ok, "token must be rejected once expired")
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, ok := c.VerifyAccessToken(raw)
		require.False(t, ok, raw)
	}

	other, err := NewTokenCodec(config.Auth{JWTSecret: "other", AccessTokenTTL: "15m"})
	require.NoError(t, err)
	other.WithClock(func() time.Time { return now })
	raw, _, err := other.SignAccessToken(ClaimsFor(model.Identity{ID: "u", Kind: model.KindUser}))
	require.NoError(t, err)
	_, ok := c.VerifyAccessToken(raw)
	require.False(t, ok, "wrong key")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Kind:             model.KindUser,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, ok = c.VerifyAccessToken(unsigned)
	require.False(t, ok, "alg none")

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind:             model.KindUser,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	})
	raw, err = noExp.SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, ok = c.VerifyAccessToken(raw)
	require.False(t, ok, "missing exp")
}

func TestIssueTokenPair(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCodec(t, &now)

	pair, err := c.IssueTokenPair(ClaimsFor(model.Identity{ID: "c-1", Kind: model.KindCustomer, Role: model.RoleCustomer}))
	require.NoError(t, err)
	require.Len(t, pair.RefreshSecret, 2*refreshSecretBytes)
	require.Equal(t, 15*time.Minute, pair.AccessTTL)
	require.Equal(t, 7*24*time.Hour, pair.RefreshTTL)
	require.Equal(t, now.Add(7*24*time.Hour), pair.RefreshExpiresAt)

	_, ok := c.VerifyAccessToken(pair.RefreshSecret)
	require.False(t, ok, "refresh secret is not a JWT")

	again, err := c.IssueTokenPair(ClaimsFor(model.Identity{ID: "c-1", Kind: model.KindCustomer}))
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshSecret, again.RefreshSecret)
	require.NotEqual(t, pair.AccessToken, again.AccessToken)
}

func TestHashRefreshSecretIsKeyed(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestCodec(t, &now)
	other, err := NewTokenCodec(config.Auth{JWTSecret: "access-secret", RefreshTokenSecret: "another-key"})
	require.NoError(t, err)

	h := c.HashRefreshSecret("s")
	require.Len(t, h, 64)
	require.Equal(t, h, c.HashRefreshSecret("s"))
	require.NotEqual(t, h, other.HashRefreshSecret("s"))
	require.NotEqual(t, h, c.HashRefreshSecret("t"))
}

func TestBcryptHasher(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher(4)
	digest, err := h.Hash("secret1")
	require.NoError(t, err)
	require.True(t, h.Compare("secret1", digest))
	require.False(t, h.Compare("wrong", digest))
}
