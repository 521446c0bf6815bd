package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshTokenState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		tok   RefreshToken
		state SessionState
		valid bool
	}{
		{"active", RefreshToken{ExpiresAt: now.Add(time.Minute)}, SessionActive, true},
		{"expired at boundary", RefreshToken{ExpiresAt: now}, SessionExpired, false},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}, SessionRevoked, false},
		{"revoked and expired", RefreshToken{ExpiresAt: now.Add(-time.Hour), Revoked: true}, SessionRevoked, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.state, tc.tok.State(now))
			require.Equal(t, tc.valid, tc.tok.Valid(now))
		})
	}
}

func TestDeviceTokenWithUpdatedFields(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := DeviceToken{ID: "d1", CustomerID: "c1", Token: "tok", Platform: PlatformIOS, CreatedAt: created, UpdatedAt: created}

	later := created.Add(48 * time.Hour)
	u := d.WithUpdatedFields(PlatformAndroid, later)

	require.Equal(t, "d1", u.ID)
	require.Equal(t, created, u.CreatedAt)
	require.Equal(t, PlatformAndroid, u.Platform)
	require.Equal(t, later, u.UpdatedAt)
	require.Equal(t, PlatformIOS, d.Platform, "receiver is not mutated")

	p, ok := ParsePlatform(" IOS ")
	require.True(t, ok)
	require.Equal(t, PlatformIOS, p)
	_, ok = ParsePlatform("web")
	require.False(t, ok)
}
