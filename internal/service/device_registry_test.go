package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/push"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) tick()          { c.t = c.t.Add(time.Minute) }

func newRegistry(t *testing.T, maxDevices int) (*DeviceRegistry, *fakeDeviceStore, *clock) {
	t.Helper()
	store := newFakeDeviceStore()
	clk := &clock{t: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	reg := NewDeviceRegistry(store, &fakeGateway{}, config.Devices{MaxPerCustomer: maxDevices, TokenCleanupDays: 90}, zap.NewNop().Sugar()).
		WithClock(clk.now)
	return reg, store, clk
}

func TestRegisterRejectsMalformedBeforePersisting(t *testing.T) {
	t.Parallel()
	reg, store, _ := newRegistry(t, 10)

	_, err := reg.Register(context.Background(), "c1", "not-a-token", "ios")
	require.ErrorIs(t, err, ErrInvalidPushToken)
	require.Equal(t, KindValidation, KindOf(err))

	oversized := "ExponentPushToken[" + strings.Repeat("a", push.MaxTokenLength) + "]"
	_, err = reg.Register(context.Background(), "c1", oversized, "ios")
	require.ErrorIs(t, err, ErrInvalidPushToken)

	_, err = reg.Register(context.Background(), "c1", "ExponentPushToken[abc]", "web")
	require.ErrorIs(t, err, ErrInvalidPlatform)
	require.Empty(t, store.rows)
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	reg, store, clk := newRegistry(t, 10)
	ctx := context.Background()

	first, err := reg.Register(ctx, "c1", "ExponentPushToken[abc]", "ios")
	require.NoError(t, err)

	clk.tick()
	second, err := reg.Register(ctx, "c1", "ExponentPushToken[abc]", "android")
	require.NoError(t, err)

	require.Len(t, store.rows, 1)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.PlatformAndroid, store.rows[first.ID].Platform)
	require.Equal(t, clk.t, store.rows[first.ID].UpdatedAt)
	require.Equal(t, first.CreatedAt, store.rows[first.ID].CreatedAt)
}

func TestRegisterCapOfOneScenario(t *testing.T) {
	t.Parallel()
	reg, store, clk := newRegistry(t, 1)
	ctx := context.Background()

	_, err := reg.Register(ctx, "c1", "ExponentPushToken[abc]", "ios")
	require.NoError(t, err)
	clk.tick()
	_, err = reg.Register(ctx, "c1", "ExponentPushToken[def]", "ios")
	require.NoError(t, err)

	require.Equal(t, []string{"ExponentPushToken[def]"}, store.tokens("c1"))
}

func TestRegisterEvictsLeastRecentlyUpdated(t *testing.T) {
	t.Parallel()
	const maxDevices = 3
	reg, store, clk := newRegistry(t, maxDevices)
	ctx := context.Background()

	for _, tok := range []string{"ExponentPushToken[a]", "ExponentPushToken[b]", "ExponentPushToken[c]"} {
		_, err := reg.Register(ctx, "c1", tok, "ios")
		require.NoError(t, err)
		clk.tick()
	}
	// touching a makes b the least recently updated
	_, err := reg.Register(ctx, "c1", "ExponentPushToken[a]", "ios")
	require.NoError(t, err)
	clk.tick()

	_, err = reg.Register(ctx, "c1", "ExponentPushToken[d]", "android")
	require.NoError(t, err)

	require.ElementsMatch(t,
		[]string{"ExponentPushToken[a]", "ExponentPushToken[c]", "ExponentPushToken[d]"},
		store.tokens("c1"))

	_, err = reg.Register(ctx, "c2", "ExponentPushToken[z]", "ios")
	require.NoError(t, err)
	require.Len(t, store.tokens("c1"), maxDevices, "other customers are unaffected")
}

func TestValidateAndClean(t *testing.T) {
	t.Parallel()
	reg, store, clk := newRegistry(t, 10)
	ctx := context.Background()

	_, err := reg.Register(ctx, "c1", "ExponentPushToken[ok]", "ios")
	require.NoError(t, err)
	for i, tok := range []string{"legacy-gcm-token", "apns:123"} {
		store.rows[tok] = model.DeviceToken{ID: tok, CustomerID: "c1", Token: tok, Platform: model.PlatformAndroid, UpdatedAt: clk.t.Add(time.Duration(i))}
	}
	store.rows["other"] = model.DeviceToken{ID: "other", CustomerID: "c2", Token: "bogus"}

	res, err := reg.ValidateAndClean(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, CleanResult{Valid: 1, Removed: 2}, res)
	require.Equal(t, []string{"ExponentPushToken[ok]"}, store.tokens("c1"))
	require.Len(t, store.tokens("c2"), 1)
}

func TestStatsAndSweepStale(t *testing.T) {
	t.Parallel()
	reg, store, clk := newRegistry(t, 10)
	ctx := context.Background()

	_, err := reg.Register(ctx, "c1", "ExponentPushToken[a]", "ios")
	require.NoError(t, err)
	clk.t = clk.t.AddDate(0, 0, 100)
	_, err = reg.Register(ctx, "c2", "ExponentPushToken[b]", "android")
	require.NoError(t, err)
	store.rows["bad"] = model.DeviceToken{ID: "bad", CustomerID: "c2", Token: "bad", Platform: model.PlatformAndroid, UpdatedAt: clk.t}

	st, err := reg.Stats(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 2, st.Valid)
	require.Equal(t, 1, st.Invalid)
	require.Equal(t, 2, st.ByPlatform[model.PlatformAndroid])

	st, err = reg.Stats(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, st.Total)

	n, err := reg.SweepStale(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Empty(t, store.tokens("c1"))
}

func TestRemoveTokensAcrossCustomers(t *testing.T) {
	t.Parallel()
	reg, store, _ := newRegistry(t, 10)
	ctx := context.Background()

	for _, c := range []string{"c1", "c2"} {
		_, err := reg.Register(ctx, c, "ExponentPushToken[shared]", "ios")
		require.NoError(t, err)
	}
	n, err := reg.RemoveTokens(ctx, []string{"ExponentPushToken[shared]"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Empty(t, store.rows)

	ok, err := reg.Unregister(ctx, "c1", "ExponentPushToken[shared]")
	require.NoError(t, err)
	require.False(t, ok)
}

var _ TokenFormatValidator = (*push.ExpoClient)(nil)
