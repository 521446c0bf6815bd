package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/repository"
)

type DeviceTokenStore interface {
	FindByCustomerID(ctx context.Context, customerID string) ([]model.DeviceToken, error)
	List(ctx context.Context, customerID string) ([]model.DeviceToken, error)
	Save(ctx context.Context, d *model.DeviceToken) error
	Update(ctx context.Context, d *model.DeviceToken) error
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByTokens(ctx context.Context, customerID string, tokens []string) (int64, error)
	FindActiveTokens(ctx context.Context) ([]string, error)
	FindTokensByCustomerIDs(ctx context.Context, customerIDs []string) ([]string, error)
	DeleteUpdatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TokenFormatValidator is the token-shape contract of the push provider.
type TokenFormatValidator interface {
	IsValidTokenFormat(token string) bool
}

type CleanResult struct {
	Valid   int `json:"valid"`
	Removed int `json:"removed"`
}

// DeviceRegistry owns the device-token table: registration, the
// per-customer cap and token hygiene.
//
// The cap is enforced with a read, an eviction and an insert in sequence.
// Two concurrent registrations for one customer can briefly exceed it.
type DeviceRegistry struct {
	store         DeviceTokenStore
	validator     TokenFormatValidator
	maxDevices    int
	retentionDays int
	now           func() time.Time
	log           *zap.SugaredLogger
}

func NewDeviceRegistry(store DeviceTokenStore, validator TokenFormatValidator, cfg config.Devices, log *zap.SugaredLogger) *DeviceRegistry {
	maxDevices := cfg.MaxPerCustomer
	if maxDevices < 1 {
		maxDevices = 10
	}
	days := cfg.TokenCleanupDays
	if days < 1 {
		days = 90
	}
	return &DeviceRegistry{
		store:         store,
		validator:     validator,
		maxDevices:    maxDevices,
		retentionDays: days,
		now:           func() time.Time { return time.Now().UTC() },
		log:           log,
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *DeviceRegistry) WithClock(now func() time.Time) *DeviceRegistry {
	r.now = now
	return r
}

// Register stores token for the customer. Re-registering a known token
// refreshes its platform and timestamp; a new token beyond the cap evicts
// the customer's least recently updated devices first.
func (r *DeviceRegistry) Register(ctx context.Context, customerID, token, platform string) (*model.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" || !r.validator.IsValidTokenFormat(token) {
		return nil, ErrInvalidPushToken
	}
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return nil, ErrInvalidPlatform
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, invalidInput("customer id is required")
	}

	existing, err := r.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	now := r.now()
	for _, d := range existing {
		if d.Token == token {
			return r.refresh(ctx, d, p, now)
		}
	}

	if len(existing) >= r.maxDevices {
		r.evict(ctx, customerID, existing, len(existing)-r.maxDevices+1)
	}

	d := &model.DeviceToken{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Token:      token,
		Platform:   p,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.Save(ctx, d); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("save device: %w", err)
		}
		// a concurrent registration inserted the same pair
		return r.registerRace(ctx, customerID, token, p, now)
	}
	r.log.Infow("device registered", "customer_id", customerID, "platform", p)
	return d, nil
}

func (r *DeviceRegistry) refresh(ctx context.Context, d model.DeviceToken, p model.Platform, now time.Time) (*model.DeviceToken, error) {
	updated := d.WithUpdatedFields(p, now)
	if err := r.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}
	r.log.Debugw("device re-registered", "customer_id", d.CustomerID, "device_id", d.ID)
	return &updated, nil
}

func (r *DeviceRegistry) registerRace(ctx context.Context, customerID, token string, p model.Platform, now time.Time) (*model.DeviceToken, error) {
	list, err := r.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range list {
		if d.Token == token {
			return r.refresh(ctx, d, p, now)
		}
	}
	return nil, fmt.Errorf("save device: %w", repository.ErrConflict)
}

// evict deletes the n least recently updated devices. Failures are logged;
// the cap is a hygiene limit.
func (r *DeviceRegistry) evict(ctx context.Context, customerID string, devices []model.DeviceToken, n int) {
	sorted := append([]model.DeviceToken(nil), devices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt) })
	for _, d := range sorted[:min(n, len(sorted))] {
		if _, err := r.store.Delete(ctx, d.ID); err != nil {
			r.log.Warnw("evict device failed", "customer_id", customerID, "device_id", d.ID, "error", err)
			continue
		}
		r.log.Infow("device evicted", "customer_id", customerID, "device_id", d.ID, "cap", r.maxDevices)
	}
}

// Unregister removes one token of a customer.
func (r *DeviceRegistry) Unregister(ctx context.Context, customerID, token string) (bool, error) {
	n, err := r.store.DeleteByTokens(ctx, customerID, []string{strings.TrimSpace(token)})
	if err != nil {
		return false, fmt.Errorf("delete device: %w", err)
	}
	return n > 0, nil
}

// ValidateAndClean rechecks every token of the customer and deletes the
// ones that no longer match the provider's token shape.
func (r *DeviceRegistry) ValidateAndClean(ctx context.Context, customerID string) (CleanResult, error) {
	list, err := r.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		return CleanResult{}, fmt.Errorf("list devices: %w", err)
	}
	var res CleanResult
	var bad []string
	for _, d := range list {
		if r.validator.IsValidTokenFormat(d.Token) {
			res.Valid++
			continue
		}
		bad = append(bad, d.Token)
	}
	if len(bad) > 0 {
		n, err := r.store.DeleteByTokens(ctx, customerID, bad)
		if err != nil {
			return res, fmt.Errorf("delete invalid devices: %w", err)
		}
		res.Removed = int(n)
		r.log.Infow("invalid devices removed", "customer_id", customerID, "count", n)
	}
	return res, nil
}

// Stats counts devices by platform and validity. An empty customerID
// covers every customer.
func (r *DeviceRegistry) Stats(ctx context.Context, customerID string) (model.DeviceStats, error) {
	list, err := r.store.List(ctx, customerID)
	if err != nil {
		return model.DeviceStats{}, fmt.Errorf("list devices: %w", err)
	}
	st := model.DeviceStats{ByPlatform: map[model.Platform]int{}}
	for _, d := range list {
		st.Total++
		st.ByPlatform[d.Platform]++
		if r.validator.IsValidTokenFormat(d.Token) {
			st.Valid++
		} else {
			st.Invalid++
		}
	}
	return st, nil
}

// SweepStale deletes devices not updated within maxAgeDays. A
// non-positive value uses the configured retention.
func (r *DeviceRegistry) SweepStale(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = r.retentionDays
	}
	before := r.now().AddDate(0, 0, -maxAgeDays)
	n, err := r.store.DeleteUpdatedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("sweep devices: %w", err)
	}
	return n, nil
}

// ActiveTokens returns the tokens of all active customers.
func (r *DeviceRegistry) ActiveTokens(ctx context.Context) ([]string, error) {
	return r.store.FindActiveTokens(ctx)
}

// TokensForCustomers returns the tokens of the given customers.
func (r *DeviceRegistry) TokensForCustomers(ctx context.Context, customerIDs []string) ([]string, error) {
	return r.store.FindTokensByCustomerIDs(ctx, customerIDs)
}

// RemoveTokens deletes the tokens for whichever customers hold them.
func (r *DeviceRegistry) RemoveTokens(ctx context.Context, tokens []string) (int64, error) {
	return r.store.DeleteByTokens(ctx, "", tokens)
}
