package model

import (
	"strings"
	"time"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform accepts "ios" or "android" in any case.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformIOS:
		return PlatformIOS, true
	case PlatformAndroid:
		return PlatformAndroid, true
	}
	return "", false
}

// DeviceToken is one push-capable app install of a customer. At most one
// row exists per (customer_id, token).
type DeviceToken struct {
	ID         string    `db:"id" json:"id"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	Token      string    `db:"token" json:"token"`
	Platform   Platform  `db:"platform" json:"platform"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// WithUpdatedFields returns a copy carrying the new platform and update
// time. Identity fields are kept so the store can update by id.
func (d DeviceToken) WithUpdatedFields(p Platform, at time.Time) DeviceToken {
	d.Platform = p
	d.UpdatedAt = at
	return d
}

// DeviceStats counts device tokens by platform and token-shape validity.
type DeviceStats struct {
	Total      int              `json:"total"`
	ByPlatform map[Platform]int `json:"by_platform"`
	Valid      int              `json:"valid"`
	Invalid    int              `json:"invalid"`
}
