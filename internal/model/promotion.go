package model

import "time"

// Store is a retail location that owns promotions.
type Store struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Active    bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Promotion is a discount published by a store. Rows are upserted by id
// during synchronization.
type Promotion struct {
	ID            string     `db:"id" json:"id"`
	StoreID       string     `db:"store_id" json:"store_id"`
	Title         string     `db:"title" json:"title"`
	Description   *string    `db:"description" json:"description,omitempty"`
	PriceCents    int64      `db:"price_cents" json:"price_cents"`
	DiscountCents int64      `db:"discount_cents" json:"discount_cents"`
	StartsAt      *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt        *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Active        bool       `db:"is_active" json:"is_active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Favorite links a customer to a promotion they follow.
type Favorite struct {
	ID          string    `db:"id" json:"id"`
	CustomerID  string    `db:"customer_id" json:"customer_id"`
	PromotionID string    `db:"promotion_id" json:"promotion_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
