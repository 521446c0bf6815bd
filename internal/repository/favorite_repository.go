package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

type FavoriteRepo struct{ DB *sqlx.DB }

func NewFavoriteRepo(db *sqlx.DB) *FavoriteRepo { return &FavoriteRepo{DB: db} }

// Add inserts the favorite; an existing (customer, promotion) pair is a no-op.
func (r *FavoriteRepo) Add(ctx context.Context, f *model.Favorite) error {
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT IGNORE INTO favorites (id, customer_id, promotion_id, created_at)
		 VALUES (:id, :customer_id, :promotion_id, :created_at)`, f)
	return err
}

// Remove deletes the pair and reports whether a row existed.
func (r *FavoriteRepo) Remove(ctx context.Context, customerID, promotionID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM favorites WHERE customer_id=? AND promotion_id=?", customerID, promotionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *FavoriteRepo) FindByCustomerID(ctx context.Context, customerID string) ([]model.Favorite, error) {
	var out []model.Favorite
	err := r.DB.SelectContext(ctx, &out,
		"SELECT id, customer_id, promotion_id, created_at FROM favorites WHERE customer_id=? ORDER BY created_at DESC",
		customerID)
	return out, err
}

func (r *FavoriteRepo) FindByPromotionID(ctx context.Context, promotionID string) ([]model.Favorite, error) {
	var out []model.Favorite
	err := r.DB.SelectContext(ctx, &out,
		"SELECT id, customer_id, promotion_id, created_at FROM favorites WHERE promotion_id=?", promotionID)
	return out, err
}
