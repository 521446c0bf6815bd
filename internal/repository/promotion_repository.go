package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

const promotionColumns = "id, store_id, title, description, price_cents, discount_cents, starts_at, ends_at, is_active, created_at, updated_at"

type PromotionRepo struct{ DB *sqlx.DB }

func NewPromotionRepo(db *sqlx.DB) *PromotionRepo { return &PromotionRepo{DB: db} }

func (r *PromotionRepo) FindByID(ctx context.Context, id string) (*model.Promotion, error) {
	var p model.Promotion
	err := r.DB.GetContext(ctx, &p, "SELECT "+promotionColumns+" FROM promotions WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByStoreID lists a store's promotions, newest first.
func (r *PromotionRepo) FindByStoreID(ctx context.Context, storeID string) ([]model.Promotion, error) {
	var out []model.Promotion
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+promotionColumns+" FROM promotions WHERE store_id=? ORDER BY created_at DESC", storeID)
	return out, err
}

// UpsertMany writes all promotions in one transaction.
func (r *PromotionRepo) UpsertMany(ctx context.Context, promotions []model.Promotion) error {
	if len(promotions) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO promotions (`+promotionColumns+`)
		 VALUES (:id, :store_id, :title, :description, :price_cents, :discount_cents, :starts_at, :ends_at,
		 :is_active, :created_at, :updated_at)
		 ON DUPLICATE KEY UPDATE store_id=VALUES(store_id), title=VALUES(title), description=VALUES(description),
		 price_cents=VALUES(price_cents), discount_cents=VALUES(discount_cents), starts_at=VALUES(starts_at),
		 ends_at=VALUES(ends_at), is_active=VALUES(is_active), updated_at=VALUES(updated_at)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range promotions {
		if _, err := stmt.ExecContext(ctx, &promotions[i]); err != nil {
			return fmt.Errorf("upsert promotion %s: %w", promotions[i].ID, err)
		}
	}
	return tx.Commit()
}
