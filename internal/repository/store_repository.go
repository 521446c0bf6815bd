package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

type StoreRepo struct{ DB *sqlx.DB }

func NewStoreRepo(db *sqlx.DB) *StoreRepo { return &StoreRepo{DB: db} }

// FindByID fetches a store by id.
func (r *StoreRepo) FindByID(ctx context.Context, id string) (*model.Store, error) {
	var s model.Store
	err := r.DB.GetContext(ctx, &s,
		"SELECT id, name, address, is_active, created_at, updated_at FROM stores WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts the store or refreshes its name, address and flag.
func (r *StoreRepo) Upsert(ctx context.Context, s *model.Store) error {
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO stores (id, name, address, is_active, created_at, updated_at)
		 VALUES (:id, :name, :address, :is_active, :created_at, :updated_at)
		 ON DUPLICATE KEY UPDATE name=VALUES(name), address=VALUES(address),
		 is_active=VALUES(is_active), updated_at=VALUES(updated_at)`, s)
	return err
}
