package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

const userColumns = "id, name, email, password_hash, role, store_id, is_active, created_at, updated_at"

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Save inserts a new user row.
func (r *UserRepo) Save(ctx context.Context, u *model.User) error {
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, store_id, is_active, created_at, updated_at)
		 VALUES (:id, :name, :email, :password_hash, :role, :store_id, :is_active, :created_at, :updated_at)`, u)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}

// Update rewrites the mutable profile columns.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	res, err := r.DB.NamedExecContext(ctx,
		`UPDATE users SET name=:name, email=:email, password_hash=:password_hash, role=:role,
		 store_id=:store_id, is_active=:is_active, updated_at=:updated_at WHERE id=:id`, u)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too; confirm existence
		if _, err := r.FindByID(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}
