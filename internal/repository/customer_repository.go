package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

const customerColumns = "id, name, email, password_hash, phone, is_active, created_at, updated_at"

type CustomerRepo struct{ DB *sqlx.DB }

func NewCustomerRepo(db *sqlx.DB) *CustomerRepo { return &CustomerRepo{DB: db} }

func (r *CustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := r.DB.GetContext(ctx, &c, "SELECT "+customerColumns+" FROM customers WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepo) FindByEmail(ctx context.Context, email string) (*model.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var c model.Customer
	err := r.DB.GetContext(ctx, &c, "SELECT "+customerColumns+" FROM customers WHERE email=? LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepo) Save(ctx context.Context, c *model.Customer) error {
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO customers (id, name, email, password_hash, phone, is_active, created_at, updated_at)
		 VALUES (:id, :name, :email, :password_hash, :phone, :is_active, :created_at, :updated_at)`, c)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}

func (r *CustomerRepo) Update(ctx context.Context, c *model.Customer) error {
	_, err := r.DB.NamedExecContext(ctx,
		`UPDATE customers SET name=:name, email=:email, password_hash=:password_hash, phone=:phone,
		 is_active=:is_active, updated_at=:updated_at WHERE id=:id`, c)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}
