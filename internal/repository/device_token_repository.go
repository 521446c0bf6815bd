package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

var deviceColumns = []string{"id", "customer_id", "token", "platform", "created_at", "updated_at"}

// DeviceTokenRepo stores push tokens. (customer_id, token) is unique.
type DeviceTokenRepo struct{ DB *sqlx.DB }

func NewDeviceTokenRepo(db *sqlx.DB) *DeviceTokenRepo { return &DeviceTokenRepo{DB: db} }

// FindByCustomerID lists a customer's tokens, least recently updated first.
func (r *DeviceTokenRepo) FindByCustomerID(ctx context.Context, customerID string) ([]model.DeviceToken, error) {
	return r.List(ctx, customerID)
}

// List returns all tokens, or a single customer's when customerID is set.
func (r *DeviceTokenRepo) List(ctx context.Context, customerID string) ([]model.DeviceToken, error) {
	qb := sq.Select(deviceColumns...).From("device_tokens").OrderBy("updated_at ASC")
	if customerID != "" {
		qb = qb.Where(sq.Eq{"customer_id": customerID})
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var out []model.DeviceToken
	err = r.DB.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (r *DeviceTokenRepo) Save(ctx context.Context, d *model.DeviceToken) error {
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO device_tokens (id, customer_id, token, platform, created_at, updated_at)
		 VALUES (:id, :customer_id, :token, :platform, :created_at, :updated_at)`, d)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// Update writes platform and updated_at of the row with d.ID.
func (r *DeviceTokenRepo) Update(ctx context.Context, d *model.DeviceToken) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE device_tokens SET platform=?, updated_at=? WHERE id=?", d.Platform, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DeviceTokenRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM device_tokens WHERE id=?", id)
	return affected(res, err)
}

// DeleteByTokens removes rows holding any of tokens. An empty customerID
// removes the tokens for every customer.
func (r *DeviceTokenRepo) DeleteByTokens(ctx context.Context, customerID string, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	where := sq.And{sq.Eq{"token": tokens}}
	if customerID != "" {
		where = append(where, sq.Eq{"customer_id": customerID})
	}
	q, args, err := sq.Delete("device_tokens").Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindActiveTokens returns the distinct tokens of active customers.
func (r *DeviceTokenRepo) FindActiveTokens(ctx context.Context) ([]string, error) {
	var out []string
	err := r.DB.SelectContext(ctx, &out,
		`SELECT DISTINCT d.token FROM device_tokens d
		 JOIN customers c ON c.id = d.customer_id
		 WHERE c.is_active = 1`)
	return out, err
}

// FindTokensByCustomerIDs returns the distinct tokens of the customers.
func (r *DeviceTokenRepo) FindTokensByCustomerIDs(ctx context.Context, customerIDs []string) ([]string, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	q, args, err := sq.Select("DISTINCT token").From("device_tokens").
		Where(sq.Eq{"customer_id": customerIDs}).ToSql()
	if err != nil {
		return nil, err
	}
	var out []string
	err = r.DB.SelectContext(ctx, &out, q, args...)
	return out, err
}

// DeleteUpdatedBefore removes tokens not refreshed since before.
func (r *DeviceTokenRepo) DeleteUpdatedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM device_tokens WHERE updated_at < ?", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
