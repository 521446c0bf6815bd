package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/promohub/promotions-api/internal/model"
)

const refreshColumns = "id, principal_id, principal_kind, token_hash, expires_at, revoked, device_info, created_at, updated_at"

// TokenRepo persists refresh-token records. Only the digest of a secret
// is stored, in the unique token_hash column.
type TokenRepo struct{ DB *sqlx.DB }

func NewTokenRepo(db *sqlx.DB) *TokenRepo { return &TokenRepo{DB: db} }

const insertRefresh = `INSERT INTO refresh_tokens (` + refreshColumns + `)
	VALUES (:id, :principal_id, :principal_kind, :token_hash, :expires_at, :revoked, :device_info, :created_at, :updated_at)`

// Save inserts a refresh token row.
func (r *TokenRepo) Save(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.DB.NamedExecContext(ctx, insertRefresh, t)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// FindByHash looks a record up by secret digest, whatever its state.
func (r *TokenRepo) FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	return r.getOne(ctx, "SELECT "+refreshColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1", hash)
}

func (r *TokenRepo) FindByID(ctx context.Context, id string) (*model.RefreshToken, error) {
	return r.getOne(ctx, "SELECT "+refreshColumns+" FROM refresh_tokens WHERE id=? LIMIT 1", id)
}

func (r *TokenRepo) getOne(ctx context.Context, q string, arg any) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.GetContext(ctx, &t, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByPrincipal lists every record of a principal, newest first.
func (r *TokenRepo) FindByPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind) ([]model.RefreshToken, error) {
	var out []model.RefreshToken
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE principal_id=? AND principal_kind=? ORDER BY created_at DESC",
		principalID, kind)
	return out, err
}

// Delete removes a row. A missing id reports false.
func (r *TokenRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id=?", id)
	return affected(res, err)
}

// Revoke marks one active row revoked. Already revoked or missing rows
// report false.
func (r *TokenRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1, updated_at=? WHERE id=? AND revoked=0", at, id)
	return affected(res, err)
}

// RevokeAllForPrincipal revokes every row of the principal that is still
// valid at at and returns how many there were. Expired rows are left to
// the sweep.
func (r *TokenRepo) RevokeAllForPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked=1, updated_at=?
		 WHERE principal_id=? AND principal_kind=? AND revoked=0 AND expires_at > ?`,
		at, principalID, kind, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredOrRevoked purges rows that can never be used again.
func (r *TokenRepo) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE revoked=1 OR expires_at<=?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActiveForPrincipal counts rows that are neither revoked nor expired.
func (r *TokenRepo) CountActiveForPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind, now time.Time) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM refresh_tokens WHERE principal_id=? AND principal_kind=? AND revoked=0 AND expires_at>?",
		principalID, kind, now)
	return n, err
}

// Rotate revokes oldID and inserts next in one transaction. It reports
// false, inserting nothing, when oldID was no longer active, which is how
// a concurrent replay of the same secret loses.
func (r *TokenRepo) Rotate(ctx context.Context, oldID string, next *model.RefreshToken) (bool, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1, updated_at=? WHERE id=? AND revoked=0", next.CreatedAt, oldID)
	if err != nil {
		return false, fmt.Errorf("revoke previous token: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}
	if _, err := tx.NamedExecContext(ctx, insertRefresh, next); err != nil {
		return false, fmt.Errorf("insert rotated token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
