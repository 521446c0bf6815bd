package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PromotionSearchQuery filters and paginates the public promotion listing.
type PromotionSearchQuery struct {
	Title      string
	Store      string // store id or a fragment of its name
	TimeFilter string // "current" (default), "upcoming" or "any"
	Page       int
	PageSize   int
}

// PromotionRow is a promotion joined with its store for listings.
type PromotionRow struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	StoreID       string     `db:"store_id" json:"store_id"`
	StoreName     string     `db:"store_name" json:"store_name"`
	PriceCents    int64      `db:"price_cents" json:"price_cents"`
	DiscountCents int64      `db:"discount_cents" json:"discount_cents"`
	StartsAt      *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt        *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Price         float64    `db:"-" json:"price"`
}

// Search lists active promotions of active stores. It returns the page and
// the total number of matches.
func (r *PromotionRepo) Search(ctx context.Context, q PromotionSearchQuery, now time.Time) ([]PromotionRow, int64, error) {
	where := sq.And{sq.Eq{"p.is_active": true}, sq.Eq{"s.is_active": true}}

	switch strings.ToLower(q.TimeFilter) {
	case "any":
	case "upcoming":
		where = append(where, sq.Gt{"p.starts_at": now})
	default:
		where = append(where,
			sq.Or{sq.Eq{"p.starts_at": nil}, sq.LtOrEq{"p.starts_at": now}},
			sq.Or{sq.Eq{"p.ends_at": nil}, sq.GtOrEq{"p.ends_at": now}},
		)
	}
	if q.Title != "" {
		where = append(where, sq.Like{"LOWER(p.title)": "%" + strings.ToLower(q.Title) + "%"})
	}
	if q.Store != "" {
		where = append(where, sq.Or{
			sq.Eq{"s.id": q.Store},
			sq.Like{"LOWER(s.name)": "%" + strings.ToLower(q.Store) + "%"},
		})
	}

	from := "promotions p JOIN stores s ON s.id = p.store_id"

	countSQL, args, err := sq.Select("COUNT(*)").From(from).Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.DB.GetContext(ctx, &total, countSQL, args...); err != nil {
		return nil, 0, err
	}

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	dataSQL, args, err := sq.Select(
		"p.id", "p.title", "p.store_id", "s.name AS store_name",
		"p.price_cents", "p.discount_cents", "p.starts_at", "p.ends_at",
	).From(from).Where(where).
		OrderBy("p.starts_at DESC", "p.id").
		Limit(uint64(size)).Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	out := make([]PromotionRow, 0, size)
	if err := r.DB.SelectContext(ctx, &out, dataSQL, args...); err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Price = float64(out[i].PriceCents-out[i].DiscountCents) / 100.0
	}
	return out, total, nil
}
