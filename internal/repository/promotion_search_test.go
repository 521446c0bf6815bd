package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPromotionSearch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPromotionRepo(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	where := "WHERE (p.is_active = ? AND s.is_active = ? AND p.starts_at > ? AND LOWER(p.title) LIKE ?)"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM promotions p JOIN stores s ON s.id = p.store_id "+where)).
		WithArgs(true, true, now, "%milk%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(where+" ORDER BY p.starts_at DESC, p.id LIMIT 2 OFFSET 2")).
		WithArgs(true, true, now, "%milk%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "store_id", "store_name", "price_cents", "discount_cents", "starts_at", "ends_at"}).
			AddRow("p3", "Milk 1L", "s1", "Corner Market", 250, 50, now.Add(time.Hour), nil))

	rows, total, err := repo.Search(context.Background(), PromotionSearchQuery{Title: "Milk", TimeFilter: "upcoming", Page: 2, PageSize: 2}, now)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, rows, 1)
	require.Equal(t, "Corner Market", rows[0].StoreName)
	require.InDelta(t, 2.0, rows[0].Price, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}
