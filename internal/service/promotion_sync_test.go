package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/repository"
)

type memCatalog struct {
	mu         sync.Mutex
	stores     map[string]model.Store
	promotions map[string]model.Promotion
	favorites  map[string]model.Favorite
	failUpsert error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		stores:     map[string]model.Store{},
		promotions: map[string]model.Promotion{},
		favorites:  map[string]model.Favorite{},
	}
}

func (m *memCatalog) Upsert(_ context.Context, s *model.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[s.ID] = *s
	return nil
}

func (m *memCatalog) UpsertMany(_ context.Context, ps []model.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	for _, p := range ps {
		m.promotions[p.ID] = p
	}
	return nil
}

func (m *memCatalog) FindByID(_ context.Context, id string) (*model.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memCatalog) Add(_ context.Context, f *model.Favorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites[f.CustomerID+"/"+f.PromotionID] = *f
	return nil
}

func (m *memCatalog) Remove(_ context.Context, customerID, promotionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := customerID + "/" + promotionID
	_, ok := m.favorites[k]
	delete(m.favorites, k)
	return ok, nil
}

func (m *memCatalog) FindByCustomerID(_ context.Context, customerID string) ([]model.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Favorite
	for _, f := range m.favorites {
		if f.CustomerID == customerID {
			out = append(out, f)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	calls []int
	store model.Store
}

func (r *recordingNotifier) Notify(_ context.Context, ps []model.Promotion, s model.Store) {
	r.calls = append(r.calls, len(ps))
	r.store = s
}

var admin = model.Identity{ID: "u1", Role: model.RoleAdmin, Kind: model.KindUser}

func syncInput() SyncInput {
	return SyncInput{
		Store:      model.Store{ID: "s1", Name: " Corner Market "},
		Promotions: []model.Promotion{{ID: "p1", Title: "Milk"}, {ID: "p2", Title: "Bread"}},
	}
}

func TestSyncStoresAndNotifies(t *testing.T) {
	t.Parallel()
	cat, rec := newMemCatalog(), &recordingNotifier{}
	svc := NewPromotionSync(cat, cat, rec, zap.NewNop().Sugar())

	res, err := svc.Sync(context.Background(), admin, syncInput())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalSynced)
	assert.Equal(t, "Corner Market", cat.stores["s1"].Name)
	assert.Equal(t, "s1", cat.promotions["p2"].StoreID)
	assert.Equal(t, []int{2}, rec.calls)
	assert.Equal(t, "s1", rec.store.ID)
}

func TestSyncAuthorization(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		actor model.Identity
		ok    bool
	}{
		{"admin", admin, true},
		{"manager of the store", model.Identity{ID: "u2", Role: model.RoleStoreManager, StoreID: "s1", Kind: model.KindUser}, true},
		{"operator of another store", model.Identity{ID: "u3", Role: model.RoleStoreOperator, StoreID: "s2", Kind: model.KindUser}, false},
		{"staff without store", model.Identity{ID: "u4", Role: model.RoleStoreOperator, Kind: model.KindUser}, false},
		{"customer", model.Identity{ID: "c1", Role: model.RoleCustomer, Kind: model.KindCustomer}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recordingNotifier{}
			svc := NewPromotionSync(newMemCatalog(), newMemCatalog(), rec, zap.NewNop().Sugar())
			_, err := svc.Sync(context.Background(), tc.actor, syncInput())
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrForbidden)
			require.Empty(t, rec.calls)
		})
	}
}

func TestSyncValidation(t *testing.T) {
	t.Parallel()
	svc := NewPromotionSync(newMemCatalog(), newMemCatalog(), nil, zap.NewNop().Sugar())

	in := syncInput()
	in.Store.Name = "  "
	_, err := svc.Sync(context.Background(), admin, in)
	require.Equal(t, KindValidation, KindOf(err))

	in = syncInput()
	in.Promotions[1].Title = ""
	_, err = svc.Sync(context.Background(), admin, in)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSyncEmptyBatchSkipsNotifier(t *testing.T) {
	t.Parallel()
	rec := &recordingNotifier{}
	svc := NewPromotionSync(newMemCatalog(), newMemCatalog(), rec, zap.NewNop().Sugar())

	in := syncInput()
	in.Promotions = nil
	res, err := svc.Sync(context.Background(), admin, in)
	require.NoError(t, err)
	require.Zero(t, res.TotalSynced)
	require.Empty(t, rec.calls)
}

func TestSyncPersistenceFailure(t *testing.T) {
	t.Parallel()
	cat, rec := newMemCatalog(), &recordingNotifier{}
	cat.failUpsert = errors.New("deadlock")
	svc := NewPromotionSync(cat, cat, rec, zap.NewNop().Sugar())

	_, err := svc.Sync(context.Background(), admin, syncInput())
	require.Error(t, err)
	require.Equal(t, KindInternal, KindOf(err))
	require.Empty(t, rec.calls)
}

func TestFavorites(t *testing.T) {
	t.Parallel()
	cat := newMemCatalog()
	cat.promotions["p1"] = model.Promotion{ID: "p1", StoreID: "s1"}
	svc := NewFavoriteService(cat, cat)
	ctx := context.Background()

	_, err := svc.Add(ctx, "c1", "missing")
	require.ErrorIs(t, err, ErrPromotionNotFound)
	require.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.Add(ctx, "c1", "p1")
	require.NoError(t, err)
	list, err := svc.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	ok, err := svc.Remove(ctx, "c1", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Remove(ctx, "c1", "p1")
	require.NoError(t, err)
	require.False(t, ok)
}

type blockingDispatcher struct {
	release chan struct{}
	mu      sync.Mutex
	got     []model.Store
	ctxErr  error
}

func (b *blockingDispatcher) Dispatch(ctx context.Context, _ []model.Promotion, s model.Store) DispatchReport {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, s)
	b.ctxErr = ctx.Err()
	return DispatchReport{}
}

func TestAsyncNotifierOutlivesRequestContext(t *testing.T) {
	t.Parallel()
	d := &blockingDispatcher{release: make(chan struct{})}
	n := NewAsyncNotifier(d, time.Minute, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, []model.Promotion{{ID: "p1"}}, model.Store{ID: "s1"})
	n.Notify(ctx, nil, model.Store{ID: "ignored"})
	cancel()
	close(d.release)
	n.Wait()

	require.Len(t, d.got, 1)
	require.NoError(t, d.ctxErr)
}

type panickingDispatcher struct{}

func (panickingDispatcher) Dispatch(context.Context, []model.Promotion, model.Store) DispatchReport {
	panic("dispatcher exploded")
}

func TestAsyncNotifierRecovers(t *testing.T) {
	t.Parallel()
	n := NewAsyncNotifier(panickingDispatcher{}, 0, zap.NewNop().Sugar())
	n.Notify(context.Background(), []model.Promotion{{ID: "p1"}}, model.Store{ID: "s1"})
	n.Wait()
}
