package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/push"
	"github.com/promohub/promotions-api/internal/repository"
)

type fakeUsers struct {
	mu   sync.Mutex
	rows map[string]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{rows: map[string]model.User{}} }

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) Save(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.rows {
		if x.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	f.rows[u.ID] = *u
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[u.ID] = *u
	return nil
}

type fakeCustomers struct {
	mu   sync.Mutex
	rows map[string]model.Customer
}

func newFakeCustomers() *fakeCustomers { return &fakeCustomers{rows: map[string]model.Customer{}} }

func (f *fakeCustomers) FindByID(_ context.Context, id string) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCustomers) FindByEmail(_ context.Context, email string) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCustomers) Save(_ context.Context, c *model.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.rows {
		if x.Email == c.Email {
			return repository.ErrEmailExists
		}
	}
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeCustomers) Update(_ context.Context, c *model.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeCustomers) setActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.rows[id]
	c.Active = active
	f.rows[id] = c
}

type fakeStores map[string]model.Store

func (f fakeStores) FindByID(_ context.Context, id string) (*model.Store, error) {
	s, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

type fakeTokens struct {
	mu   sync.Mutex
	rows map[string]model.RefreshToken
}

func newFakeTokens() *fakeTokens { return &fakeTokens{rows: map[string]model.RefreshToken{}} }

func (f *fakeTokens) Save(_ context.Context, t *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.ID] = *t
	return nil
}

func (f *fakeTokens) FindByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTokens) FindByID(_ context.Context, id string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTokens) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

func (f *fakeTokens) FindByPrincipal(_ context.Context, id string, kind model.PrincipalKind) ([]model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range f.rows {
		if t.PrincipalID == id && t.PrincipalKind == kind {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTokens) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked, t.UpdatedAt = true, at
	f.rows[id] = t
	return true, nil
}

func (f *fakeTokens) RevokeAllForPrincipal(_ context.Context, id string, kind model.PrincipalKind, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.rows {
		if t.PrincipalID == id && t.PrincipalKind == kind && t.Valid(at) {
			t.Revoked, t.UpdatedAt = true, at
			f.rows[k] = t
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteExpiredOrRevoked(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.rows {
		if !t.Valid(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) CountActiveForPrincipal(_ context.Context, id string, kind model.PrincipalKind, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.rows {
		if t.PrincipalID == id && t.PrincipalKind == kind && t.Valid(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) Rotate(_ context.Context, oldID string, next *model.RefreshToken) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.rows[oldID]
	if !ok || old.Revoked {
		return false, nil
	}
	old.Revoked, old.UpdatedAt = true, next.CreatedAt
	f.rows[oldID] = old
	f.rows[next.ID] = *next
	return true, nil
}

func (f *fakeTokens) expire(hash string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.rows {
		if t.TokenHash == hash {
			t.ExpiresAt = at
			f.rows[k] = t
		}
	}
}

func (f *fakeTokens) all() []model.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.RefreshToken, 0, len(f.rows))
	for _, t := range f.rows {
		out = append(out, t)
	}
	return out
}

// plainHasher keeps tests fast; the bcrypt hasher has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Compare(p, h string) bool      { return h == "h:"+p }

type fakeDeviceStore struct {
	mu       sync.Mutex
	rows     map[string]model.DeviceToken
	inactive map[string]bool // customer ids
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{rows: map[string]model.DeviceToken{}, inactive: map[string]bool{}}
}

func (f *fakeDeviceStore) FindByCustomerID(ctx context.Context, customerID string) ([]model.DeviceToken, error) {
	return f.List(ctx, customerID)
}

func (f *fakeDeviceStore) List(_ context.Context, customerID string) ([]model.DeviceToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeviceToken
	for _, d := range f.rows {
		if customerID == "" || d.CustomerID == customerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeDeviceStore) Save(_ context.Context, d *model.DeviceToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.rows {
		if x.CustomerID == d.CustomerID && x.Token == d.Token {
			return repository.ErrConflict
		}
	}
	f.rows[d.ID] = *d
	return nil
}

func (f *fakeDeviceStore) Update(_ context.Context, d *model.DeviceToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[d.ID]; !ok {
		return repository.ErrNotFound
	}
	f.rows[d.ID] = *d
	return nil
}

func (f *fakeDeviceStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

func (f *fakeDeviceStore) DeleteByTokens(_ context.Context, customerID string, tokens []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[string]bool{}
	for _, t := range tokens {
		set[t] = true
	}
	var n int64
	for id, d := range f.rows {
		if set[d.Token] && (customerID == "" || d.CustomerID == customerID) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeDeviceStore) FindActiveTokens(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, d := range f.rows {
		if !f.inactive[d.CustomerID] {
			out = append(out, d.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeDeviceStore) FindTokensByCustomerIDs(_ context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []string
	for _, d := range f.rows {
		if want[d.CustomerID] {
			out = append(out, d.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeDeviceStore) DeleteUpdatedBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, d := range f.rows {
		if d.UpdatedAt.Before(before) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeDeviceStore) tokens(customerID string) []string {
	list, _ := f.List(context.Background(), customerID)
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Token
	}
	return out
}

// fakeGateway accepts every well-formed token unless its text contains
// "dead" (DeviceNotRegistered) or "fail" (generic ticket error).
type fakeGateway struct {
	mu       sync.Mutex
	batches  [][]push.Message
	failWith error
	receipts map[string]push.Receipt
}

func (g *fakeGateway) IsValidTokenFormat(t string) bool { return push.IsExpoPushToken(t) }

func (g *fakeGateway) SendBatch(_ context.Context, msgs []push.Message) ([]push.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches = append(g.batches, msgs)
	if g.failWith != nil {
		return nil, g.failWith
	}
	out := make([]push.Ticket, len(msgs))
	for i, m := range msgs {
		switch {
		case strings.Contains(m.To, "dead"):
			out[i] = push.Ticket{Status: push.StatusFailed, Details: &push.Details{Error: push.ErrorDeviceNotRegistered}}
		case strings.Contains(m.To, "fail"):
			out[i] = push.Ticket{Status: push.StatusFailed, Message: "rate"}
		default:
			out[i] = push.Ticket{Status: push.StatusOK, ID: "ticket-" + m.To}
		}
	}
	return out, nil
}

func (g *fakeGateway) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, b := range g.batches {
		for _, m := range b {
			out = append(out, m.To)
		}
	}
	return out
}

// receiptGateway adds receipt checking to fakeGateway.
type receiptGateway struct {
	*fakeGateway
}

func (g receiptGateway) CheckReceipts(_ context.Context, ids []string) (map[string]push.Receipt, error) {
	out := map[string]push.Receipt{}
	for _, id := range ids {
		if r, ok := g.receipts[id]; ok {
			out[id] = r
		} else {
			out[id] = push.Receipt{Status: push.StatusOK}
		}
	}
	return out, nil
}
