package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/repository"
	"github.com/promohub/promotions-api/internal/utils"
)

// maxDeviceInfo bounds the stored device descriptor, in characters.
const maxDeviceInfo = 512

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Save(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
}

type CustomerStore interface {
	FindByID(ctx context.Context, id string) (*model.Customer, error)
	FindByEmail(ctx context.Context, email string) (*model.Customer, error)
	Save(ctx context.Context, c *model.Customer) error
	Update(ctx context.Context, c *model.Customer) error
}

type StoreFinder interface {
	FindByID(ctx context.Context, id string) (*model.Store, error)
}

// RefreshTokenStore persists refresh-token records. Lookups of missing
// rows return repository.ErrNotFound; delete and revoke of missing rows
// report false rather than failing.
type RefreshTokenStore interface {
	Save(ctx context.Context, t *model.RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error)
	FindByID(ctx context.Context, id string) (*model.RefreshToken, error)
	Delete(ctx context.Context, id string) (bool, error)
	FindByPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind) ([]model.RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllForPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind, at time.Time) (int64, error)
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
	CountActiveForPrincipal(ctx context.Context, principalID string, kind model.PrincipalKind, now time.Time) (int, error)
	Rotate(ctx context.Context, oldID string, next *model.RefreshToken) (bool, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hash string) bool
}

type RegisterUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	StoreID  string
}

type RegisterCustomerInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

type Credentials struct {
	Email    string
	Password string
}

// AuthResult is returned by every operation that opens a session.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Principal        model.Identity
}

type LogoutResult struct {
	Success bool
	Message string
}

// SessionManager implements the refresh-token session lifecycle for both
// principal kinds.
type SessionManager struct {
	users     UserStore
	customers CustomerStore
	stores    StoreFinder
	tokens    RefreshTokenStore
	hasher    PasswordHasher
	codec     *utils.TokenCodec
	log       *zap.SugaredLogger

	// compared against when an email is unknown so both failure paths
	// spend the same hashing time
	decoyHash string
}

func NewSessionManager(users UserStore, customers CustomerStore, stores StoreFinder, tokens RefreshTokenStore,
	hasher PasswordHasher, codec *utils.TokenCodec, log *zap.SugaredLogger) *SessionManager {
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warnw("decoy password hash unavailable", "error", err)
	}
	return &SessionManager{
		users:     users,
		customers: customers,
		stores:    stores,
		tokens:    tokens,
		hasher:    hasher,
		codec:     codec,
		log:       log,
		decoyHash: decoy,
	}
}

// principal is the kind-independent view used by login, refresh and validate.
type principal struct {
	identity     model.Identity
	passwordHash string
	active       bool
}

func (s *SessionManager) findByEmail(ctx context.Context, kind model.PrincipalKind, email string) (*principal, error) {
	switch kind {
	case model.KindUser:
		u, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, absentIfNotFound(err)
		}
		return &principal{identity: u.Identity(), passwordHash: u.PasswordHash, active: u.Active}, nil
	case model.KindCustomer:
		c, err := s.customers.FindByEmail(ctx, email)
		if err != nil {
			return nil, absentIfNotFound(err)
		}
		return &principal{identity: c.Identity(), passwordHash: c.PasswordHash, active: c.Active}, nil
	}
	return nil, invalidInput("unknown principal type")
}

func (s *SessionManager) findByID(ctx context.Context, kind model.PrincipalKind, id string) (*principal, error) {
	switch kind {
	case model.KindUser:
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, absentIfNotFound(err)
		}
		return &principal{identity: u.Identity(), active: u.Active}, nil
	case model.KindCustomer:
		c, err := s.customers.FindByID(ctx, id)
		if err != nil {
			return nil, absentIfNotFound(err)
		}
		return &principal{identity: c.Identity(), active: c.Active}, nil
	}
	return nil, nil
}

// absentIfNotFound turns repository.ErrNotFound into a nil error so the
// caller sees (nil, nil) for a missing row.
func absentIfNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// RegisterUser creates a web-panel user and opens its first session.
func (s *SessionManager) RegisterUser(ctx context.Context, in RegisterUserInput, device string) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || in.Password == "" || name == "" {
		return nil, invalidInput("name, email and password are required")
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalidInput("password must be at most 72 bytes")
	}
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if role == "" {
		role = model.RoleStoreOperator
	}
	if !model.IsStaffRole(role) {
		return nil, invalidInput("unknown role " + role)
	}

	existing, err := s.findByEmail(ctx, model.KindUser, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	var storeID *string
	if sid := strings.TrimSpace(in.StoreID); sid != "" {
		if _, err := s.stores.FindByID(ctx, sid); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrStoreNotFound
			}
			return nil, fmt.Errorf("lookup store: %w", err)
		}
		storeID = &sid
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.codec.Now()
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		StoreID:      storeID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.log.Infow("user registered", "user_id", u.ID, "role", role)
	return s.openSession(ctx, u.Identity(), device)
}

// RegisterCustomer creates a mobile customer and opens its first session.
func (s *SessionManager) RegisterCustomer(ctx context.Context, in RegisterCustomerInput, device string) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || in.Password == "" || name == "" {
		return nil, invalidInput("name, email and password are required")
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalidInput("password must be at most 72 bytes")
	}

	existing, err := s.findByEmail(ctx, model.KindCustomer, email)
	if err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.codec.Now()
	c := &model.Customer{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		c.Phone = &phone
	}
	if err := s.customers.Save(ctx, c); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("save customer: %w", err)
	}
	s.log.Infow("customer registered", "customer_id", c.ID)
	return s.openSession(ctx, c.Identity(), device)
}

// Login authenticates by email and password. An unknown email and a wrong
// password both yield ErrInvalidCredentials.
func (s *SessionManager) Login(ctx context.Context, kind model.PrincipalKind, creds Credentials, device string) (*AuthResult, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, invalidInput("email and password are required")
	}

	p, err := s.findByEmail(ctx, kind, email)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", kind, err)
	}
	if p == nil {
		if s.decoyHash != "" {
			s.hasher.Compare(creds.Password, s.decoyHash)
		}
		return nil, ErrInvalidCredentials
	}
	if !p.active {
		return nil, ErrAccountInactive
	}
	if !s.hasher.Compare(creds.Password, p.passwordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, p.identity, device)
}

// Refresh exchanges a refresh secret for a new pair. The presented record
// is revoked and its replacement inserted in one store call, so the old
// secret is dead even though it had not expired. A stale record found here
// is deleted on the spot.
func (s *SessionManager) Refresh(ctx context.Context, secret, device string) (*AuthResult, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrRefreshTokenNotFound
	}
	rec, err := s.tokens.FindByHash(ctx, s.codec.HashRefreshSecret(secret))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := s.codec.Now()
	if !rec.Valid(now) {
		if _, err := s.tokens.Delete(ctx, rec.ID); err != nil {
			s.log.Warnw("purge stale refresh token failed", "token_id", rec.ID, "error", err)
		}
		s.log.Infow("stale refresh token presented", "token_id", rec.ID, "state", rec.State(now),
			"principal_id", rec.PrincipalID)
		return nil, ErrRefreshTokenInvalid
	}

	p, err := s.findByID(ctx, rec.PrincipalKind, rec.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", rec.PrincipalKind, err)
	}
	if p == nil || !p.active {
		if _, err := s.tokens.Revoke(ctx, rec.ID, now); err != nil {
			s.log.Warnw("revoke orphaned refresh token failed", "token_id", rec.ID, "error", err)
		}
		return nil, ErrPrincipalUnavailable
	}

	if strings.TrimSpace(device) == "" && rec.DeviceInfo != nil {
		device = *rec.DeviceInfo
	}
	pair, err := s.codec.IssueTokenPair(utils.ClaimsFor(p.identity))
	if err != nil {
		return nil, err
	}
	next := s.newRecord(p.identity, pair, device)
	rotated, err := s.tokens.Rotate(ctx, rec.ID, next)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// another request rotated the same secret first
		return nil, ErrRefreshTokenInvalid
	}
	return newAuthResult(p.identity, pair), nil
}

// Logout never fails from the caller's point of view. Access tokens are
// stateless, so a valid one only gets acknowledged. A refresh secret, when
// supplied, is revoked on a best effort basis.
func (s *SessionManager) Logout(ctx context.Context, accessToken, refreshSecret string) LogoutResult {
	if claims, ok := s.codec.VerifyAccessToken(accessToken); ok {
		s.log.Debugw("logout", "principal_id", claims.Subject, "type", claims.Kind)
	}
	if strings.TrimSpace(refreshSecret) != "" {
		if _, err := s.Revoke(ctx, refreshSecret); err != nil {
			s.log.Warnw("logout revoke failed", "error", err)
		}
	}
	return LogoutResult{Success: true, Message: "logged out"}
}

// Revoke invalidates one refresh secret. An unknown or already revoked
// secret reports false with no error.
func (s *SessionManager) Revoke(ctx context.Context, secret string) (bool, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, nil
	}
	rec, err := s.tokens.FindByHash(ctx, s.codec.HashRefreshSecret(secret))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup refresh token: %w", err)
	}
	ok, err := s.tokens.Revoke(ctx, rec.ID, s.codec.Now())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return ok, nil
}

// RevokeAll revokes every active session of a principal and returns how
// many were active.
func (s *SessionManager) RevokeAll(ctx context.Context, principalID string, kind model.PrincipalKind) (int64, error) {
	n, err := s.tokens.RevokeAllForPrincipal(ctx, principalID, kind, s.codec.Now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.Infow("sessions revoked", "principal_id", principalID, "type", kind, "count", n)
	return n, nil
}

// Validate resolves a bearer access token to the identity of an active
// principal.
func (s *SessionManager) Validate(ctx context.Context, accessToken string) (*model.Identity, error) {
	claims, ok := s.codec.VerifyAccessToken(accessToken)
	if !ok {
		return nil, ErrInvalidAccessToken
	}
	p, err := s.findByID(ctx, claims.Kind, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", claims.Kind, err)
	}
	if p == nil || !p.active {
		return nil, ErrPrincipalUnavailable
	}
	id := p.identity
	return &id, nil
}

// Sessions lists a principal's refresh records, newest first, together
// with the number still active.
func (s *SessionManager) Sessions(ctx context.Context, principalID string, kind model.PrincipalKind) ([]model.RefreshToken, int, error) {
	list, err := s.tokens.FindByPrincipal(ctx, principalID, kind)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	active, err := s.tokens.CountActiveForPrincipal(ctx, principalID, kind, s.codec.Now())
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return list, active, nil
}

// Sweep deletes every expired or revoked refresh record.
func (s *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpiredOrRevoked(ctx, s.codec.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	return n, nil
}

func (s *SessionManager) openSession(ctx context.Context, id model.Identity, device string) (*AuthResult, error) {
	pair, err := s.codec.IssueTokenPair(utils.ClaimsFor(id))
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, s.newRecord(id, pair, device)); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return newAuthResult(id, pair), nil
}

func (s *SessionManager) newRecord(id model.Identity, pair utils.TokenPair, device string) *model.RefreshToken {
	now := s.codec.Now()
	rec := &model.RefreshToken{
		ID:            uuid.NewString(),
		PrincipalID:   id.ID,
		PrincipalKind: id.Kind,
		TokenHash:     s.codec.HashRefreshSecret(pair.RefreshSecret),
		ExpiresAt:     pair.RefreshExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if device = strings.TrimSpace(device); device != "" {
		device = truncateRunes(strings.ToValidUTF8(device, ""), maxDeviceInfo)
		rec.DeviceInfo = &device
	}
	return rec
}

func newAuthResult(id model.Identity, pair utils.TokenPair) *AuthResult {
	return &AuthResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshSecret,
		ExpiresIn:        pair.AccessTTL,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Principal:        id,
	}
}

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
