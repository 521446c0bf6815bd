// Package utils holds the token codec, TTL parsing and password hashing
// primitives used by the session layer.
package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
)

// refreshSecretBytes is the entropy of a refresh secret: 48 bytes, 96 hex chars.
const refreshSecretBytes = 48

// Claims is the payload of an access token. Subject carries the principal id.
type Claims struct {
	Email   string              `json:"email"`
	Role    string              `json:"role"`
	Kind    model.PrincipalKind `json:"type"`
	StoreID string              `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsFor builds the access-token claims of an identity.
func ClaimsFor(id model.Identity) Claims {
	return Claims{
		Email:            id.Email,
		Role:             id.Role,
		Kind:             id.Kind,
		StoreID:          id.StoreID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.ID},
	}
}

// TokenPair is the result of IssueTokenPair. RefreshSecret is the raw
// bearer value handed to the client; only its digest is persisted.
type TokenPair struct {
	AccessToken      string
	RefreshSecret    string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenCodec signs and verifies HS256 access tokens and mints opaque
// refresh secrets. It holds no per-request state.
type TokenCodec struct {
	signingKey []byte
	digestKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec resolves the configured TTL strings once. An empty
// signing secret is rejected.
func NewTokenCodec(cfg config.Auth) (*TokenCodec, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("token codec: empty signing secret")
	}
	digest := cfg.RefreshTokenSecret
	if digest == "" {
		digest = cfg.JWTSecret
	}
	return &TokenCodec{
		signingKey: []byte(cfg.JWTSecret),
		digestKey:  []byte(digest),
		accessTTL:  ParseTTL(cfg.AccessTokenTTL),
		refreshTTL: ParseTTL(cfg.RefreshTokenTTL),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// AccessExpiryDate is the absolute expiry of an access token issued now.
func (c *TokenCodec) AccessExpiryDate() time.Time { return c.now().Add(c.accessTTL) }

// RefreshExpiryDate is the absolute expiry of a refresh secret issued now.
func (c *TokenCodec) RefreshExpiryDate() time.Time { return c.now().Add(c.refreshTTL) }

// SignAccessToken stamps iat, exp and a fresh jti onto claims and signs
// them. The caller sets Subject.
func (c *TokenCodec) SignAccessToken(claims Claims) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.accessTTL)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken returns the decoded claims when the signature, the
// algorithm and the expiry all check out. Any failure, including garbage
// input, reports false.
func (c *TokenCodec) VerifyAccessToken(raw string) (*Claims, bool) {
	if raw == "" {
		return nil, false
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return c.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, false
	}
	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, false
	}
	return claims, true
}

// GenerateRefreshSecret returns a random hex string with 384 bits of
// entropy. It is independent of any signing key.
func GenerateRefreshSecret() (string, error) {
	return randomHex(refreshSecretBytes)
}

// IssueTokenPair signs an access token for claims and mints a refresh secret.
func (c *TokenCodec) IssueTokenPair(claims Claims) (TokenPair, error) {
	access, accessExp, err := c.SignAccessToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	secret, err := GenerateRefreshSecret()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshSecret:    secret,
		AccessTTL:        c.accessTTL,
		RefreshTTL:       c.refreshTTL,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: c.RefreshExpiryDate(),
	}, nil
}

// HashRefreshSecret returns the hex HMAC-SHA256 of secret. This digest is
// what the refresh_tokens table stores and is looked up by.
func (c *TokenCodec) HashRefreshSecret(secret string) string {
	mac := hmac.New(sha256.New, c.digestKey)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Now exposes the codec clock so callers stamp records consistently.
func (c *TokenCodec) Now() time.Time { return c.now() }

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
