// Package token signs and verifies the HS256 tokens behind a session and
// keeps their revocation state in a key-value store.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kupapos/kupa/internal/logx"
	"github.com/kupapos/kupa/internal/model"
)

var ErrMissingSecret = errors.New("token: signing secret is empty")

// Store is the subset of the revocation store the codec depends on.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// Issued is a freshly signed token.  ID is the jti for access tokens and the
// tokenId for refresh tokens; it is empty for legacy tokens.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	ID        string
}

type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	LegacyTTL  time.Duration
}

type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	legacyTTL  time.Duration
	store      Store
	now        func() time.Time
}

func NewCodec(opts Options, store Store) (*Codec, error) {
	if opts.Secret == "" {
		return nil, ErrMissingSecret
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 || opts.LegacyTTL <= 0 {
		return nil, errors.New("token: ttls must be positive")
	}
	return &Codec{
		secret:     []byte(opts.Secret),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		legacyTTL:  opts.LegacyTTL,
		store:      store,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source.  Tests use it to age tokens.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }
func (c *Codec) LegacyTTL() time.Duration  { return c.legacyTTL }

// IssueAccess signs a short-lived access token with a fresh jti.
func (c *Codec) IssueAccess(p model.Principal) (Issued, error) {
	jti := uuid.NewString()
	tok, exp, err := c.signAccess(p, jti, c.accessTTL)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, ExpiresAt: exp, ID: jti}, nil
}

// IssueLegacy signs a single bearer token without a jti.  Such tokens cannot
// be blacklisted and stay valid until they expire.
func (c *Codec) IssueLegacy(p model.Principal) (Issued, error) {
	tok, exp, err := c.signAccess(p, "", c.legacyTTL)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, ExpiresAt: exp}, nil
}

// IssueRefresh signs a refresh token and records its tokenId as the only
// live refresh token of the user, replacing any previous one.
func (c *Codec) IssueRefresh(ctx context.Context, userID string) (Issued, error) {
	tokenID := uuid.NewString()
	now := c.now()
	exp := jwt.NewNumericDate(now.Add(c.refreshTTL))
	claims := RefreshClaims{
		TokenID: tokenID,
		Type:    refreshType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	tok, err := c.sign(claims)
	if err != nil {
		return Issued{}, err
	}
	if err := c.store.Set(ctx, RefreshKey(userID), tokenID, c.refreshTTL); err != nil {
		return Issued{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Issued{Token: tok, ExpiresAt: exp.Time, ID: tokenID}, nil
}

// VerifyAccess checks signature, expiry and claim shape, then makes sure the
// jti is not blacklisted.  A store failure rejects the token.
func (c *Codec) VerifyAccess(ctx context.Context, raw string) (AccessClaims, bool) {
	var claims AccessClaims
	if !c.parse(raw, &claims) {
		return AccessClaims{}, false
	}
	if claims.Subject == "" || claims.BusinessID == "" || !model.Role(claims.Role).Valid() {
		return AccessClaims{}, false
	}
	if claims.ID == "" {
		return claims, true
	}
	_, revoked, err := c.store.Get(ctx, BlacklistKey(claims.ID))
	if err != nil {
		logx.FromContext(ctx).Warn("blacklist lookup failed", "jti", claims.ID, "error", err)
		return AccessClaims{}, false
	}
	if revoked {
		return AccessClaims{}, false
	}
	return claims, true
}

// VerifyRefresh checks the token and that its tokenId is still the one on
// record for the user.
func (c *Codec) VerifyRefresh(ctx context.Context, raw string) (RefreshClaims, bool) {
	var claims RefreshClaims
	if !c.parse(raw, &claims) {
		return RefreshClaims{}, false
	}
	if claims.Type != refreshType || claims.Subject == "" || claims.TokenID == "" {
		return RefreshClaims{}, false
	}
	stored, ok, err := c.store.Get(ctx, RefreshKey(claims.Subject))
	if err != nil {
		logx.FromContext(ctx).Warn("refresh lookup failed", "user_id", claims.Subject, "error", err)
		return RefreshClaims{}, false
	}
	if !ok || stored != claims.TokenID {
		return RefreshClaims{}, false
	}
	return claims, true
}

// Blacklist revokes an access token until it would have expired anyway.  The
// entry never outlives the access TTL; tokens already past expiry are skipped.
func (c *Codec) Blacklist(ctx context.Context, claims AccessClaims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(c.now())
	if ttl > c.accessTTL {
		ttl = c.accessTTL
	}
	if ttl <= 0 {
		return nil
	}
	return c.store.Set(ctx, BlacklistKey(claims.ID), blacklistMarker, ttl)
}

// RevokeRefresh drops the refresh pointer of a user.
func (c *Codec) RevokeRefresh(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, RefreshKey(userID))
}

// ConsumeRefresh atomically removes the refresh pointer if it still names
// claims.TokenID.  Exactly one of several concurrent callers presenting the
// same token gets true.
func (c *Codec) ConsumeRefresh(ctx context.Context, claims RefreshClaims) (bool, error) {
	return c.store.CompareAndDelete(ctx, RefreshKey(claims.Subject), claims.TokenID)
}

func (c *Codec) signAccess(p model.Principal, jti string, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := AccessClaims{
		Role:       string(p.Role),
		BusinessID: p.BusinessID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	tok, err := c.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp.Time, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims) bool {
	if raw == "" {
		return false
	}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return err == nil && tok.Valid
}
