package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kupapos/kupa/internal/logx"
	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/token"
	"github.com/kupapos/kupa/internal/utils"
)

// Scheme names reported in events and logs.
const (
	SchemeCookie = "cookie"
	SchemeLegacy = "legacy"
)

// Tokens is what a successful login hands to the transport.  Refresh and CSRF
// fields stay empty for strategies that do not use them.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}

// Strategy is a session scheme: how tokens are minted, checked and revoked.
type Strategy interface {
	Name() string
	IssueTokens(ctx context.Context, p model.Principal) (Tokens, error)
	Verify(ctx context.Context, accessToken string) (model.Principal, bool)
	Revoke(ctx context.Context, accessToken, refreshToken string) error
}

// RefreshGrant identifies a verified, still-current refresh token.
type RefreshGrant struct {
	UserID string
	claims token.RefreshClaims
}

// Rotator is implemented by strategies that support refresh.
type Rotator interface {
	VerifyRefresh(ctx context.Context, refreshToken string) (RefreshGrant, bool)
	// Rotate consumes the grant and issues a new access/refresh pair.  When
	// the grant was already consumed it returns ErrSessionExpired.
	Rotate(ctx context.Context, grant RefreshGrant, p model.Principal) (Tokens, error)
}

// RotatingStrategy is the dual-token scheme: a short-lived access token with
// a revocable jti, a single-use refresh token and a CSRF value.
type RotatingStrategy struct{ codec *token.Codec }

func NewRotatingStrategy(codec *token.Codec) *RotatingStrategy {
	return &RotatingStrategy{codec: codec}
}

func (s *RotatingStrategy) Name() string { return SchemeCookie }

func (s *RotatingStrategy) IssueTokens(ctx context.Context, p model.Principal) (Tokens, error) {
	access, err := s.codec.IssueAccess(p)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.codec.IssueRefresh(ctx, p.ID)
	if err != nil {
		return Tokens{}, err
	}
	csrf, err := utils.NewCSRFToken()
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		CSRFToken:        csrf,
	}, nil
}

// Verify accepts only access tokens carrying a jti.  Legacy tokens have none
// and could not be revoked at logout.
func (s *RotatingStrategy) Verify(ctx context.Context, accessToken string) (model.Principal, bool) {
	claims, ok := s.codec.VerifyAccess(ctx, accessToken)
	if !ok || claims.ID == "" {
		return model.Principal{}, false
	}
	return claims.Principal(), true
}

// Revoke blacklists the access token and drops the refresh pointer.  Tokens
// that fail verification are skipped; store errors are joined and returned.
func (s *RotatingStrategy) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	if claims, ok := s.codec.VerifyAccess(ctx, accessToken); ok {
		if err := s.codec.Blacklist(ctx, claims); err != nil {
			errs = append(errs, fmt.Errorf("blacklist access token: %w", err))
		}
	}
	if claims, ok := s.codec.VerifyRefresh(ctx, refreshToken); ok {
		if err := s.codec.RevokeRefresh(ctx, claims.Subject); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *RotatingStrategy) VerifyRefresh(ctx context.Context, refreshToken string) (RefreshGrant, bool) {
	claims, ok := s.codec.VerifyRefresh(ctx, refreshToken)
	if !ok {
		return RefreshGrant{}, false
	}
	return RefreshGrant{UserID: claims.Subject, claims: claims}, true
}

func (s *RotatingStrategy) Rotate(ctx context.Context, grant RefreshGrant, p model.Principal) (Tokens, error) {
	consumed, err := s.codec.ConsumeRefresh(ctx, grant.claims)
	if err != nil {
		return Tokens{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if !consumed {
		logx.FromContext(ctx).Info("refresh token already rotated", "user_id", grant.UserID)
		return Tokens{}, ErrSessionExpired
	}
	access, err := s.codec.IssueAccess(p)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.codec.IssueRefresh(ctx, p.ID)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// LegacyStrategy issues one bearer token per login.  It has no jti, so logout
// cannot revoke it and the token lives until it expires.
type LegacyStrategy struct{ codec *token.Codec }

func NewLegacyStrategy(codec *token.Codec) *LegacyStrategy { return &LegacyStrategy{codec: codec} }

func (s *LegacyStrategy) Name() string { return SchemeLegacy }

func (s *LegacyStrategy) IssueTokens(_ context.Context, p model.Principal) (Tokens, error) {
	tok, err := s.codec.IssueLegacy(p)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: tok.Token, AccessExpiresAt: tok.ExpiresAt}, nil
}

func (s *LegacyStrategy) Verify(ctx context.Context, accessToken string) (model.Principal, bool) {
	claims, ok := s.codec.VerifyAccess(ctx, accessToken)
	if !ok {
		return model.Principal{}, false
	}
	return claims.Principal(), true
}

func (s *LegacyStrategy) Revoke(context.Context, string, string) error { return nil }
