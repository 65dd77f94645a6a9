package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/security"

	"go.opentelemetry.io/otel/attribute"
)

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	CSRFToken        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService issues access/refresh pairs. Only the fingerprint of the
// single live refresh token is persisted, on the user row.
type TokenService struct {
	jwtMgr     *security.JWTManager
	users      repository.UserRepository
	fp         *security.Fingerprinter
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, users repository.UserRepository, fp *security.Fingerprinter, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwtMgr:     jwtMgr,
		users:      users,
		fp:         fp,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) IssuePair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	pair, fingerprint, err := s.mint(user)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshFingerprint(ctx, user.ID, fingerprint); err != nil {
		return nil, fmt.Errorf("store refresh fingerprint: %w", err)
	}
	user.RefreshTokenFingerprint = fingerprint
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The stored fingerprint is
// swapped conditionally, so a given refresh token rotates at most once.
func (s *TokenService) Rotate(ctx context.Context, presented string) (_ *TokenPair, _ *domain.User, err error) {
	ctx, span := observability.StartSpan(ctx, "token.rotate")
	defer func() { observability.EndSpan(span, err) }()

	claims, err := s.jwtMgr.ParseRefreshToken(presented)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			observability.RecordRefreshSecurityEvent(ctx, "expired")
			return nil, nil, ErrTokenExpired
		}
		observability.RecordRefreshSecurityEvent(ctx, "malformed")
		return nil, nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordRefreshSecurityEvent(ctx, "malformed")
		return nil, nil, ErrInvalidToken
	}
	span.SetAttributes(attribute.Int64("user.id", int64(userID)))

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordRefreshSecurityEvent(ctx, "unknown_user")
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	stored := user.RefreshTokenFingerprint
	if !s.refreshMatches(stored, presented) {
		observability.RecordRefreshSecurityEvent(ctx, "fingerprint_mismatch")
		return nil, nil, ErrInvalidToken
	}
	if !user.IsActive() {
		observability.RecordRefreshSecurityEvent(ctx, "inactive")
		return nil, nil, ErrAccountInactive
	}

	pair, next, err := s.mint(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.SwapRefreshFingerprint(ctx, user.ID, stored, next); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			observability.RecordRefreshSecurityEvent(ctx, "concurrent_rotation")
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	user.RefreshTokenFingerprint = next
	observability.RecordRefreshSecurityEvent(ctx, "rotated")
	return pair, user, nil
}

// refreshMatches accepts the keyed fingerprint and, as a second branch, rows
// written before fingerprinting that still hold the raw token.
// TODO: drop the legacy branch once every live session has rotated once.
func (s *TokenService) refreshMatches(stored, presented string) bool {
	if s.fp.Matches(stored, presented) {
		return true
	}
	return stored != "" && security.ConstantTimeEqual(stored, presented)
}

func (s *TokenService) Revoke(ctx context.Context, userID uint) error {
	return s.users.SetRefreshFingerprint(ctx, userID, "")
}

func (s *TokenService) ParseAccess(raw string) (*security.Claims, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) mint(user *domain.User) (*TokenPair, string, error) {
	now := s.now()
	access, err := s.jwtMgr.SignAccessToken(security.AccessSubject{
		UserID:        user.ID,
		Email:         user.Email,
		Role:          string(user.Role),
		EmailVerified: user.EmailVerified,
	}, s.accessTTL)
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwtMgr.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return nil, "", fmt.Errorf("sign refresh token: %w", err)
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate csrf token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		CSRFToken:        csrf,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, s.fp.Fingerprint(refresh), nil
}
