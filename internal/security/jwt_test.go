package security

import (
	"errors"
	"testing"
	"time"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("labrental", "labrental-web", "access-secret-0123456789abcdef", "refresh-secret-0123456789abcdef")
}

func TestJWTManagerAccessRoundTrip(t *testing.T) {
	mgr := newTestJWTManager()
	raw, err := mgr.SignAccessToken(AccessSubject{UserID: 42, Email: "bob@x.com", Role: "msme", EmailVerified: true}, time.Minute)
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	claims, err := mgr.ParseAccessToken(raw)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("unexpected subject id=%d err=%v", id, err)
	}
	if claims.Role != "msme" || !claims.EmailVerified || claims.Email != "bob@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTManagerRejectsCrossTypeTokens(t *testing.T) {
	mgr := newTestJWTManager()
	refresh, err := mgr.SignRefreshToken(7, time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if _, err := mgr.ParseAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
	access, err := mgr.SignAccessToken(AccessSubject{UserID: 7}, time.Hour)
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	if _, err := mgr.ParseRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token to be rejected as refresh token, got %v", err)
	}
}

func TestJWTManagerExpiredToken(t *testing.T) {
	mgr := newTestJWTManager()
	mgr.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, err := mgr.SignRefreshToken(7, time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	mgr.now = time.Now
	if _, err := mgr.ParseRefreshToken(raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManagerRejectsForeignSignature(t *testing.T) {
	other := NewJWTManager("labrental", "labrental-web", "another-access-secret-000000000", "another-refresh-secret-00000000")
	raw, err := other.SignRefreshToken(7, time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if _, err := newTestJWTManager().ParseRefreshToken(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := newTestJWTManager().ParseRefreshToken("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestJWTManagerRefreshTokensAreUnique(t *testing.T) {
	mgr := newTestJWTManager()
	a, err := mgr.SignRefreshToken(9, time.Hour)
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}
	b, err := mgr.SignRefreshToken(9, time.Hour)
	if err != nil {
		t.Fatalf("sign b: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct refresh tokens within the same second")
	}
}
