package security

import (
	"regexp"
	"testing"
)

func TestNewNumericCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{6}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q is not six digits", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatal("expected codes to vary")
	}
	if _, err := NewNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestNewRandomStringLength(t *testing.T) {
	s, err := NewRandomString(32)
	if err != nil {
		t.Fatalf("random string: %v", err)
	}
	if len(s) != 43 {
		t.Fatalf("expected 43 url-safe chars for 32 bytes, got %d", len(s))
	}
}
