package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Fingerprinter derives the value stored in place of a one-time secret.
// With a pepper it is HMAC-SHA256, without one plain SHA-256.
type Fingerprinter struct {
	pepper []byte
}

func NewFingerprinter(pepper string) *Fingerprinter {
	return &Fingerprinter{pepper: []byte(pepper)}
}

func (f *Fingerprinter) Fingerprint(secret string) string {
	if len(f.pepper) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, f.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches compares secret against a stored fingerprint in constant time.
func (f *Fingerprinter) Matches(stored, secret string) bool {
	if stored == "" {
		return false
	}
	return ConstantTimeEqual(stored, f.Fingerprint(secret))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
