package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"

	refreshCookiePath = "/api/v1/auth"
	defaultAccessTTL  = 15 * time.Minute
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite

	// AccessTTL bounds the access cookie; it should match the JWT lifetime.
	AccessTTL time.Duration
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	mode := http.SameSiteLaxMode
	switch strings.ToLower(strings.TrimSpace(sameSite)) {
	case "strict":
		mode = http.SameSiteStrictMode
	case "none":
		mode = http.SameSiteNoneMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: mode, AccessTTL: defaultAccessTTL}
}

// SetTokenCookies writes the session cookies. The csrf cookie is readable by
// scripts so it can be echoed in the X-CSRF-Token header.
func (m *CookieManager) SetTokenCookies(w http.ResponseWriter, access, refresh, csrf string, refreshTTL time.Duration) {
	accessTTL := m.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	http.SetCookie(w, m.cookie(AccessTokenCookie, access, "/", int(accessTTL.Seconds()), true))
	http.SetCookie(w, m.cookie(RefreshTokenCookie, refresh, refreshCookiePath, int(refreshTTL.Seconds()), true))
	http.SetCookie(w, m.cookie(CSRFTokenCookie, csrf, "/", int(refreshTTL.Seconds()), false))
}

func (m *CookieManager) ClearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie(AccessTokenCookie, "", "/", -1, true))
	http.SetCookie(w, m.cookie(RefreshTokenCookie, "", refreshCookiePath, -1, true))
	http.SetCookie(w, m.cookie(CSRFTokenCookie, "", "/", -1, false))
}

func (m *CookieManager) cookie(name, value, path string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   m.Domain,
		MaxAge:   maxAge,
		Secure:   m.Secure,
		HttpOnly: httpOnly,
		SameSite: m.SameSite,
	}
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
