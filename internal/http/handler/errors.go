package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labrental/instrument-marketplace-api/internal/http/response"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

// writeServiceError maps the service error taxonomy onto stable API codes.
// It returns the short reason used for metrics and audit records.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) string {
	var (
		validation *service.ValidationError
		cooldown   *service.CooldownError
		wrongCode  *service.WrongCodeError
		throttled  *service.LoginThrottledError
	)
	switch {
	case errors.As(err, &validation):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", validation.Fields)
		return "validation"
	case errors.As(err, &cooldown):
		secs := cooldown.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		response.Error(w, r, http.StatusTooManyRequests, "OTP_COOLDOWN", cooldown.Error(), map[string]int{"retry_after_seconds": secs})
		return "cooldown"
	case errors.As(err, &throttled):
		secs := throttled.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		response.Error(w, r, http.StatusTooManyRequests, "LOGIN_THROTTLED", throttled.Error(), map[string]int{"retry_after_seconds": secs})
		return "login_throttled"
	case errors.As(err, &wrongCode):
		response.Error(w, r, http.StatusBadRequest, "INVALID_OTP", "invalid code", map[string]int{"attempts_remaining": wrongCode.AttemptsRemaining})
		return "invalid_otp"
	case errors.Is(err, service.ErrTooManyAttempts):
		response.Error(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many attempts, request a new code", nil)
		return "too_many_attempts"
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
		return "invalid_credentials"
	case errors.Is(err, service.ErrAccountInactive):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active", nil)
		return "inactive"
	case errors.Is(err, service.ErrEmailNotVerified):
		response.Error(w, r, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified", nil)
		return "email_not_verified"
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", nil)
		return "invalid_token"
	case errors.Is(err, service.ErrDuplicateAccount):
		response.Error(w, r, http.StatusConflict, "DUPLICATE_ACCOUNT", err.Error(), nil)
		return "duplicate"
	case errors.Is(err, service.ErrDeliveryFailed):
		slog.WarnContext(r.Context(), "email delivery failed", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusBadGateway, "DELIVERY_FAILED", "could not deliver email, try again later", nil)
		return "delivery_failed"
	default:
		slog.ErrorContext(r.Context(), "unhandled service error", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return "internal"
	}
}

// decodeJSON reads a single JSON object. It writes the error response itself
// and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.Error(w, r, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "request body too large", nil)
		case errors.Is(err, io.EOF):
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "request body is required", nil)
		default:
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", nil)
		}
		return false
	}
	return true
}
