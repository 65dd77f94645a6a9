package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/labrental/instrument-marketplace-api/internal/health"
	"github.com/labrental/instrument-marketplace-api/internal/http/handler"
	"github.com/labrental/instrument-marketplace-api/internal/http/middleware"
	"github.com/labrental/instrument-marketplace-api/internal/http/response"
)

type Dependencies struct {
	AuthHandler         *handler.AuthHandler
	UserHandler         *handler.UserHandler
	AccessTokens        middleware.AccessTokenParser
	CORSOrigins         []string
	AuthRateLimitRPM    int
	OTPRateLimitRPM     int
	APIRateLimitRPM     int
	GlobalRateLimiter   GlobalRateLimiterFunc
	AuthRateLimiter     AuthRateLimiterFunc
	OTPRateLimiter      OTPRateLimiterFunc
	AccountOTPLimiter   AccountOTPRateLimiterFunc
	Readiness           *health.CheckRunner
	MaxRequestBodyBytes int64
	EnableOTelHTTP      bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler

// AuthRateLimiterFunc guards credential endpoints such as login and register.
type AuthRateLimiterFunc func(http.Handler) http.Handler

// OTPRateLimiterFunc guards anonymous endpoints that send or check codes.
type OTPRateLimiterFunc func(http.Handler) http.Handler

// AccountOTPRateLimiterFunc guards the authenticated password OTP routes and
// counts per subject.
type AccountOTPRateLimiterFunc func(http.Handler) http.Handler

const defaultMaxRequestBodyBytes = 1 << 20

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.MaxRequestBodyBytes
	if bodyLimit <= 0 {
		bodyLimit = defaultMaxRequestBodyBytes
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	var authLimiter func(http.Handler) http.Handler = dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	var otpLimiter func(http.Handler) http.Handler = dep.OTPRateLimiter
	if otpLimiter == nil {
		otpLimiter = middleware.NewRateLimiter(dep.OTPRateLimitRPM, time.Minute, "otp").Middleware()
	}
	var accountOTPLimiter func(http.Handler) http.Handler = dep.AccountOTPLimiter
	if accountOTPLimiter == nil {
		accountOTPLimiter = middleware.NewDistributedRateLimiterWithKey(
			middleware.NewLocalFixedWindowLimiter(), dep.OTPRateLimitRPM, time.Minute,
			middleware.FailClosed, "account_otp", middleware.SubjectKeyFunc(dep.AccessTokens),
		).Middleware()
	}
	requireAccess := middleware.AuthMiddleware(dep.AccessTokens)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(otpLimiter).Post("/register/otp", dep.AuthHandler.RequestRegistrationOTP)
			r.With(otpLimiter).Post("/register/otp/verify", dep.AuthHandler.VerifyRegistrationOTP)
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)

			r.With(otpLimiter).Post("/password/forgot", dep.AuthHandler.ForgotPassword)
			r.With(authLimiter).Post("/password/reset", dep.AuthHandler.ResetPassword)

			r.With(authLimiter).Post("/email/verify", dep.AuthHandler.VerifyEmail)
			r.With(otpLimiter).Post("/email/resend", dep.AuthHandler.ResendVerification)
			r.With(otpLimiter).Post("/email/otp", dep.AuthHandler.RequestEmailOTP)
			r.With(otpLimiter).Post("/email/otp/verify", dep.AuthHandler.VerifyEmailOTP)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
				r.With(requireAccess).Post("/logout", dep.AuthHandler.Logout)
				r.With(requireAccess, accountOTPLimiter).Post("/password/otp", dep.AuthHandler.RequestPasswordChangeOTP)
				r.With(requireAccess, accountOTPLimiter).Post("/password/change", dep.AuthHandler.ChangePassword)
			})
		})

		r.With(requireAccess).Get("/me", dep.UserHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
