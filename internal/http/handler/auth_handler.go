package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/http/middleware"
	"github.com/labrental/instrument-marketplace-api/internal/http/response"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/security"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

type AuthHandler struct {
	authSvc    service.AuthServiceInterface
	cookieMgr  *security.CookieManager
	refreshTTL time.Duration
}

func NewAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, cookieMgr: cookieMgr, refreshTTL: refreshTTL}
}

type emailRequest struct {
	Email string `json:"email"`
}

type emailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Role         string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type sessionResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	CSRFToken    string       `json:"csrf_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

type dispatchResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// timed starts the per-endpoint duration measurement. The returned func
// records it with whatever outcome the handler settled on.
func timed(r *http.Request, endpoint string) (*string, func()) {
	start := time.Now()
	status := "success"
	return &status, func() {
		observability.RecordAuthRequestDuration(r.Context(), endpoint, status, time.Since(start))
	}
}

func (h *AuthHandler) RequestRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "register_otp")
	defer done()

	var body emailRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	dispatch, err := h.authSvc.RequestRegistrationOTP(r.Context(), body.Email)
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.register.otp", Action: "request_otp", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.register.otp", Action: "request_otp", Outcome: "success"})
	response.JSON(w, r, http.StatusAccepted, dispatchResponse{Status: "otp_sent", ExpiresAt: dispatch.ExpiresAt})
}

func (h *AuthHandler) VerifyRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "register_otp_verify")
	defer done()

	var body emailCodeRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.VerifyRegistrationOTP(r.Context(), body.Email, body.Code); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.register.otp", Action: "verify_otp", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.register.otp", Action: "verify_otp", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, statusResponse{Status: "verified"})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "register")
	defer done()

	var body registerRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	result, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		Email:        body.Email,
		Password:     body.Password,
		Name:         body.Name,
		Organization: body.Organization,
		Role:         domain.Role(body.Role),
	}, r.UserAgent(), observability.ClientIP(r))
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.register", Action: "register", Outcome: "failure", Reason: reason})
		return
	}
	h.cookieMgr.SetTokenCookies(w, result.AccessToken, result.RefreshToken, result.CSRFToken, h.refreshTTL)
	observability.Audit(r, observability.AuditInput{EventName: "auth.register", ActorUserID: userIDString(result.User.ID), TargetID: userIDString(result.User.ID), Action: "register", Outcome: "success"})
	response.JSON(w, r, http.StatusCreated, sessionOf(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "login")
	defer done()

	var body loginRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	result, err := h.authSvc.Login(r.Context(), body.Email, body.Password, r.UserAgent(), observability.ClientIP(r))
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.login", Action: "login", Outcome: "failure", Reason: reason})
		return
	}
	h.cookieMgr.SetTokenCookies(w, result.AccessToken, result.RefreshToken, result.CSRFToken, h.refreshTTL)
	observability.Audit(r, observability.AuditInput{EventName: "auth.login", ActorUserID: userIDString(result.User.ID), TargetID: userIDString(result.User.ID), Action: "login", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, sessionOf(result))
}

// Refresh accepts the refresh token from its cookie or, for clients that do
// not keep cookies, from the JSON body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "refresh")
	defer done()

	refresh := security.GetCookie(r, security.RefreshTokenCookie)
	if refresh == "" && r.ContentLength != 0 {
		var body refreshRequest
		if !decodeJSON(w, r, &body) {
			*status = "failure"
			return
		}
		refresh = body.RefreshToken
	}
	if refresh == "" {
		*status = "failure"
		observability.Audit(r, observability.AuditInput{EventName: "auth.refresh", Action: "refresh", Outcome: "failure", Reason: "missing_refresh_token"})
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token", nil)
		return
	}
	result, err := h.authSvc.Refresh(r.Context(), refresh)
	if err != nil {
		*status = "failure"
		h.cookieMgr.ClearTokenCookies(w)
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.refresh", Action: "refresh", Outcome: "failure", Reason: reason})
		return
	}
	h.cookieMgr.SetTokenCookies(w, result.AccessToken, result.RefreshToken, result.CSRFToken, h.refreshTTL)
	observability.Audit(r, observability.AuditInput{EventName: "auth.refresh", ActorUserID: userIDString(result.User.ID), TargetID: userIDString(result.User.ID), Action: "refresh", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, sessionOf(result))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "logout")
	defer done()

	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		*status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	if err := h.authSvc.Logout(r.Context(), uid); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.logout", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "logout", Outcome: "failure", Reason: reason})
		return
	}
	h.cookieMgr.ClearTokenCookies(w)
	observability.Audit(r, observability.AuditInput{EventName: "auth.logout", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "logout", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, statusResponse{Status: "logged_out"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "password_forgot")
	defer done()

	var body emailRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.ForgotPassword(r.Context(), body.Email); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.password.forgot", Action: "request_reset", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.password.forgot", Action: "request_reset", Outcome: "success"})
	response.JSON(w, r, http.StatusAccepted, statusResponse{Status: "if_account_exists_reset_email_sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "password_reset")
	defer done()

	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.password.reset", Action: "reset", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.password.reset", Action: "reset", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, statusResponse{Status: "password_reset"})
}

func (h *AuthHandler) RequestPasswordChangeOTP(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "password_otp")
	defer done()

	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		*status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	dispatch, err := h.authSvc.RequestPasswordChangeOTP(r.Context(), uid)
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.password.otp", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "request_otp", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.password.otp", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "request_otp", Outcome: "success"})
	response.JSON(w, r, http.StatusAccepted, dispatchResponse{Status: "otp_sent", ExpiresAt: dispatch.ExpiresAt})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "password_change")
	defer done()

	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		*status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	result, err := h.authSvc.ChangePasswordWithOTP(r.Context(), uid, body.Code, body.NewPassword, r.UserAgent(), observability.ClientIP(r))
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.password.change", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "change_password", Outcome: "failure", Reason: reason})
		return
	}
	h.cookieMgr.SetTokenCookies(w, result.AccessToken, result.RefreshToken, result.CSRFToken, h.refreshTTL)
	observability.Audit(r, observability.AuditInput{EventName: "auth.password.change", ActorUserID: userIDString(uid), TargetID: userIDString(uid), Action: "change_password", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, sessionOf(result))
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "email_verify")
	defer done()

	var body tokenRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.VerifyEmailByLink(r.Context(), body.Token); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.email.verify", Action: "verify_link", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.email.verify", Action: "verify_link", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, statusResponse{Status: "email_verified"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "email_resend")
	defer done()

	var body emailRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.ResendVerification(r.Context(), body.Email); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.email.resend", Action: "resend_link", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.email.resend", Action: "resend_link", Outcome: "success"})
	response.JSON(w, r, http.StatusAccepted, statusResponse{Status: "if_account_exists_verification_sent"})
}

func (h *AuthHandler) RequestEmailOTP(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "email_otp")
	defer done()

	var body emailRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	dispatch, err := h.authSvc.RequestEmailOTP(r.Context(), body.Email)
	if err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.email.otp", Action: "request_otp", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.email.otp", Action: "request_otp", Outcome: "success"})
	response.JSON(w, r, http.StatusAccepted, dispatchResponse{Status: "otp_sent", ExpiresAt: dispatch.ExpiresAt})
}

func (h *AuthHandler) VerifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	status, done := timed(r, "email_otp_verify")
	defer done()

	var body emailCodeRequest
	if !decodeJSON(w, r, &body) {
		*status = "failure"
		return
	}
	if err := h.authSvc.VerifyEmailOTP(r.Context(), body.Email, body.Code); err != nil {
		*status = "failure"
		reason := writeServiceError(w, r, err)
		observability.Audit(r, observability.AuditInput{EventName: "auth.email.otp", Action: "verify_otp", Outcome: "failure", Reason: reason})
		return
	}
	observability.Audit(r, observability.AuditInput{EventName: "auth.email.otp", Action: "verify_otp", Outcome: "success"})
	response.JSON(w, r, http.StatusOK, statusResponse{Status: "email_verified"})
}

func sessionOf(result *service.LoginResult) sessionResponse {
	return sessionResponse{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		CSRFToken:    result.CSRFToken,
		ExpiresAt:    result.ExpiresAt,
	}
}

func userIDString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
