package handler

import (
	"net/http"

	"github.com/labrental/instrument-marketplace-api/internal/http/middleware"
	"github.com/labrental/instrument-marketplace-api/internal/http/response"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

type UserHandler struct {
	authSvc service.AuthServiceInterface
}

func NewUserHandler(authSvc service.AuthServiceInterface) *UserHandler {
	return &UserHandler{authSvc: authSvc}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	u, err := h.authSvc.CurrentUser(r.Context(), uid)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, u)
}
