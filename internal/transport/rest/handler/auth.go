package handler

import (
	"errors"
	"net/http"

	"quizpicks/internal/model"
	"quizpicks/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Session handles POST /api/auth/session. An empty body mints a new shopper id.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	var req model.SessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}

	resp, err := h.authSvc.IssueSession(req.UserID)
	if errors.Is(err, service.ErrInvalidUserID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
