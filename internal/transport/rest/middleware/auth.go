package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"quizpicks/internal/service"
)

type contextKey string

const UserIDKey contextKey = "userId"

// ErrForbidden is returned when a token acts on another user's data
var ErrForbidden = errors.New("token does not grant access to this user")

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
	enabled bool
}

// NewAuthMiddleware creates a new auth middleware; a disabled middleware
// lets every request through unauthenticated
func NewAuthMiddleware(authSvc *service.AuthService, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc, enabled: enabled}
}

// RequireUser validates a shopper JWT from the Authorization header or the
// token query param
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			// WebSocket clients cannot set headers
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"ok":false,"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateUserToken(token)
		if err != nil {
			http.Error(w, `{"ok":false,"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts the authenticated user ID from context
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// CheckUser fails when the request is authenticated as someone other than userID.
// Unauthenticated contexts pass.
func CheckUser(ctx context.Context, userID string) error {
	if authed := GetUserID(ctx); authed != "" && authed != userID {
		return ErrForbidden
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
