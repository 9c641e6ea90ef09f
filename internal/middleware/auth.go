package middleware

import (
	"context"
	"net/http"

	"github.com/rasoolshaik04/cipherchat/internal/session"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// RequireSession fails closed: requests without a live session get a 401
// (API routes) or a redirect to /login (page routes). Authenticated requests
// carry the user id in the request context.
func RequireSession(sessions *session.Manager, redirectToLogin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := sessions.UserID(r)
			if !ok {
				if redirectToLogin {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id placed in the context by
// RequireSession, or "" when the request never passed through it.
func UserID(r *http.Request) string {
	userID, _ := r.Context().Value(UserIDKey).(string)
	return userID
}
