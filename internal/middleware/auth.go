package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/eli-ai/eli-backend/internal/auth"
	"github.com/eli-ai/eli-backend/pkg/utils"
)

type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth verifies the Authorization bearer token and stores the
// caller's user id on the request context.
func RequireAuth(verifier *auth.Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, ok := verifier.Verify(token)
			if !ok {
				utils.RespondError(w, http.StatusForbidden, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id stored by RequireAuth.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}
