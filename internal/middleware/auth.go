package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aipainter/backend/internal/auth"
)

type contextKey string

const ctxUserKey contextKey = "user_id"

// BearerAuth verifies the Bearer token with the identity provider and puts
// the user id into the request context. Any failure is 403 and nothing
// downstream runs.
func BearerAuth(verifier auth.Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				WriteError(w, http.StatusForbidden, "user not authenticated")
				return
			}
			userID, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				log.Info("token rejected", "path", r.URL.Path, "error", err)
				WriteError(w, http.StatusForbidden, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromCtx returns the authenticated user id or "".
func UserIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserKey).(string)
	return id
}

// WithUserID returns a context carrying the given user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserKey, userID)
}

// WriteError writes a JSON error body. Messages must be safe to show users.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
