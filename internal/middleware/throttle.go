package middleware

import (
	"log/slog"
	"net/http"

	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/ratelimit"
)

// Throttle rejects a user's request with 429 once the limiter's quota for the
// current window is spent. It must run after BearerAuth.
func Throttle(limiter ratelimit.Limiter, m *metrics.Metrics, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromCtx(r.Context())
			if userID == "" {
				WriteError(w, http.StatusForbidden, "user not authenticated")
				return
			}
			ok, err := limiter.Allow(r.Context(), userID)
			if err != nil {
				log.Error("throttle check failed", "user_id", userID, "error", err)
				WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !ok {
				m.Throttled()
				WriteError(w, http.StatusTooManyRequests, "too many requests, try again in a minute")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLog logs every request at info level.
func RequestLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("received request", "method", r.Method, "uri", r.URL.RequestURI(), "ip", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
