package router

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/aipainter/backend/internal/accounts"
	"github.com/aipainter/backend/internal/auth"
	"github.com/aipainter/backend/internal/dashboard"
	"github.com/aipainter/backend/internal/generation"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/middleware"
	"github.com/aipainter/backend/internal/payments"
	"github.com/aipainter/backend/internal/ratelimit"
)

// Deps are the handlers and collaborators the router wires together.
type Deps struct {
	Verifier    auth.Verifier
	Limiter     ratelimit.Limiter
	Accounts    *accounts.Handler
	Generation  *generation.Handler
	Dashboard   *dashboard.Handler
	Webhooks    *payments.WebhookHandler
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Logger      *slog.Logger
}

// New returns the API handler.
// Middleware chain for /generate: BearerAuth -> Throttle -> handler.
func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	authn := middleware.BearerAuth(d.Verifier, log)
	throttle := middleware.Throttle(d.Limiter, d.Metrics, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	mux.Handle("POST /ensure-user", authn(http.HandlerFunc(d.Accounts.EnsureUser)))
	mux.Handle("POST /generate", authn(throttle(http.HandlerFunc(d.Generation.Generate))))
	if d.Dashboard != nil {
		mux.Handle("GET /me", authn(http.HandlerFunc(d.Dashboard.GetMe)))
	}
	if d.Webhooks != nil {
		mux.HandleFunc("POST /webhooks/stripe", d.Webhooks.Stripe)
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(middleware.RequestLog(log)(mux))
}

func health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
