package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aipainter/backend/internal/accounts"
	"github.com/aipainter/backend/internal/auth"
	"github.com/aipainter/backend/internal/config"
	"github.com/aipainter/backend/internal/dashboard"
	"github.com/aipainter/backend/internal/generation"
	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/payments"
	"github.com/aipainter/backend/internal/ratelimit"
	"github.com/aipainter/backend/internal/router"
	"github.com/aipainter/backend/internal/storage"
	"github.com/aipainter/backend/internal/transform"
)

// newAPIHandler builds the HTTP surface on top of the shared services.
func newAPIHandler(
	cfg *config.Config,
	store *ledger.Repository,
	accountSvc accounts.Service,
	queue payments.Enqueuer,
	limiter ratelimit.Limiter,
	m *metrics.Metrics,
	logger *slog.Logger,
) (http.Handler, error) {
	bucket, err := storage.NewOSBucket(cfg.StorageRoot, cfg.StorageBucket, cfg.Limits.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	validator, err := generation.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("generation validator: %w", err)
	}
	transformer := transform.NewHTTPClient(cfg.TransformURL, cfg.TransformAPIKey, cfg.Limits.TransformTimeout)
	if cfg.TransformURL == "" {
		logger.Warn("TRANSFORM_URL not set, /generate will fail without charging")
	}

	genSvc := generation.NewService(store, bucket, transformer, cfg.Limits.TransformTimeout, m, logger)

	var webhooks *payments.WebhookHandler
	if cfg.StripeWebhookSecret != "" {
		webhooks = payments.NewWebhookHandler(payments.NewSignatureVerifier(cfg.StripeWebhookSecret, 0), queue, logger)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, /webhooks/stripe disabled")
	}

	return router.New(router.Deps{
		Verifier:    auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		Limiter:     limiter,
		Accounts:    accounts.NewHandler(accountSvc, logger),
		Generation:  generation.NewHandler(genSvc, validator, logger),
		Dashboard:   dashboard.NewHandler(store, logger),
		Webhooks:    webhooks,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}), nil
}
