package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/models"
)

var ErrMissingUserID = errors.New("user id is required")

// Result is the outcome of EnsureAccount.
type Result struct {
	Credits int  `json:"credits"`
	Created bool `json:"created"`
}

type Service interface {
	// EnsureAccount creates the account with the free allowance on first
	// sight and leaves an existing balance untouched.
	EnsureAccount(ctx context.Context, userID string) (Result, error)
	// HandleProvisioned is the identity-provider trigger path. Errors are
	// logged, never returned, so a failed bootstrap cannot fail user creation.
	HandleProvisioned(ctx context.Context, userID string) error
}

type service struct {
	store   ledger.Store
	initial int
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewService returns the account bootstrapper. initial <= 0 uses
// models.InitialFreeCredits.
func NewService(store ledger.Store, initial int, m *metrics.Metrics, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	if initial <= 0 {
		initial = models.InitialFreeCredits
	}
	return &service{store: store, initial: initial, metrics: m, log: log}
}

var _ Service = (*service)(nil)

func (s *service) EnsureAccount(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return Result{}, ErrMissingUserID
	}
	acc, created, err := s.store.EnsureAccount(ctx, userID, s.initial)
	if err != nil {
		return Result{}, fmt.Errorf("ensure account %s: %w", userID, err)
	}
	s.metrics.Bootstrap(created)
	if created {
		s.log.Info("account created", "user_id", userID, "credits", acc.Credits)
	}
	return Result{Credits: acc.Credits, Created: created}, nil
}

func (s *service) HandleProvisioned(ctx context.Context, userID string) error {
	res, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		s.log.Error("provisioning bootstrap failed", "user_id", userID, "error", err)
		return nil
	}
	s.log.Info("provisioning bootstrap", "user_id", userID, "created", res.Created)
	return nil
}
