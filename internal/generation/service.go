package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/models"
	"github.com/aipainter/backend/internal/storage"
	"github.com/aipainter/backend/internal/transform"
)

// CreditCost is the number of credits one successful generation consumes.
const CreditCost = 1

var (
	ErrTransformFailed  = errors.New("generation: transform failed")
	ErrSettlementFailed = errors.New("generation: settlement failed")
)

// Result is the body returned to the client.
type Result struct {
	ImageBase64 string `json:"imageBase64"`
	ArtworkID   string `json:"artworkId,omitempty"`
}

type Service struct {
	store       ledger.Store
	objects     storage.Store
	transformer transform.Client
	timeout     time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger
	newID       func() string
}

func NewService(store ledger.Store, objects storage.Store, transformer transform.Client, timeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		store:       store,
		objects:     objects,
		transformer: transformer,
		timeout:     timeout,
		metrics:     m,
		log:         log,
		newID:       uuid.NewString,
	}
}

// CheckBalance fails with ledger.ErrInsufficientCredits unless userID can
// afford one generation. It only reads; the debit happens after the transform.
func (s *Service) CheckBalance(ctx context.Context, userID string) error {
	acc, err := s.store.GetAccount(ctx, userID)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.metrics.Generation("insufficient_credits")
		return ledger.ErrInsufficientCredits
	case err != nil:
		s.metrics.Generation("error")
		return fmt.Errorf("read balance: %w", err)
	case acc.Credits < CreditCost:
		s.metrics.Generation("insufficient_credits")
		return ledger.ErrInsufficientCredits
	}
	return nil
}

// Generate runs one paid transform for userID. The credit is taken only after
// the transform has produced an image; any earlier failure leaves the balance
// unchanged.
func (s *Service) Generate(ctx context.Context, userID, imageRef string) (*Result, error) {
	if err := s.CheckBalance(ctx, userID); err != nil {
		return nil, err
	}
	return s.generate(ctx, userID, imageRef)
}

// generate runs everything after the balance gate.
func (s *Service) generate(ctx context.Context, userID, imageRef string) (*Result, error) {
	log := s.log.With("user_id", userID)

	obj, err := s.objects.Fetch(ctx, imageRef)
	if err != nil {
		s.metrics.Generation("bad_input")
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	img, err := s.transformer.Transform(tctx, transform.Input{
		Image:    obj.Data,
		MimeType: obj.ContentType,
		Prompt:   transform.DefaultPrompt,
	})
	cancel()
	if err == nil && len(img) == 0 {
		err = transform.ErrNoImage
	}
	if err != nil {
		log.Error("transform failed", "key", obj.Key, "error", err)
		s.metrics.Generation("transform_failed")
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	// The output exists, so settlement must run even if the client has gone.
	settleCtx := context.WithoutCancel(ctx)
	balance, err := s.store.DebitCredits(settleCtx, userID, CreditCost, models.CreditEntryGeneration)
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		log.Warn("balance spent concurrently, discarding output")
		s.metrics.Generation("insufficient_credits")
		return nil, ledger.ErrInsufficientCredits
	case err != nil:
		log.Error("debit failed after transform", "error", err)
		s.metrics.Generation("settlement_failed")
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	res := &Result{ImageBase64: base64.StdEncoding.EncodeToString(img)}
	artworkID := s.newID()
	if err := s.objects.Put(settleCtx, storage.ArtworkKey(userID, artworkID), img); err != nil {
		log.Warn("artwork not persisted", "artwork_id", artworkID, "error", err)
	} else {
		res.ArtworkID = artworkID
	}

	log.Info("generation complete", "balance", balance, "artwork_id", res.ArtworkID)
	s.metrics.Generation("success")
	return res, nil
}
