package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aipainter/backend/internal/catalog"
	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/models"
)

// Outcome labels, also used as metric label values.
const (
	OutcomeGranted       = "granted"
	OutcomeDuplicate     = "duplicate"
	OutcomeNotSucceeded  = "not_succeeded"
	OutcomeUnresolved    = "unresolved"
	OutcomeUnknownPrice  = "unknown_price"
	OutcomeMissingFields = "missing_fields"
	OutcomeError         = "error"
)

// Delivery is one payment-completion event bound to the user and payment it
// belongs to. It is the payload of the webhook, the NATS bridge and the
// payment_event job.
type Delivery struct {
	UserID    string              `json:"user_id"`
	PaymentID string              `json:"payment_id"`
	Event     models.PaymentEvent `json:"event"`
}

// Enqueuer hands a delivery to durable processing.
type Enqueuer interface {
	EnqueuePayment(ctx context.Context, d Delivery) error
}

type Reconciler struct {
	store      ledger.Store
	catalog    *catalog.Catalog
	extractors []Extractor
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewReconciler(store ledger.Store, cat *catalog.Catalog, m *metrics.Metrics, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &Reconciler{store: store, catalog: cat, extractors: DefaultExtractors, metrics: m, log: log}
}

// HandlePaymentEvent grants the purchased credits for one event. Events that
// can never be applied are logged and return nil. Only store failures are
// returned, and retrying them is safe because the grant is keyed by paymentID.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, userID, paymentID string, ev models.PaymentEvent) error {
	log := r.log.With("user_id", userID, "payment_id", paymentID)

	if userID == "" || paymentID == "" {
		log.Warn("payment event missing user or payment id", "event", ev)
		r.metrics.PaymentEvent(OutcomeMissingFields, 0)
		return nil
	}
	if ev.Status != models.PaymentStatusSucceeded {
		log.Info("ignoring payment event", "status", ev.Status)
		r.metrics.PaymentEvent(OutcomeNotSucceeded, 0)
		return nil
	}

	priceID := ResolvePriceID(ev, r.extractors)
	if priceID == "" {
		log.Error("could not resolve price id from payment event", "event", ev)
		r.metrics.PaymentEvent(OutcomeUnresolved, 0)
		return nil
	}
	credits, ok := r.catalog.Lookup(priceID)
	if !ok {
		log.Error("unknown price id in payment event", "price_id", priceID, "event", ev)
		r.metrics.PaymentEvent(OutcomeUnknownPrice, 0)
		return nil
	}

	balance, err := r.store.GrantCredits(ctx, ledger.Grant{
		UserID:    userID,
		PaymentID: paymentID,
		PriceID:   priceID,
		Credits:   credits,
	})
	switch {
	case errors.Is(err, ledger.ErrPaymentAlreadyApplied):
		log.Info("payment already applied")
		r.metrics.PaymentEvent(OutcomeDuplicate, 0)
		return nil
	case err != nil:
		r.metrics.PaymentEvent(OutcomeError, 0)
		return fmt.Errorf("grant credits for payment %s: %w", paymentID, err)
	}

	log.Info("credits granted", "price_id", priceID, "credits", credits, "balance", balance)
	r.metrics.PaymentEvent(OutcomeGranted, credits)
	return nil
}
