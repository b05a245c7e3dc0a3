package payments

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aipainter/backend/internal/middleware"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	verifier *SignatureVerifier
	queue    Enqueuer
	log      *slog.Logger
}

func NewWebhookHandler(verifier *SignatureVerifier, queue Enqueuer, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{verifier: verifier, queue: queue, log: log}
}

// Stripe handles POST /webhooks/stripe. A verified, relevant event is
// enqueued and acknowledged; reconciliation happens in the worker.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.log.Warn("webhook signature rejected", "error", err)
		middleware.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	d, err := ParseStripeEvent(payload)
	switch {
	case errors.Is(err, ErrEventIgnored):
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case err != nil:
		h.log.Warn("webhook payload rejected", "error", err)
		middleware.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.queue.EnqueuePayment(r.Context(), d); err != nil {
		h.log.Error("enqueue payment event failed", "user_id", d.UserID, "payment_id", d.PaymentID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to record event")
		return
	}
	h.log.Info("payment event enqueued", "user_id", d.UserID, "payment_id", d.PaymentID, "event_id", d.Event.ID)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
