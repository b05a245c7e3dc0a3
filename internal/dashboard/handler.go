package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/middleware"
	"github.com/aipainter/backend/internal/models"
)

const (
	defaultLedgerLimit = 20
	maxLedgerLimit     = 100
)

// Reader is the read side of ledger.Store.
type Reader interface {
	GetAccount(ctx context.Context, userID string) (*models.Account, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]*models.CreditLedger, error)
}

type Handler struct {
	store Reader
	log   *slog.Logger
}

func NewHandler(store Reader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

type meResponse struct {
	UserID  string                 `json:"user_id"`
	Credits int                    `json:"credits"`
	Ledger  []*models.CreditLedger `json:"ledger"`
}

// GetMe handles GET /me: the caller's balance and most recent ledger entries.
// ?limit= caps the entries (default 20, max 100).
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == "" {
		middleware.WriteError(w, http.StatusForbidden, "user not authenticated")
		return
	}

	limit := defaultLedgerLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	acc, err := h.store.GetAccount(r.Context(), userID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.log.Error("get account failed", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	entries, err := h.store.ListEntries(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list credit ledger failed", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []*models.CreditLedger{}
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{UserID: acc.UserID, Credits: acc.Credits, Ledger: entries})
}
