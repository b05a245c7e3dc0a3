package accounts

import (
	"log/slog"
	"net/http"

	"github.com/aipainter/backend/internal/middleware"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// EnsureUser handles POST /ensure-user. BearerAuth must run first.
func (h *Handler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == "" {
		middleware.WriteError(w, http.StatusForbidden, "user not authenticated")
		return
	}
	res, err := h.svc.EnsureAccount(r.Context(), userID)
	if err != nil {
		h.log.Error("ensure user failed", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to initialize user account")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
