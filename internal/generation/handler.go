package generation

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/middleware"
	"github.com/aipainter/backend/internal/storage"
)

const maxRequestBody = 64 << 10

type Handler struct {
	svc       *Service
	validator *Validator
	log       *slog.Logger
}

func NewHandler(svc *Service, validator *Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

// Generate handles POST /generate.
// Auth -> Throttle (via middleware) -> Balance -> Validate -> Fetch -> Transform -> Debit -> 200.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == "" {
		middleware.WriteError(w, http.StatusForbidden, "user not authenticated")
		return
	}

	// Balance is gated before the body is read.
	if err := h.svc.CheckBalance(r.Context(), userID); err != nil {
		h.writeServiceError(w, userID, err)
		return
	}

	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}
	req, err := h.validator.Decode(body)
	if err != nil {
		h.log.Info("generate request rejected", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusBadRequest, "imageUrl is required")
		return
	}

	res, err := h.svc.generate(r.Context(), userID, req.ImageURL)
	if err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, userID string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("generation failed", "user_id", userID, "error", err)
	}
	middleware.WriteError(w, status, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient credits"
	case errors.Is(err, storage.ErrInvalidReference):
		return http.StatusBadRequest, "invalid image reference"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusBadRequest, "image not found"
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "image too large"
	case errors.Is(err, storage.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported image type"
	case errors.Is(err, ErrTransformFailed):
		return http.StatusInternalServerError, "failed to generate image"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
