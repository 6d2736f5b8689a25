package intent

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/akwaba/rentpay/internal"
	"github.com/akwaba/rentpay/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
		Logger:      logger,
	}
}

// CreateIntent handles POST /api/v1/payment-intents
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CreateIntent: user not found in context")
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateIntent: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.CreateIntent(r.Context(), user, &req)
	if err != nil {
		h.Logger.Error("CreateIntent: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateIntent: intent initiated",
		"reference", resp.Reference,
		"user_id", user.ID)

	h.WriteJSON(w, http.StatusCreated, resp)
}

// GetIntent handles GET /api/v1/payment-intents/{reference}
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, internal.NewValidationError("reference is required", internal.ErrCodeValidationFailed))
		return
	}

	view, err := h.Service.GetIntent(r.Context(), user, reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ListIntents handles GET /api/v1/payment-intents
func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	views, err := h.Service.ListIntents(r.Context(), user, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payment_intents": views,
	})
}
