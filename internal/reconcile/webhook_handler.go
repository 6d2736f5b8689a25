package reconcile

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/akwaba/rentpay/internal"
	"github.com/akwaba/rentpay/internal/transport"
)

// WebhookHandler is the public callback ingress. It answers 200 as soon as
// the delivery is durably logged; a side-effect failure is retried by the
// replay sweep, never by making the gateway retry.
type WebhookHandler struct {
	*transport.BaseHandler
	engine   *Engine
	verifier *SignatureVerifier
	logger   *slog.Logger
}

func NewWebhookHandler(engine *Engine, verifier *SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		engine:      engine,
		verifier:    verifier,
		logger:      logger,
	}
}

type SettlementCallbackRequest struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	Signature string            `json:"signature"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type SettlementCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleSettlementCallback handles POST /api/v1/callbacks/settlement
func (h *WebhookHandler) HandleSettlementCallback(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read callback body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var req SettlementCallbackRequest
	if err := json.NewDecoder(bytes.NewReader(rawBody)).Decode(&req); err != nil {
		h.logger.Error("invalid settlement callback request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Reference == "" {
		h.logger.Error("settlement callback missing reference")
		h.WriteError(w, http.StatusBadRequest, "reference is required")
		return
	}

	if req.Status == "" {
		h.logger.Error("settlement callback missing status", "reference", req.Reference)
		h.WriteError(w, http.StatusBadRequest, "status is required")
		return
	}

	h.logger.Info("received settlement callback",
		"reference", req.Reference,
		"status", req.Status,
		"amount", req.Amount)

	delivery := &Delivery{
		Reference:   req.Reference,
		Status:      req.Status,
		Amount:      req.Amount,
		RawPayload:  string(rawBody),
		SignatureOK: h.verifier.Verify(req.Reference, req.Status, req.Amount, req.Signature),
		Metadata:    req.Metadata,
	}
	if reason, ok := req.Metadata["failure_reason"]; ok && reason != "" {
		delivery.FailureReason = &reason
	}

	result, err := h.engine.HandleDelivery(r.Context(), delivery)
	if err != nil {
		h.logger.Error("failed to process settlement callback",
			"error", err,
			"reference", req.Reference,
			"status", req.Status)
		h.WriteError(w, http.StatusInternalServerError, "failed to process callback")
		return
	}

	switch result.Outcome {
	case OutcomeRejected:
		h.HandleError(w, internal.ErrSignatureInvalid)
	case OutcomeUnknownReference:
		h.HandleError(w, internal.ErrUnknownReference)
	case OutcomeInvalidStatus:
		h.WriteError(w, http.StatusBadRequest, "unknown gateway status")
	case OutcomeDeferred:
		// Durably logged; the replay sweep will reconcile it. Answering 200
		// keeps the gateway from hammering a store that is already down.
		h.WriteJSON(w, http.StatusOK, SettlementCallbackResponse{
			Status:  "success",
			Message: "callback received",
		})
	case OutcomeDuplicate:
		h.WriteJSON(w, http.StatusOK, SettlementCallbackResponse{
			Status:  "success",
			Message: "callback already reconciled",
		})
	default:
		// The delivery is durably logged; a pipeline failure is the replay
		// sweep's problem, not the gateway's.
		if result.SideEffectErr != nil {
			h.logger.Warn("callback accepted with pending side effects",
				"reference", req.Reference,
				"error", result.SideEffectErr)
		}
		h.WriteJSON(w, http.StatusOK, SettlementCallbackResponse{
			Status:  "success",
			Message: "callback processed successfully",
		})
	}
}
