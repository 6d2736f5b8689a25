package sideeffect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akwaba/rentpay/internal/core/events"
)

type EventHandler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewEventHandler(pipeline *Pipeline, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

func (h *EventHandler) HandlePaymentConfirmed(ctx context.Context, event events.Event) error {
	confirmed, ok := event.(*events.PaymentConfirmedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment confirmed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentConfirmedEvent, got %T", event)
	}

	h.logger.Info("handling confirmed payment",
		"reference", confirmed.Reference,
		"purpose", confirmed.Purpose,
		"amount", confirmed.Amount,
		"event_id", confirmed.EventID())

	if err := h.pipeline.Run(ctx, confirmed); err != nil {
		h.logger.Error("side-effect pipeline failed",
			"error", err,
			"reference", confirmed.Reference,
			"event_id", confirmed.EventID())
		return err
	}

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	// Failures carry no effects beyond the projection update, but the log
	// line gives support a searchable trail per reference.
	h.logger.Info("payment failed",
		"reference", failed.Reference,
		"failure_reason", failed.FailureReason,
		"event_id", failed.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentConfirmed, h.HandlePaymentConfirmed)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("side-effect event handlers registered",
		"handlers", []string{events.EventTypePaymentConfirmed, events.EventTypePaymentFailed})
}
