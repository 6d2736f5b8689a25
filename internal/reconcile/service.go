package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	callbackDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/callback"
	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	"github.com/akwaba/rentpay/internal/core/events"
	"gorm.io/gorm"
)

// Outcome classifies what a delivery did, for the HTTP response and logs.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
	OutcomeUnknownReference
	OutcomeInvalidStatus
	// OutcomeDeferred: the delivery is durably logged but the transition
	// could not run (store failure). The log row stays unprocessed and the
	// replay sweep owns it; the gateway must not retry.
	OutcomeDeferred
)

// Delivery is one inbound webhook delivery after HTTP decoding.
type Delivery struct {
	Reference     string
	Status        string
	Amount        int64
	RawPayload    string
	SignatureOK   bool
	FailureReason *string
	Metadata      map[string]string
}

// Result reports the reconciliation outcome. SideEffectErr is set when the
// transition applied but the pipeline failed; the callback log row stays
// unprocessed so the replay sweep picks it up.
type Result struct {
	Outcome       Outcome
	Intent        *intentDatamodel.PaymentIntent
	SideEffectErr error
}

// IntentStore is the slice of the intent repository the engine needs.
type IntentStore interface {
	GetByReference(ctx context.Context, reference string) (*intentDatamodel.PaymentIntent, error)
	TransitionStatus(ctx context.Context, reference, newStatus string, failureReason *string) (*intentDatamodel.PaymentIntent, bool, error)
	MergeMetadata(ctx context.Context, reference string, patch map[string]interface{}) error
	ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*intentDatamodel.PaymentIntent, error)
}

// CallbackStore persists the append-only delivery audit trail.
type CallbackStore interface {
	Append(ctx context.Context, log *callbackDatamodel.Log) error
	MarkProcessed(ctx context.Context, id int64) error
	ListUnprocessed(ctx context.Context, limit int) ([]*callbackDatamodel.Log, error)
}

// Engine applies callback deliveries to intents exactly once per terminal
// event. The conditional update in the store is the only lock it needs.
type Engine struct {
	intents   IntentStore
	callbacks CallbackStore
	eventBus  *events.EventBus
	logger    *slog.Logger
}

func NewEngine(intents IntentStore, callbacks CallbackStore, eventBus *events.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		intents:   intents,
		callbacks: callbacks,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// HandleDelivery runs the full reconciliation sequence for one delivery:
// audit append, signature gate, terminal-state idempotency guard, state-gated
// transition, side effects, processed mark. The audit row is written before
// anything else so gateway misbehavior stays diagnosable.
func (e *Engine) HandleDelivery(ctx context.Context, d *Delivery) (*Result, error) {
	logRow := &callbackDatamodel.Log{
		Reference:   d.Reference,
		RawPayload:  d.RawPayload,
		StatusAfter: d.Status,
		SignatureOK: d.SignatureOK,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := e.callbacks.Append(ctx, logRow); err != nil {
		e.logger.Error("failed to append callback log", "error", err, "reference", d.Reference)
		return nil, fmt.Errorf("failed to record callback delivery: %w", err)
	}

	if !d.SignatureOK {
		e.logger.Warn("callback rejected: signature verification failed",
			"reference", d.Reference,
			"reported_status", d.Status)
		return &Result{Outcome: OutcomeRejected}, nil
	}

	if !intentDatamodel.ValidGatewayStatus(d.Status) {
		e.logger.Error("callback carries unknown gateway status",
			"reference", d.Reference,
			"reported_status", d.Status)
		e.markProcessed(ctx, logRow.ID, d.Reference)
		return &Result{Outcome: OutcomeInvalidStatus}, nil
	}

	row, err := e.intents.GetByReference(ctx, d.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.logger.Warn("callback for unknown reference", "reference", d.Reference)
			e.markProcessed(ctx, logRow.ID, d.Reference)
			return &Result{Outcome: OutcomeUnknownReference}, nil
		}
		// Logged but not reconciled; the replay sweep will revisit the row.
		e.logger.Error("failed to load intent, deferring delivery to replay",
			"error", err,
			"reference", d.Reference)
		return &Result{Outcome: OutcomeDeferred}, nil
	}

	if row.IsTerminal() {
		// Duplicate or stale delivery after a terminal transition. The guard
		// that makes at-least-once delivery safe: no re-apply, no side effects.
		e.logger.Info("callback ignored: intent already terminal",
			"reference", d.Reference,
			"current_status", row.Status,
			"reported_status", d.Status)
		e.markProcessed(ctx, logRow.ID, d.Reference)
		return &Result{Outcome: OutcomeDuplicate, Intent: row}, nil
	}

	updated, applied, err := e.intents.TransitionStatus(ctx, d.Reference, d.Status, d.FailureReason)
	if err != nil {
		e.logger.Error("transition failed, deferring delivery to replay",
			"error", err,
			"reference", d.Reference,
			"reported_status", d.Status)
		return &Result{Outcome: OutcomeDeferred}, nil
	}

	if !applied {
		// A concurrent delivery won the conditional update.
		e.logger.Info("callback lost transition race, treating as duplicate",
			"reference", d.Reference,
			"current_status", updated.Status)
		e.markProcessed(ctx, logRow.ID, d.Reference)
		return &Result{Outcome: OutcomeDuplicate, Intent: updated}, nil
	}

	e.logger.Info("intent transitioned",
		"reference", d.Reference,
		"from_status", row.Status,
		"to_status", updated.Status)

	if len(d.Metadata) > 0 {
		patch := make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			patch[k] = v
		}
		if mergeErr := e.intents.MergeMetadata(ctx, d.Reference, patch); mergeErr != nil {
			// The raw payload is already in the audit log; losing the merge
			// is not worth failing an applied transition over.
			e.logger.Warn("failed to merge callback metadata",
				"error", mergeErr,
				"reference", d.Reference)
		}
	}

	if sideErr := e.runSideEffects(ctx, updated); sideErr != nil {
		// Money was received; the intent stays paid. The unprocessed log row
		// is what the replay sweep keys on.
		e.logger.Error("side-effect pipeline failed, leaving delivery unprocessed",
			"error", sideErr,
			"reference", d.Reference)
		return &Result{Outcome: OutcomeApplied, Intent: updated, SideEffectErr: sideErr}, nil
	}

	e.markProcessed(ctx, logRow.ID, d.Reference)
	return &Result{Outcome: OutcomeApplied, Intent: updated}, nil
}

// runSideEffects dispatches the pipeline for the new state. Only the first
// transition into paid reaches this with status paid; failed transitions get
// an async notification event and nothing more.
func (e *Engine) runSideEffects(ctx context.Context, row *intentDatamodel.PaymentIntent) error {
	switch row.Status {
	case intentDatamodel.StatusPaid:
		paidAt := time.Now().UTC()
		if row.PaidAt != nil {
			paidAt = *row.PaidAt
		}
		event := events.NewPaymentConfirmedEvent(row.ID, row.Reference, row.UserID, row.ContractID, row.Purpose, row.Amount, paidAt)
		return e.eventBus.PublishSync(ctx, event)
	case intentDatamodel.StatusFailed:
		reason := ""
		if row.FailureReason != nil {
			reason = *row.FailureReason
		}
		e.eventBus.Publish(ctx, events.NewPaymentFailedEvent(row.ID, row.Reference, row.UserID, row.Amount, reason))
	}
	return nil
}

// ReplayDelivery re-runs reconciliation for a previously logged delivery that
// never completed. Unlike HandleDelivery it re-fires the pipeline for a paid
// intent: the transition already happened, only the side effects are owed.
// The pipeline's own idempotency (receipt unique constraint, per-contract
// document generation) makes the re-fire safe.
func (e *Engine) ReplayDelivery(ctx context.Context, logRow *callbackDatamodel.Log) error {
	if !logRow.SignatureOK {
		// Never replayed; kept only as a security audit record.
		return nil
	}

	row, err := e.intents.GetByReference(ctx, logRow.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return e.callbacks.MarkProcessed(ctx, logRow.ID)
		}
		return fmt.Errorf("failed to load intent for replay of %s: %w", logRow.Reference, err)
	}

	switch {
	case row.Status == intentDatamodel.StatusPaid && logRow.StatusAfter == intentDatamodel.StatusPaid:
		if err := e.runSideEffects(ctx, row); err != nil {
			return fmt.Errorf("side-effect replay failed for %s: %w", logRow.Reference, err)
		}
	case row.IsTerminal():
		// Stale delivery; the terminal state owns the truth.
	case intentDatamodel.ValidGatewayStatus(logRow.StatusAfter):
		updated, applied, err := e.intents.TransitionStatus(ctx, logRow.Reference, logRow.StatusAfter, nil)
		if err != nil {
			return fmt.Errorf("replay transition failed for %s: %w", logRow.Reference, err)
		}
		if applied {
			if err := e.runSideEffects(ctx, updated); err != nil {
				return fmt.Errorf("side-effect replay failed for %s: %w", logRow.Reference, err)
			}
		}
	}

	return e.callbacks.MarkProcessed(ctx, logRow.ID)
}

func (e *Engine) markProcessed(ctx context.Context, logID int64, reference string) {
	if err := e.callbacks.MarkProcessed(ctx, logID); err != nil {
		// The replay sweep will revisit the row; reconciliation itself is done.
		e.logger.Warn("failed to mark callback log processed",
			"error", err,
			"callback_log_id", logID,
			"reference", reference)
	}
}
