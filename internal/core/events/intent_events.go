package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeIntentExpired    = "intent.expired"
)

// PaymentConfirmedEvent is published exactly once per reference, on the first
// transition of its intent into paid. The side-effect pipeline subscribes to
// it with the reference as idempotency key.
type PaymentConfirmedEvent struct {
	BaseEvent
	IntentID   int64  `json:"intent_id"`
	Reference  string `json:"reference"`
	UserID     int64  `json:"user_id"`
	ContractID *int64 `json:"contract_id,omitempty"`
	Purpose    string `json:"purpose"`
	Amount     int64  `json:"amount"`
	PaidAt     string `json:"paid_at"`
}

func NewPaymentConfirmedEvent(intentID int64, reference string, userID int64, contractID *int64, purpose string, amount int64, paidAt time.Time) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id": intentID,
				"reference": reference,
				"user_id":   userID,
				"purpose":   purpose,
				"amount":    amount,
			},
		},
		IntentID:   intentID,
		Reference:  reference,
		UserID:     userID,
		ContractID: contractID,
		Purpose:    purpose,
		Amount:     amount,
		PaidAt:     paidAt.UTC().Format(time.RFC3339),
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	IntentID      int64  `json:"intent_id"`
	Reference     string `json:"reference"`
	UserID        int64  `json:"user_id"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(intentID int64, reference string, userID int64, amount int64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":      intentID,
				"reference":      reference,
				"user_id":        userID,
				"amount":         amount,
				"failure_reason": failureReason,
			},
		},
		IntentID:      intentID,
		Reference:     reference,
		UserID:        userID,
		Amount:        amount,
		FailureReason: failureReason,
	}
}

type IntentExpiredEvent struct {
	BaseEvent
	IntentID  int64  `json:"intent_id"`
	Reference string `json:"reference"`
}

func NewIntentExpiredEvent(intentID int64, reference string) *IntentExpiredEvent {
	return &IntentExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIntentExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id": intentID,
				"reference": reference,
			},
		},
		IntentID:  intentID,
		Reference: reference,
	}
}
