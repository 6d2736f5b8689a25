package payment

import (
	"time"
)

// Projection status values, coarser than intent statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payment is the compatibility projection of an intent consumed by the
// receipts widgets and reporting features. Exactly one row exists per intent,
// joined on TransactionID = intent reference, and is only ever written in the
// same transaction as the intent itself.
type Payment struct {
	ID            int64      `gorm:"primaryKey"`
	PayerID       int64      `gorm:"column:payer_id;not null"`
	ReceiverID    *int64     `gorm:"column:receiver_id"`
	PropertyID    *int64     `gorm:"column:property_id"`
	Amount        int64      `gorm:"column:amount;not null"`
	PaymentType   string     `gorm:"column:payment_type;not null"`
	PaymentMethod string     `gorm:"column:payment_method"`
	Status        string     `gorm:"column:status;default:pending"`
	TransactionID string     `gorm:"column:transaction_id;not null;uniqueIndex"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}

// StatusForIntent maps an intent status onto the projection enum. The mapping
// is deterministic so the projection can never diverge from its intent.
func StatusForIntent(intentStatus string) string {
	switch intentStatus {
	case "paid":
		return StatusCompleted
	case "failed", "expired":
		return StatusFailed
	default:
		return StatusPending
	}
}
