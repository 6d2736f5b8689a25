package intent

import (
	"encoding/json"
	"time"
)

// Status values for a payment intent. Only forward transitions are allowed:
// created -> pending -> paid|failed, with expired reachable from created and
// pending via the expiry sweep. paid, failed and expired are terminal.
const (
	StatusCreated = "created"
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

const (
	PurposeLeaseFee = "LEASE_FEE"
	PurposeReceipt  = "RECEIPT"
	PurposeOther    = "OTHER"
)

const (
	ChannelWeb  = "web"
	ChannelApp  = "app"
	ChannelUSSD = "ussd"
)

// PaymentIntent is the authoritative record of a requested settlement. Rows
// are never deleted; they form the financial audit trail.
type PaymentIntent struct {
	ID            int64           `gorm:"primaryKey"`
	Reference     string          `gorm:"column:reference;not null;uniqueIndex"`
	UserID        int64           `gorm:"column:user_id;not null"`
	ContractID    *int64          `gorm:"column:contract_id"`
	Purpose       string          `gorm:"column:purpose;not null"`
	Amount        int64           `gorm:"column:amount;not null"`
	Channel       string          `gorm:"column:channel;not null"`
	Status        string          `gorm:"column:status;default:created"`
	RedirectURL   string          `gorm:"column:redirect_url"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:jsonb"`
	FailureReason *string         `gorm:"column:failure_reason"`
	CreatedAt     time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;default:now()"`
	PaidAt        *time.Time      `gorm:"column:paid_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

func (p *PaymentIntent) IsTerminal() bool {
	return IsTerminalStatus(p.Status)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusPaid, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// TerminalStatuses is used by repositories to build the state-gated
// conditional update that closes the duplicate-delivery race.
var TerminalStatuses = []string{StatusPaid, StatusFailed, StatusExpired}

func ValidPurpose(purpose string) bool {
	switch purpose {
	case PurposeLeaseFee, PurposeReceipt, PurposeOther:
		return true
	}
	return false
}

func ValidChannel(channel string) bool {
	switch channel {
	case ChannelWeb, ChannelApp, ChannelUSSD:
		return true
	}
	return false
}

// ValidGatewayStatus reports whether a gateway-reported status maps onto the
// closed internal enum. Unknown strings are rejected at the boundary rather
// than silently applied.
func ValidGatewayStatus(status string) bool {
	switch status {
	case StatusPending, StatusPaid, StatusFailed:
		return true
	}
	return false
}
