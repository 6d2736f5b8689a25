package receipt

import (
	"fmt"
	"time"
)

// Receipt evidences one settled billing period. The unique
// (contract_id, month_year) index is what makes issuance idempotent: a retry
// after a crash hits the constraint and is treated as success.
type Receipt struct {
	ID         int64     `gorm:"primaryKey"`
	PaymentID  int64     `gorm:"column:payment_id;not null"`
	ContractID int64     `gorm:"column:contract_id;not null;uniqueIndex:idx_receipts_contract_period"`
	MonthYear  string    `gorm:"column:month_year;not null;uniqueIndex:idx_receipts_contract_period"`
	Amount     int64     `gorm:"column:amount;not null"`
	QRID       string    `gorm:"column:qr_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;default:now()"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// QRIDFor derives the QR identifier from the payment reference so that
// regeneration is idempotent.
func QRIDFor(reference string) string {
	return "QR-" + reference
}

// PeriodFor formats the billing period for a settlement time.
func PeriodFor(t time.Time) string {
	return fmt.Sprintf("%02d-%d", t.Month(), t.Year())
}
