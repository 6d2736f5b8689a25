package callback

import (
	"time"
)

// Log is the append-only audit record of one inbound webhook delivery. One
// row is inserted per HTTP delivery regardless of verification outcome;
// duplicates per reference are expected under at-least-once delivery. Only
// the Processed flag ever mutates after insert.
type Log struct {
	ID          int64     `gorm:"primaryKey"`
	Reference   string    `gorm:"column:reference;not null;index"`
	RawPayload  string    `gorm:"column:raw_payload;not null"`
	StatusAfter string    `gorm:"column:status_after"`
	SignatureOK bool      `gorm:"column:signature_ok;not null"`
	Processed   bool      `gorm:"column:processed;not null;default:false"`
	ReceivedAt  time.Time `gorm:"column:received_at;default:now()"`
}

func (Log) TableName() string {
	return "callback_logs"
}
