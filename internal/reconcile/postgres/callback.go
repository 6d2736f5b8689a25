package postgres

import (
	"context"

	callbackDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/callback"
	"gorm.io/gorm"
)

type CallbackRepository struct {
	db *gorm.DB
}

func NewCallbackRepository(db *gorm.DB) *CallbackRepository {
	return &CallbackRepository{
		db: db,
	}
}

// Append inserts one audit row per delivery. Rows are never updated except
// through MarkProcessed.
func (r *CallbackRepository) Append(ctx context.Context, log *callbackDatamodel.Log) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *CallbackRepository) MarkProcessed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&callbackDatamodel.Log{}).
		Where("id = ?", id).
		UpdateColumn("processed", true).Error
}

// ListUnprocessed returns verified deliveries whose reconciliation never
// completed, oldest first, for the replay sweep.
func (r *CallbackRepository) ListUnprocessed(ctx context.Context, limit int) ([]*callbackDatamodel.Log, error) {
	var logs []*callbackDatamodel.Log
	err := r.db.WithContext(ctx).
		Where("processed = ? AND signature_ok = ?", false, true).
		Order("received_at ASC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// ListByReference returns the full delivery history for a reference, used by
// operators diagnosing gateway behavior.
func (r *CallbackRepository) ListByReference(ctx context.Context, reference string) ([]*callbackDatamodel.Log, error) {
	var logs []*callbackDatamodel.Log
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("received_at ASC").
		Find(&logs).Error
	return logs, err
}
