package postgres

import (
	"context"

	receiptDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/receipt"
	"gorm.io/gorm"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create inserts the receipt. The unique (contract_id, month_year) index
// surfaces a retry as gorm.ErrDuplicatedKey, which callers treat as success.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *receiptDatamodel.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *ReceiptRepository) GetByContractPeriod(ctx context.Context, contractID int64, monthYear string) (*receiptDatamodel.Receipt, error) {
	var receipt receiptDatamodel.Receipt
	err := r.db.WithContext(ctx).
		Where("contract_id = ? AND month_year = ?", contractID, monthYear).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) ListByContract(ctx context.Context, contractID int64) ([]*receiptDatamodel.Receipt, error) {
	var receipts []*receiptDatamodel.Receipt
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&receipts).Error
	return receipts, err
}
