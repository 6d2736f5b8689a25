package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	paymentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/payment"
	"github.com/akwaba/rentpay/internal/intent"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) *IntentRepository {
	return &IntentRepository{
		db: db,
	}
}

// NextReference draws the next value from the payment reference sequence.
// Outside postgres (the sqlite test rig) it falls back to uuid-derived
// entropy, which keeps the same format without a shared sequence.
func (r *IntentRepository) NextReference(ctx context.Context) (string, error) {
	if r.db.Dialector.Name() != "postgres" {
		return fmt.Sprintf("RP-%s-%s", time.Now().UTC().Format("200601"), uuid.NewString()[:8]), nil
	}

	var seq int64
	err := r.db.WithContext(ctx).Raw("SELECT nextval('payment_reference_seq')").Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("failed to fetch reference sequence value: %w", err)
	}
	return intent.FormatReference(seq, time.Now()), nil
}

// CreateWithProjection inserts the intent and its payment projection in a
// single transaction so the projection can never be missing.
func (r *IntentRepository) CreateWithProjection(ctx context.Context, p *intentDatamodel.PaymentIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		projection := &paymentDatamodel.Payment{
			PayerID:       p.UserID,
			Amount:        p.Amount,
			PaymentType:   p.Purpose,
			PaymentMethod: "mobile_money",
			Status:        paymentDatamodel.StatusPending,
			TransactionID: p.Reference,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.Create(projection).Error
	})
}

func (r *IntentRepository) GetByReference(ctx context.Context, reference string) (*intentDatamodel.PaymentIntent, error) {
	var p intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *IntentRepository) GetProjectionByReference(ctx context.Context, reference string) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *IntentRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*intentDatamodel.PaymentIntent, error) {
	var intents []*intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&intents).Error
	return intents, err
}

func (r *IntentRepository) UpdateRedirectURL(ctx context.Context, reference, redirectURL string) error {
	return r.db.WithContext(ctx).
		Model(&intentDatamodel.PaymentIntent{}).
		Where("reference = ?", reference).
		Updates(map[string]interface{}{
			"redirect_url": redirectURL,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// MergeMetadata folds the patch into the stored metadata bag. Existing keys
// not named in the patch survive; the bag is never overwritten wholesale.
func (r *IntentRepository) MergeMetadata(ctx context.Context, reference string, patch map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p intentDatamodel.PaymentIntent
		if err := tx.Where("reference = ?", reference).First(&p).Error; err != nil {
			return err
		}

		merged := make(map[string]interface{})
		if len(p.Metadata) > 0 {
			if err := json.Unmarshal(p.Metadata, &merged); err != nil {
				return fmt.Errorf("failed to decode stored metadata: %w", err)
			}
		}
		for k, v := range patch {
			merged[k] = v
		}

		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		return tx.Model(&intentDatamodel.PaymentIntent{}).
			Where("reference = ?", reference).
			Updates(map[string]interface{}{
				"metadata":   json.RawMessage(raw),
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

// TransitionStatus applies the state-gated transition: the conditional UPDATE
// only matches non-terminal rows, so under duplicate or racing deliveries
// exactly one caller observes applied=true. The payment projection is updated
// in the same transaction. Returns the row as it stands after the attempt.
func (r *IntentRepository) TransitionStatus(ctx context.Context, reference, newStatus string, failureReason *string) (*intentDatamodel.PaymentIntent, bool, error) {
	var row intentDatamodel.PaymentIntent
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		updates := map[string]interface{}{
			"status":     newStatus,
			"updated_at": now,
		}
		if newStatus == intentDatamodel.StatusPaid {
			updates["paid_at"] = now
		}
		if failureReason != nil {
			updates["failure_reason"] = *failureReason
		}

		res := tx.Model(&intentDatamodel.PaymentIntent{}).
			Where("reference = ? AND status NOT IN ?", reference, intentDatamodel.TerminalStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0

		if applied {
			projUpdates := map[string]interface{}{
				"status":     paymentDatamodel.StatusForIntent(newStatus),
				"updated_at": now,
			}
			if newStatus == intentDatamodel.StatusPaid {
				projUpdates["completed_at"] = now
			}
			if err := tx.Model(&paymentDatamodel.Payment{}).
				Where("transaction_id = ?", reference).
				Updates(projUpdates).Error; err != nil {
				return err
			}
		}

		return tx.Where("reference = ?", reference).First(&row).Error
	})
	if err != nil {
		return nil, false, err
	}

	return &row, applied, nil
}

// ListExpiryCandidates returns intents stuck in a non-terminal state beyond
// the horizon. Callers still go through TransitionStatus per row so a late
// legitimate callback racing the sweep cannot be overwritten.
func (r *IntentRepository) ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*intentDatamodel.PaymentIntent, error) {
	var intents []*intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{intentDatamodel.StatusCreated, intentDatamodel.StatusPending}, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}
