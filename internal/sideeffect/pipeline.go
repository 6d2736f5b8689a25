package sideeffect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	paymentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/payment"
	receiptDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/receipt"
	"github.com/akwaba/rentpay/internal/core/events"
	"gorm.io/gorm"
)

// ReceiptStore persists receipts. Create must surface unique-constraint
// violations as gorm.ErrDuplicatedKey so retries can be collapsed.
type ReceiptStore interface {
	Create(ctx context.Context, receipt *receiptDatamodel.Receipt) error
}

// ProjectionStore resolves the payment projection row a receipt points at.
type ProjectionStore interface {
	GetProjectionByReference(ctx context.Context, reference string) (*paymentDatamodel.Payment, error)
}

// Pipeline dispatches the one-time effects owed to a confirmed payment,
// keyed by its reference. Every step is idempotent, so the pipeline as a
// whole can be re-fired by the replay sweep after a partial failure.
type Pipeline struct {
	receipts  ReceiptStore
	projector ProjectionStore
	documents DocumentGenerator
	esign     SignatureRequester
	logger    *slog.Logger
}

func NewPipeline(receipts ReceiptStore, projector ProjectionStore, documents DocumentGenerator, esign SignatureRequester, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		receipts:  receipts,
		projector: projector,
		documents: documents,
		esign:     esign,
		logger:    logger,
	}
}

// Run executes the effects for a confirmed payment based on its purpose.
func (p *Pipeline) Run(ctx context.Context, ev *events.PaymentConfirmedEvent) error {
	switch ev.Purpose {
	case intentDatamodel.PurposeLeaseFee:
		return p.runLeaseFee(ctx, ev)
	case intentDatamodel.PurposeReceipt:
		return p.issueReceipt(ctx, ev)
	default:
		p.logger.Info("no side effects for purpose",
			"purpose", ev.Purpose,
			"reference", ev.Reference)
		return nil
	}
}

func (p *Pipeline) runLeaseFee(ctx context.Context, ev *events.PaymentConfirmedEvent) error {
	if ev.ContractID == nil {
		// The intent validator requires a contract for lease fees, so this
		// only happens on corrupted historical data.
		p.logger.Warn("lease fee confirmed without contract, skipping document generation",
			"reference", ev.Reference)
		return nil
	}
	contractID := *ev.ContractID

	if err := p.documents.GenerateLeaseContract(ctx, contractID, ev.Reference); err != nil {
		return fmt.Errorf("lease contract generation for %s: %w", ev.Reference, err)
	}

	if err := p.esign.RequestSignature(ctx, contractID, ev.UserID); err != nil {
		return fmt.Errorf("signature session for %s: %w", ev.Reference, err)
	}

	p.logger.Info("lease fee side effects completed",
		"reference", ev.Reference,
		"contract_id", contractID)
	return nil
}

func (p *Pipeline) issueReceipt(ctx context.Context, ev *events.PaymentConfirmedEvent) error {
	if ev.ContractID == nil {
		p.logger.Warn("receipt purpose without contract, skipping issuance",
			"reference", ev.Reference)
		return nil
	}

	projection, err := p.projector.GetProjectionByReference(ctx, ev.Reference)
	if err != nil {
		return fmt.Errorf("failed to load payment projection for %s: %w", ev.Reference, err)
	}

	paidAt, err := time.Parse(time.RFC3339, ev.PaidAt)
	if err != nil {
		paidAt = time.Now().UTC()
	}

	receipt := &receiptDatamodel.Receipt{
		PaymentID:  projection.ID,
		ContractID: *ev.ContractID,
		MonthYear:  receiptDatamodel.PeriodFor(paidAt),
		Amount:     ev.Amount,
		QRID:       receiptDatamodel.QRIDFor(ev.Reference),
	}

	if err := p.receipts.Create(ctx, receipt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A previous attempt already issued the receipt for this period.
			p.logger.Info("receipt already issued for period",
				"reference", ev.Reference,
				"contract_id", receipt.ContractID,
				"month_year", receipt.MonthYear)
			return nil
		}
		return fmt.Errorf("failed to issue receipt for %s: %w", ev.Reference, err)
	}

	p.logger.Info("receipt issued",
		"reference", ev.Reference,
		"contract_id", receipt.ContractID,
		"month_year", receipt.MonthYear,
		"qr_id", receipt.QRID)
	return nil
}
