package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	paymentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/payment"
)

func TestIntentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Intent Repository Suite")
}

// PaymentIntentSQLite is a test-specific version with text instead of jsonb
// and no server-side defaults, for SQLite compatibility.
type PaymentIntentSQLite struct {
	ID            int64           `gorm:"primaryKey"`
	Reference     string          `gorm:"column:reference;not null;uniqueIndex"`
	UserID        int64           `gorm:"column:user_id;not null"`
	ContractID    *int64          `gorm:"column:contract_id"`
	Purpose       string          `gorm:"column:purpose;not null"`
	Amount        int64           `gorm:"column:amount;not null"`
	Channel       string          `gorm:"column:channel;not null"`
	Status        string          `gorm:"column:status;default:created"`
	RedirectURL   string          `gorm:"column:redirect_url"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:text"`
	FailureReason *string         `gorm:"column:failure_reason"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
	PaidAt        *time.Time      `gorm:"column:paid_at"`
}

func (PaymentIntentSQLite) TableName() string {
	return "payment_intents"
}

type PaymentSQLite struct {
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
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (PaymentSQLite) TableName() string {
	return "payments"
}

var _ = ginkgo.Describe("IntentRepository", func() {
	var (
		db   *gorm.DB
		repo *IntentRepository
		ctx  context.Context
	)

	newIntent := func(reference, status string) *intentDatamodel.PaymentIntent {
		return &intentDatamodel.PaymentIntent{
			Reference: reference,
			UserID:    11,
			Purpose:   intentDatamodel.PurposeReceipt,
			Amount:    45000,
			Channel:   intentDatamodel.ChannelWeb,
			Status:    status,
			Metadata:  json.RawMessage(`{"channel":"web"}`),
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			TranslateError: true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&PaymentIntentSQLite{}, &PaymentSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewIntentRepository(db)
	})

	ginkgo.Describe("CreateWithProjection", func() {
		ginkgo.It("inserts the intent and its payment projection together", func() {
			p := newIntent("RP-202609-000001", intentDatamodel.StatusCreated)

			err := repo.CreateWithProjection(ctx, p)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.ID).To(gomega.BeNumerically(">", 0))

			projection, err := repo.GetProjectionByReference(ctx, "RP-202609-000001")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(projection.PayerID).To(gomega.Equal(int64(11)))
			gomega.Expect(projection.Amount).To(gomega.Equal(int64(45000)))
			gomega.Expect(projection.Status).To(gomega.Equal(paymentDatamodel.StatusPending))
		})

		ginkgo.It("rejects a duplicate reference with ErrDuplicatedKey", func() {
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).To(gomega.Succeed())

			err := repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))

			gomega.Expect(err).To(gomega.MatchError(gorm.ErrDuplicatedKey))
		})

		ginkgo.It("leaves no projection behind when the intent insert fails", func() {
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).To(gomega.Succeed())
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).ToNot(gomega.Succeed())

			var count int64
			gomega.Expect(db.Model(&PaymentSQLite{}).Count(&count).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(1)))
		})
	})

	ginkgo.Describe("TransitionStatus", func() {
		ginkgo.BeforeEach(func() {
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).To(gomega.Succeed())
		})

		ginkgo.It("applies the first transition to paid and stamps paid_at", func() {
			row, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusPaid, nil)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())
			gomega.Expect(row.Status).To(gomega.Equal(intentDatamodel.StatusPaid))
			gomega.Expect(row.PaidAt).ToNot(gomega.BeNil())

			projection, err := repo.GetProjectionByReference(ctx, "RP-202609-000001")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(projection.Status).To(gomega.Equal(paymentDatamodel.StatusCompleted))
			gomega.Expect(projection.CompletedAt).ToNot(gomega.BeNil())
		})

		ginkgo.It("does not apply a second transition once the row is terminal", func() {
			_, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusPaid, nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())

			reason := "insufficient funds"
			row, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusFailed, &reason)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeFalse())
			gomega.Expect(row.Status).To(gomega.Equal(intentDatamodel.StatusPaid))
			gomega.Expect(row.FailureReason).To(gomega.BeNil())
		})

		ginkgo.It("records the failure reason on a failed transition", func() {
			reason := "wallet blocked"

			row, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusFailed, &reason)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())
			gomega.Expect(row.Status).To(gomega.Equal(intentDatamodel.StatusFailed))
			gomega.Expect(row.FailureReason).ToNot(gomega.BeNil())
			gomega.Expect(*row.FailureReason).To(gomega.Equal("wallet blocked"))

			projection, err := repo.GetProjectionByReference(ctx, "RP-202609-000001")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(projection.Status).To(gomega.Equal(paymentDatamodel.StatusFailed))
		})

		ginkgo.It("allows created to move through pending before settling", func() {
			_, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusPending, nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())

			row, applied, err := repo.TransitionStatus(ctx, "RP-202609-000001", intentDatamodel.StatusPaid, nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())
			gomega.Expect(row.Status).To(gomega.Equal(intentDatamodel.StatusPaid))
		})
	})

	ginkgo.Describe("ListExpiryCandidates", func() {
		ginkgo.It("returns only stale non-terminal intents", func() {
			stale := newIntent("RP-202609-000001", intentDatamodel.StatusPending)
			stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
			gomega.Expect(repo.CreateWithProjection(ctx, stale)).To(gomega.Succeed())

			fresh := newIntent("RP-202609-000002", intentDatamodel.StatusCreated)
			gomega.Expect(repo.CreateWithProjection(ctx, fresh)).To(gomega.Succeed())

			settled := newIntent("RP-202609-000003", intentDatamodel.StatusPaid)
			settled.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
			gomega.Expect(repo.CreateWithProjection(ctx, settled)).To(gomega.Succeed())

			cutoff := time.Now().UTC().Add(-24 * time.Hour)
			candidates, err := repo.ListExpiryCandidates(ctx, cutoff, 100)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(candidates).To(gomega.HaveLen(1))
			gomega.Expect(candidates[0].Reference).To(gomega.Equal("RP-202609-000001"))
		})
	})

	ginkgo.Describe("UpdateRedirectURL", func() {
		ginkgo.It("persists the gateway redirect", func() {
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).To(gomega.Succeed())

			err := repo.UpdateRedirectURL(ctx, "RP-202609-000001", "https://gateway.example/pay/RP-202609-000001")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			row, err := repo.GetByReference(ctx, "RP-202609-000001")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(row.RedirectURL).To(gomega.Equal("https://gateway.example/pay/RP-202609-000001"))
		})
	})

	ginkgo.Describe("MergeMetadata", func() {
		ginkgo.It("folds the patch in without dropping existing keys", func() {
			gomega.Expect(repo.CreateWithProjection(ctx, newIntent("RP-202609-000001", intentDatamodel.StatusCreated))).To(gomega.Succeed())

			err := repo.MergeMetadata(ctx, "RP-202609-000001", map[string]interface{}{
				"gateway_txn": "MM-778899",
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			row, err := repo.GetByReference(ctx, "RP-202609-000001")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			var merged map[string]interface{}
			gomega.Expect(json.Unmarshal(row.Metadata, &merged)).To(gomega.Succeed())
			gomega.Expect(merged).To(gomega.HaveKeyWithValue("channel", "web"))
			gomega.Expect(merged).To(gomega.HaveKeyWithValue("gateway_txn", "MM-778899"))
		})
	})

	ginkgo.Describe("NextReference", func() {
		ginkgo.It("falls back to uuid-derived references outside postgres", func() {
			ref, err := repo.NextReference(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(strings.HasPrefix(ref, "RP-"+time.Now().UTC().Format("200601")+"-")).To(gomega.BeTrue())

			other, err := repo.NextReference(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(other).ToNot(gomega.Equal(ref))
		})

		ginkgo.It("never hands the same reference to concurrent callers", func() {
			const callers = 32
			refs := make(chan string, callers)

			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer ginkgo.GinkgoRecover()
					defer wg.Done()
					ref, err := repo.NextReference(ctx)
					gomega.Expect(err).ToNot(gomega.HaveOccurred())
					refs <- ref
				}()
			}
			wg.Wait()
			close(refs)

			seen := make(map[string]struct{}, callers)
			for ref := range refs {
				seen[ref] = struct{}{}
			}
			gomega.Expect(seen).To(gomega.HaveLen(callers))
		})
	})
})
