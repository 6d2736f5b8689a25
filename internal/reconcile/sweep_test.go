package reconcile_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	callbackDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/callback"
	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	"github.com/akwaba/rentpay/internal/core/events"
	"github.com/akwaba/rentpay/internal/reconcile"
)

var _ = Describe("Sweeper", func() {
	var (
		intents   *mockIntentStore
		callbacks *mockCallbackStore
		bus       *events.EventBus
		counter   *sideEffectCounter
		sweeper   *reconcile.Sweeper
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		intents = newMockIntentStore()
		callbacks = newMockCallbackStore()
		bus = events.NewEventBus(testLogger())
		counter = &sideEffectCounter{}
		counter.register(bus)
		engine := reconcile.NewEngine(intents, callbacks, bus, testLogger())
		sweeper = reconcile.NewSweeper(engine, intents, callbacks, bus, reconcile.SweeperConfig{
			ExpiryHorizon: 24 * time.Hour,
			BatchSize:     50,
		}, testLogger())
	})

	Describe("ExpireStale", func() {
		It("expires intents stuck beyond the horizon and leaves fresh ones alone", func() {
			intents.add(&intentDatamodel.PaymentIntent{
				Reference: "RP-202608-000001",
				UserID:    11,
				Purpose:   intentDatamodel.PurposeOther,
				Amount:    10000,
				Channel:   intentDatamodel.ChannelWeb,
				Status:    intentDatamodel.StatusPending,
				CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
			})
			intents.add(&intentDatamodel.PaymentIntent{
				Reference: "RP-202609-000002",
				UserID:    11,
				Purpose:   intentDatamodel.PurposeOther,
				Amount:    10000,
				Channel:   intentDatamodel.ChannelWeb,
				Status:    intentDatamodel.StatusCreated,
				CreatedAt: time.Now().UTC(),
			})

			count, err := sweeper.ExpireStale(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(1))

			stale, _ := intents.GetByReference(ctx, "RP-202608-000001")
			Expect(stale.Status).To(Equal(intentDatamodel.StatusExpired))
			Expect(stale.FailureReason).ToNot(BeNil())

			fresh, _ := intents.GetByReference(ctx, "RP-202609-000002")
			Expect(fresh.Status).To(Equal(intentDatamodel.StatusCreated))
		})

		It("never expires an intent that settled concurrently", func() {
			intents.add(&intentDatamodel.PaymentIntent{
				Reference: "RP-202608-000003",
				UserID:    11,
				Purpose:   intentDatamodel.PurposeOther,
				Amount:    10000,
				Channel:   intentDatamodel.ChannelWeb,
				Status:    intentDatamodel.StatusPaid,
				CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
			})

			count, err := sweeper.ExpireStale(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(0))

			stored, _ := intents.GetByReference(ctx, "RP-202608-000003")
			Expect(stored.Status).To(Equal(intentDatamodel.StatusPaid))
		})
	})

	Describe("ReplayUnprocessed", func() {
		It("replays verified unprocessed deliveries and marks them done", func() {
			intents.add(&intentDatamodel.PaymentIntent{
				Reference: "RP-202609-000004",
				UserID:    11,
				Purpose:   intentDatamodel.PurposeOther,
				Amount:    10000,
				Channel:   intentDatamodel.ChannelWeb,
				Status:    intentDatamodel.StatusPaid,
				CreatedAt: time.Now().UTC(),
			})
			Expect(callbacks.Append(ctx, &callbackDatamodel.Log{
				Reference:   "RP-202609-000004",
				StatusAfter: intentDatamodel.StatusPaid,
				SignatureOK: true,
			})).To(Succeed())

			count, err := sweeper.ReplayUnprocessed(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(counter.confirmedCount()).To(Equal(1))
			Expect(callbacks.logByID(1).Processed).To(BeTrue())
		})

		It("ignores unverified log rows", func() {
			Expect(callbacks.Append(ctx, &callbackDatamodel.Log{
				Reference:   "RP-202609-000005",
				StatusAfter: intentDatamodel.StatusPaid,
				SignatureOK: false,
			})).To(Succeed())

			count, err := sweeper.ReplayUnprocessed(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(0))
			Expect(counter.confirmedCount()).To(Equal(0))
		})
	})
})
