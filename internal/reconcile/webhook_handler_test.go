package reconcile_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	"github.com/akwaba/rentpay/internal/core/events"
	"github.com/akwaba/rentpay/internal/reconcile"
)

var _ = Describe("WebhookHandler", func() {
	var (
		intents   *mockIntentStore
		callbacks *mockCallbackStore
		verifier  *reconcile.SignatureVerifier
		handler   *reconcile.WebhookHandler
	)

	post := func(body map[string]interface{}) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/settlement", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.HandleSettlementCallback(rec, req)
		return rec
	}

	signedBody := func(reference, status string, amount int64) map[string]interface{} {
		return map[string]interface{}{
			"reference": reference,
			"status":    status,
			"amount":    amount,
			"signature": verifier.Sign(reference, status, amount),
		}
	}

	BeforeEach(func() {
		intents = newMockIntentStore()
		callbacks = newMockCallbackStore()
		verifier = reconcile.NewSignatureVerifier("shared-webhook-secret-for-testing-only")
		bus := events.NewEventBus(testLogger())
		engine := reconcile.NewEngine(intents, callbacks, bus, testLogger())
		handler = reconcile.NewWebhookHandler(engine, verifier, testLogger())

		intents.add(&intentDatamodel.PaymentIntent{
			Reference: "RP-202609-000001",
			UserID:    11,
			Purpose:   intentDatamodel.PurposeOther,
			Amount:    45000,
			Channel:   intentDatamodel.ChannelWeb,
			Status:    intentDatamodel.StatusPending,
			CreatedAt: time.Now().UTC(),
		})
	})

	Context("with a correctly signed paid callback", func() {
		It("returns 200 and transitions the intent", func() {
			rec := post(signedBody("RP-202609-000001", "paid", 45000))

			Expect(rec.Code).To(Equal(http.StatusOK))

			stored, err := intents.GetByReference(context.Background(), "RP-202609-000001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(intentDatamodel.StatusPaid))
		})
	})

	Context("when the same callback is delivered twice", func() {
		It("acknowledges both with 200", func() {
			body := signedBody("RP-202609-000001", "paid", 45000)

			Expect(post(body).Code).To(Equal(http.StatusOK))
			Expect(post(body).Code).To(Equal(http.StatusOK))
			Expect(callbacks.count()).To(Equal(2))
		})
	})

	Context("with an invalid signature", func() {
		It("returns 403 and does not transition the intent", func() {
			body := signedBody("RP-202609-000001", "paid", 45000)
			body["signature"] = "deadbeef"

			rec := post(body)

			Expect(rec.Code).To(Equal(http.StatusForbidden))

			stored, _ := intents.GetByReference(context.Background(), "RP-202609-000001")
			Expect(stored.Status).To(Equal(intentDatamodel.StatusPending))
		})
	})

	Context("with an unknown reference", func() {
		It("returns 404", func() {
			rec := post(signedBody("RP-999999-000000", "paid", 45000))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("with a status value outside the gateway enum", func() {
		It("returns 400", func() {
			rec := post(signedBody("RP-202609-000001", "settled", 45000))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("with a missing reference", func() {
		It("returns 400 without logging a delivery", func() {
			rec := post(map[string]interface{}{
				"status": "paid",
				"amount": 45000,
			})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(callbacks.count()).To(Equal(0))
		})
	})

	Context("with a missing status", func() {
		It("returns 400", func() {
			rec := post(map[string]interface{}{
				"reference": "RP-202609-000001",
				"amount":    45000,
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("with a failure reason in metadata", func() {
		It("persists the reason on the failed intent", func() {
			body := signedBody("RP-202609-000001", "failed", 45000)
			body["metadata"] = map[string]string{"failure_reason": "wallet blocked"}

			rec := post(body)
			Expect(rec.Code).To(Equal(http.StatusOK))

			stored, _ := intents.GetByReference(context.Background(), "RP-202609-000001")
			Expect(stored.Status).To(Equal(intentDatamodel.StatusFailed))
			Expect(stored.FailureReason).ToNot(BeNil())
			Expect(*stored.FailureReason).To(Equal("wallet blocked"))
		})
	})

	Context("with gateway metadata on the callback", func() {
		It("merges the bag into the intent", func() {
			body := signedBody("RP-202609-000001", "paid", 45000)
			body["metadata"] = map[string]string{"gateway_txn": "MM-778899", "operator": "wave"}

			rec := post(body)
			Expect(rec.Code).To(Equal(http.StatusOK))

			Expect(intents.mergeCount()).To(Equal(1))
			Expect(intents.lastMerge()).To(HaveKeyWithValue("gateway_txn", "MM-778899"))
			Expect(intents.lastMerge()).To(HaveKeyWithValue("operator", "wave"))
		})
	})

	Context("when the intent store fails after the delivery is logged", func() {
		It("still answers 200 and leaves the log for the replay sweep", func() {
			intents.transitionErr = errors.New("connection reset")

			rec := post(signedBody("RP-202609-000001", "paid", 45000))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(callbacks.count()).To(Equal(1))
			Expect(callbacks.logByID(1).Processed).To(BeFalse())
		})
	})
})
