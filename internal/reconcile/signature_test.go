package reconcile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/akwaba/rentpay/internal/reconcile"
)

var _ = Describe("SignatureVerifier", func() {
	var verifier *reconcile.SignatureVerifier

	BeforeEach(func() {
		verifier = reconcile.NewSignatureVerifier("shared-webhook-secret-for-testing-only")
	})

	Context("with a signature produced by the same secret", func() {
		It("verifies", func() {
			sig := verifier.Sign("RP-202609-000001", "paid", 45000)
			Expect(verifier.Verify("RP-202609-000001", "paid", 45000, sig)).To(BeTrue())
		})
	})

	Context("when any signed field changed", func() {
		It("rejects a tampered amount", func() {
			sig := verifier.Sign("RP-202609-000001", "paid", 45000)
			Expect(verifier.Verify("RP-202609-000001", "paid", 46000, sig)).To(BeFalse())
		})

		It("rejects a tampered status", func() {
			sig := verifier.Sign("RP-202609-000001", "failed", 45000)
			Expect(verifier.Verify("RP-202609-000001", "paid", 45000, sig)).To(BeFalse())
		})

		It("rejects a different reference", func() {
			sig := verifier.Sign("RP-202609-000001", "paid", 45000)
			Expect(verifier.Verify("RP-202609-000002", "paid", 45000, sig)).To(BeFalse())
		})
	})

	Context("with a signature from a different secret", func() {
		It("rejects", func() {
			other := reconcile.NewSignatureVerifier("some-other-secret-entirely-here-ok")
			sig := other.Sign("RP-202609-000001", "paid", 45000)
			Expect(verifier.Verify("RP-202609-000001", "paid", 45000, sig)).To(BeFalse())
		})
	})

	Context("with malformed signature input", func() {
		It("rejects non-hex input", func() {
			Expect(verifier.Verify("RP-202609-000001", "paid", 45000, "not-hex!")).To(BeFalse())
		})

		It("rejects the empty string", func() {
			Expect(verifier.Verify("RP-202609-000001", "paid", 45000, "")).To(BeFalse())
		})
	})

	Describe("CanonicalPayload", func() {
		It("joins reference, status and amount with pipes", func() {
			Expect(reconcile.CanonicalPayload("RP-1", "paid", 45000)).To(Equal("RP-1|paid|45000"))
		})
	})
})
