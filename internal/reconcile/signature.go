package reconcile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignatureVerifier checks the HMAC the gateway attaches to settlement
// callbacks. The shared secret lives only in server config; a payload failing
// verification is never trusted regardless of its claimed status.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// CanonicalPayload is the exact byte string both sides sign. Field order is
// fixed; metadata is excluded so cosmetic gateway additions cannot break
// verification.
func CanonicalPayload(reference, status string, amount int64) string {
	return fmt.Sprintf("%s|%s|%d", reference, status, amount)
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical payload. The
// simulated gateway uses it to produce verifiable callbacks.
func (v *SignatureVerifier) Sign(reference, status string, amount int64) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(CanonicalPayload(reference, status, amount)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
func (v *SignatureVerifier) Verify(reference, status string, amount int64, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(CanonicalPayload(reference, status, amount)))
	expected := mac.Sum(nil)

	return hmac.Equal(expected, provided)
}
