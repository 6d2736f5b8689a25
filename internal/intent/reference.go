package intent

import (
	"context"
	"fmt"
	"time"
)

// ReferenceGenerator produces globally unique payment references. The
// postgres implementation draws from a database sequence so concurrent
// callers never need a check-then-insert round trip; the unique constraint on
// payment_intents.reference is the backstop.
type ReferenceGenerator interface {
	NextReference(ctx context.Context) (string, error)
}

// FormatReference renders a sequence value as an external-facing reference.
// The month component keeps references human-sortable on gateway dashboards.
func FormatReference(seq int64, now time.Time) string {
	return fmt.Sprintf("RP-%s-%06d", now.UTC().Format("200601"), seq)
}
