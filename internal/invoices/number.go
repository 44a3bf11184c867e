package invoices

import (
	"context"
	"time"

	"github.com/prepmood/prepmood-backend/pkg/retry"
	"github.com/prepmood/prepmood-backend/pkg/security"
)

const numberSuffixLen = 4

// InvoiceNumber formats PM-INV-YYMMDD-HHmm-XXXX.
func InvoiceNumber(at time.Time, suffix string) string {
	return "PM-INV-" + at.Format("060102-1504") + "-" + suffix
}

// CreditNoteNumber formats PM-CN-YYMMDD-HHmmss-XXXX.
func CreditNoteNumber(at time.Time, suffix string) string {
	return "PM-CN-" + at.Format("060102-150405") + "-" + suffix
}

// nextNumber draws numbers until one is free in storage.
func (s *service) nextNumber(ctx context.Context, repo Repository, at time.Time, format func(time.Time, string) string) (string, error) {
	generate := func() (string, error) {
		suffix, err := security.RandomCode(numberSuffixLen)
		if err != nil {
			return "", err
		}
		return format(at, suffix), nil
	}
	return retry.Unique(ctx, s.numberPolicy, generate, repo.NumberExists)
}
