package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shylock-app/shylock/pkg/models"
)

// Normalize prepares raw payment events for the engine: dates are truncated
// to calendar days, events before origination are dropped, amounts are
// quantized to cents, the result is sorted by date, and same-day events are
// pooled into one. The input slice is not modified.
func Normalize(events []models.PaymentEvent, origination time.Time) []models.PaymentEvent {
	origination = DateOnly(origination)

	cleaned := make([]models.PaymentEvent, 0, len(events))
	for _, e := range events {
		d := DateOnly(e.Date)
		if d.Before(origination) {
			continue
		}
		cleaned = append(cleaned, models.PaymentEvent{Date: d, Amount: e.Amount.Round(2)})
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].Date.Before(cleaned[j].Date) })

	merged := cleaned[:0]
	for _, e := range cleaned {
		if n := len(merged); n > 0 && merged[n-1].Date.Equal(e.Date) {
			merged[n-1].Amount = merged[n-1].Amount.Add(e.Amount)
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// checkOrdered verifies the normalizer's contract: strictly increasing dates
// after same-day pooling. A violation means a bug upstream, and the engine
// fails loudly rather than silently attributing payments to the wrong cycle.
func checkOrdered(events []models.PaymentEvent) error {
	for i := 1; i < len(events); i++ {
		if !events[i].Date.After(events[i-1].Date) {
			return fmt.Errorf("%w: event %d (%s) not after event %d (%s)",
				ErrUnorderedPayments, i, events[i].Date.Format("2006-01-02"),
				i-1, events[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}
