package statement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

// WriteCSV exports a cycle ledger in a spreadsheet-friendly shape.
func WriteCSV(w io.Writer, cycles []models.CycleRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"due_date", "payment_date", "days_late", "amount_posted", "cycle_interest", "late_fee", "principal_applied", "ending_principal"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range cycles {
		paid := ""
		if c.SatisfiedOn != nil {
			paid = c.SatisfiedOn.Format("2006-01-02")
		}
		rec := []string{
			c.DueDate.Format("2006-01-02"),
			paid,
			fmt.Sprintf("%d", c.DaysLate),
			c.AmountPosted.StringFixed(2),
			c.CycleInterest.StringFixed(2),
			c.LateFeeAssessed.StringFixed(2),
			c.PrincipalApplied.StringFixed(2),
			c.EndingPrincipal.StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWaterfallCSV exports a legacy waterfall ledger.
func WriteWaterfallCSV(w io.Writer, rows []models.AllocationRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"payment_date", "due_date", "payment_amount", "loan_interest_due", "penalty_interest_accrued", "late_fee_assessed", "to_penalty_interest", "to_late_fees", "to_loan_interest", "to_principal", "ending_principal", "late_fees_outstanding", "penalty_interest_outstanding"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.PaymentDate.Format("2006-01-02"),
			r.DueDate.Format("2006-01-02"),
			r.PaymentAmount.StringFixed(2),
			r.AccruedLoanInterest.StringFixed(2),
			r.PenaltyInterestAccrued.StringFixed(2),
			r.LateFeeAssessed.StringFixed(2),
			r.ToPenaltyInterest.StringFixed(2),
			r.ToLateFees.StringFixed(2),
			r.ToLoanInterest.StringFixed(2),
			r.ToPrincipal.StringFixed(2),
			r.EndingPrincipal.StringFixed(2),
			r.LateFeesOutstanding.StringFixed(2),
			r.PenaltyIntOutstanding.StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var paymentDateFormats = []string{"1/2/2006", "2006-01-02", "2006-1-2"}

func parsePaymentDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range paymentDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// cleanAmount strips currency punctuation from a raw spreadsheet cell:
// dollar signs, thousands separators, non-breaking spaces, and accounting
// parentheses for negatives.
func cleanAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func headerKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// ImportPaymentsCSV reads raw payment rows from bank-export style CSV. The
// file must carry a header naming an amount column and a date column
// ("date" or "payment_date", any case). Rows with unparsable dates,
// unparsable amounts, or non-positive amounts are dropped rather than
// failing the whole import. The ledger engine's normalizer handles the
// rest (sorting, same-day pooling, pre-origination exclusion).
func ImportPaymentsCSV(r io.Reader) ([]models.PaymentEvent, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // tolerate ragged exports

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	dateCol, amountCol := -1, -1
	for i, h := range header {
		switch headerKey(h) {
		case "payment_date", "date":
			if dateCol < 0 {
				dateCol = i
			}
		case "amount":
			amountCol = i
		}
	}
	if amountCol < 0 {
		return nil, fmt.Errorf("missing 'Amount' column")
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("missing 'Payment Date' column")
	}

	var events []models.PaymentEvent
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		if dateCol >= len(rec) || amountCol >= len(rec) {
			continue
		}
		date, ok := parsePaymentDate(rec[dateCol])
		if !ok {
			continue
		}
		amount, ok := cleanAmount(rec[amountCol])
		if !ok || !amount.IsPositive() {
			continue
		}
		events = append(events, models.PaymentEvent{Date: date, Amount: amount})
	}
	return events, nil
}
