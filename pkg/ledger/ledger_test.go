package ledger

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

// standardTerms is the loan used throughout these tests: $100,000 at
// 6% APR originated 2023-01-31, $50 fixed late fee with 10 grace days.
func standardTerms() models.LoanTerms {
	return models.LoanTerms{
		Principal:       dec("100000"),
		OriginationDate: day(2023, time.January, 31),
		AnnualRate:      dec("0.06"),
		LateFee: models.LateFeePolicy{
			Kind:      models.LateFeeFixed,
			Amount:    dec("50"),
			GraceDays: 10,
		},
	}
}

func pay(y int, m time.Month, d int, amount string) models.PaymentEvent {
	return models.PaymentEvent{Date: day(y, m, d), Amount: dec(amount)}
}

func TestInterestOnlyOnTime(t *testing.T) {
	// Payments of exactly the cycle interest on each due date: balance
	// never moves and no fees are assessed.
	payments := []models.PaymentEvent{
		pay(2023, time.February, 28, "460.27"), // 28 days
		pay(2023, time.March, 31, "509.59"),    // 31 days
		pay(2023, time.April, 30, "493.15"),    // 30 days
	}

	rows, err := Compute(standardTerms(), payments, day(2023, time.June, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 cycles, got %d", len(rows))
	}

	for i, row := range rows {
		if row.SatisfiedOn == nil {
			t.Errorf("Cycle %d: expected satisfied, got open", i+1)
			continue
		}
		if !row.SatisfiedOn.Equal(row.DueDate) {
			t.Errorf("Cycle %d: satisfied on %s, want due date %s", i+1, row.SatisfiedOn, row.DueDate)
		}
		if row.DaysLate != 0 {
			t.Errorf("Cycle %d: days late = %d, want 0", i+1, row.DaysLate)
		}
		if !row.LateFeeAssessed.IsZero() {
			t.Errorf("Cycle %d: late fee = %s, want 0", i+1, row.LateFeeAssessed)
		}
		if !row.PrincipalApplied.IsZero() {
			t.Errorf("Cycle %d: principal applied = %s, want 0", i+1, row.PrincipalApplied)
		}
		if !row.EndingPrincipal.Equal(dec("100000")) {
			t.Errorf("Cycle %d: ending principal = %s, want 100000", i+1, row.EndingPrincipal)
		}
	}
}

func TestEarlyPartialPaymentCarriesForward(t *testing.T) {
	// $500 on 2023-02-10 against a $460.27 first cycle: satisfied early,
	// no principal reduction, $39.73 reserved for the next cycle. The
	// surplus carries the ledger into that next cycle, which no payment
	// covers, so it is emitted open with the leftover posted against it.
	payments := []models.PaymentEvent{pay(2023, time.February, 10, "500")}

	rows, err := Compute(standardTerms(), payments, day(2023, time.June, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 cycles (satisfied + trailing open), got %d", len(rows))
	}

	row := rows[0]
	if row.SatisfiedOn == nil || !row.SatisfiedOn.Equal(day(2023, time.February, 10)) {
		t.Errorf("Expected satisfied on 2023-02-10, got %v", row.SatisfiedOn)
	}
	if !row.CycleInterest.Equal(dec("460.27")) {
		t.Errorf("Cycle interest = %s, want 460.27", row.CycleInterest)
	}
	if !row.PrincipalApplied.IsZero() {
		t.Errorf("Principal applied = %s, want 0 for a pre-due satisfaction", row.PrincipalApplied)
	}
	if !row.EndingPrincipal.Equal(dec("100000")) {
		t.Errorf("Ending principal = %s, want 100000", row.EndingPrincipal)
	}
	if !row.AmountPosted.Equal(dec("460.27")) {
		t.Errorf("Amount posted = %s, want 460.27", row.AmountPosted)
	}

	open := rows[1]
	if open.SatisfiedOn != nil {
		t.Fatalf("Expected trailing cycle open, satisfied on %s", open.SatisfiedOn)
	}
	if !open.DueDate.Equal(day(2023, time.March, 31)) {
		t.Errorf("Trailing due date = %s, want 2023-03-31", open.DueDate.Format("2006-01-02"))
	}
	if !open.AmountPosted.Equal(dec("39.73")) {
		t.Errorf("Trailing amount posted = %s, want the 39.73 carry", open.AmountPosted)
	}
	if !open.LateFeeAssessed.Equal(dec("50")) {
		t.Errorf("Trailing late fee = %s, want 50", open.LateFeeAssessed)
	}
	if !open.EndingPrincipal.Equal(dec("100050")) {
		t.Errorf("Trailing ending principal = %s, want 100050", open.EndingPrincipal)
	}
}

func TestLatePaymentCapitalizesFeeAndReducesPrincipal(t *testing.T) {
	// Due 2023-02-28, grace through 03-10, $600 lands 03-15: 15 days late,
	// $50 fee capitalized, and the on-date excess pays down principal.
	payments := []models.PaymentEvent{pay(2023, time.March, 15, "600")}

	rows, err := Compute(standardTerms(), payments, day(2023, time.May, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) < 1 {
		t.Fatal("Expected at least 1 cycle")
	}

	row := rows[0]
	if row.SatisfiedOn == nil || !row.SatisfiedOn.Equal(day(2023, time.March, 15)) {
		t.Fatalf("Expected satisfied on 2023-03-15, got %v", row.SatisfiedOn)
	}
	if row.DaysLate != 15 {
		t.Errorf("Days late = %d, want 15", row.DaysLate)
	}
	if !row.LateFeeAssessed.Equal(dec("50")) {
		t.Errorf("Late fee = %s, want 50", row.LateFeeAssessed)
	}
	if !row.PrincipalApplied.Equal(dec("139.73")) {
		t.Errorf("Principal applied = %s, want 139.73", row.PrincipalApplied)
	}
	// 100000 + 50 fee - 139.73 principal
	if !row.EndingPrincipal.Equal(dec("99910.27")) {
		t.Errorf("Ending principal = %s, want 99910.27", row.EndingPrincipal)
	}
}

func TestPaymentWithinGraceAvoidsFee(t *testing.T) {
	// Satisfied 5 days late but inside the 10-day grace window: no fee,
	// but the excess still reduces principal since it landed post-due.
	payments := []models.PaymentEvent{pay(2023, time.March, 5, "500")}

	rows, err := Compute(standardTerms(), payments, day(2023, time.April, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	row := rows[0]
	if row.DaysLate != 5 {
		t.Errorf("Days late = %d, want 5", row.DaysLate)
	}
	if !row.LateFeeAssessed.IsZero() {
		t.Errorf("Late fee = %s, want 0 inside grace", row.LateFeeAssessed)
	}
	if !row.PrincipalApplied.Equal(dec("39.73")) {
		t.Errorf("Principal applied = %s, want 39.73", row.PrincipalApplied)
	}
	if !row.EndingPrincipal.Equal(dec("99960.27")) {
		t.Errorf("Ending principal = %s, want 99960.27", row.EndingPrincipal)
	}
}

func TestOverpaymentStopsAtPayoff(t *testing.T) {
	// A payment larger than interest plus the whole balance pays the loan
	// off; the reduction is capped at the balance and the remainder stays
	// in the pool rather than pushing the principal below zero.
	payments := []models.PaymentEvent{pay(2023, time.March, 15, "200000")}

	rows, err := Compute(standardTerms(), payments, day(2023, time.June, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("Expected at least 1 cycle")
	}

	row := rows[0]
	if !row.LateFeeAssessed.Equal(dec("50")) {
		t.Errorf("Late fee = %s, want 50", row.LateFeeAssessed)
	}
	// the fee capitalizes first, so the payoff covers 100000 + 50
	if !row.PrincipalApplied.Equal(dec("100050")) {
		t.Errorf("Principal applied = %s, want 100050", row.PrincipalApplied)
	}
	if !row.AmountPosted.Equal(dec("100510.27")) {
		t.Errorf("Amount posted = %s, want 100510.27", row.AmountPosted)
	}
	for i, r := range rows {
		if r.EndingPrincipal.IsNegative() {
			t.Errorf("Cycle %d: principal went negative: %s", i+1, r.EndingPrincipal)
		}
		if i > 0 && !r.CycleInterest.IsZero() {
			t.Errorf("Cycle %d: interest = %s, want 0 on a paid-off loan", i+1, r.CycleInterest)
		}
	}
	if !rows[len(rows)-1].EndingPrincipal.IsZero() {
		t.Errorf("Final ending principal = %s, want 0", rows[len(rows)-1].EndingPrincipal)
	}
}

func TestExhaustedPaymentsEmitOpenCycle(t *testing.T) {
	terms := models.LoanTerms{
		Principal:       dec("50000"),
		OriginationDate: day(2024, time.January, 15),
		AnnualRate:      dec("0.05"),
		LateFee: models.LateFeePolicy{
			Kind:      models.LateFeeFixed,
			Amount:    dec("25"),
			GraceDays: 5,
		},
	}

	rows, err := Compute(terms, nil, day(2024, time.March, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 open cycle, got %d rows", len(rows))
	}

	row := rows[0]
	if row.SatisfiedOn != nil {
		t.Errorf("Expected open cycle, satisfied on %s", row.SatisfiedOn)
	}
	if !row.DueDate.Equal(day(2024, time.February, 15)) {
		t.Errorf("Due date = %s, want 2024-02-15", row.DueDate.Format("2006-01-02"))
	}
	// 2024-02-15 through the 2024-03-01 as-of date
	if row.DaysLate != 15 {
		t.Errorf("Days late = %d, want 15", row.DaysLate)
	}
	// 50000 * 0.05 * 31/365 = 212.328... -> 212.33
	if !row.CycleInterest.Equal(dec("212.33")) {
		t.Errorf("Cycle interest = %s, want 212.33", row.CycleInterest)
	}
	if !row.LateFeeAssessed.Equal(dec("25")) {
		t.Errorf("Late fee = %s, want 25 (assessed even with no payments)", row.LateFeeAssessed)
	}
	if !row.EndingPrincipal.Equal(dec("50025")) {
		t.Errorf("Ending principal = %s, want 50025", row.EndingPrincipal)
	}
	if !row.PrincipalApplied.IsZero() {
		t.Errorf("Principal applied = %s, want 0", row.PrincipalApplied)
	}
}

func TestTrailingOpenCycleAfterLatePayment(t *testing.T) {
	// After the satisfied-late first cycle there is one more due date
	// inside the horizon with no payments left: it is emitted open, with
	// its fee capitalized, and nothing follows it.
	payments := []models.PaymentEvent{pay(2023, time.March, 15, "600")}

	rows, err := Compute(standardTerms(), payments, day(2023, time.May, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 cycles, got %d", len(rows))
	}

	last := rows[1]
	if last.SatisfiedOn != nil {
		t.Errorf("Expected trailing cycle open, satisfied on %s", last.SatisfiedOn)
	}
	// interest accrues on the capitalized balance 99910.27 for 31 days:
	// 99910.27 * 0.06 * 31/365 = 509.13
	if !last.CycleInterest.Equal(dec("509.13")) {
		t.Errorf("Trailing cycle interest = %s, want 509.13", last.CycleInterest)
	}
	if !last.LateFeeAssessed.Equal(dec("50")) {
		t.Errorf("Trailing late fee = %s, want 50", last.LateFeeAssessed)
	}
	if !last.EndingPrincipal.Equal(dec("99960.27")) {
		t.Errorf("Trailing ending principal = %s, want 99960.27", last.EndingPrincipal)
	}
}

func TestBackAttributionPicksPaymentCompletingCoverage(t *testing.T) {
	// Two pre-due payments assemble coverage. Read newest-first, the
	// $200 on 02-05 completes the $460.27 requirement after the $300 on
	// 02-10 is counted, so satisfaction is attributed to 02-05.
	payments := []models.PaymentEvent{
		pay(2023, time.February, 5, "200"),
		pay(2023, time.February, 10, "300"),
	}

	rows, err := Compute(standardTerms(), payments, day(2023, time.March, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	row := rows[0]
	if row.SatisfiedOn == nil || !row.SatisfiedOn.Equal(day(2023, time.February, 5)) {
		t.Errorf("Satisfied on %v, want 2023-02-05", row.SatisfiedOn)
	}
	if !row.PrincipalApplied.IsZero() {
		t.Errorf("Principal applied = %s, want 0", row.PrincipalApplied)
	}
}

func TestCarrySatisfiedCycleAttributedToEarlierPayment(t *testing.T) {
	// One oversized early payment covers two cycles; the second cycle's
	// satisfaction is still attributed to that payment, and the surplus is
	// never reclassified as principal. The later payment only extends the
	// ledger horizon.
	payments := []models.PaymentEvent{
		pay(2023, time.February, 10, "1200"),
		pay(2023, time.April, 5, "100"),
	}

	rows, err := Compute(standardTerms(), payments, day(2023, time.April, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("Expected at least 2 cycles, got %d", len(rows))
	}

	second := rows[1]
	if second.SatisfiedOn == nil || !second.SatisfiedOn.Equal(day(2023, time.February, 10)) {
		t.Errorf("Second cycle satisfied on %v, want 2023-02-10", second.SatisfiedOn)
	}
	if !second.PrincipalApplied.IsZero() {
		t.Errorf("Principal applied = %s, want 0 (surplus is reserved, not prepaid)", second.PrincipalApplied)
	}
	if !second.EndingPrincipal.Equal(dec("100000")) {
		t.Errorf("Ending principal = %s, want 100000", second.EndingPrincipal)
	}
}

func TestSameDayPaymentsArePooled(t *testing.T) {
	split := []models.PaymentEvent{
		pay(2023, time.February, 28, "200"),
		pay(2023, time.February, 28, "260.27"),
	}
	single := []models.PaymentEvent{pay(2023, time.February, 28, "460.27")}

	a, err := Compute(standardTerms(), split, day(2023, time.March, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := Compute(standardTerms(), single, day(2023, time.March, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Split same-day payments should produce the same ledger as their sum")
	}
}

func TestPaymentsBeforeOriginationExcluded(t *testing.T) {
	payments := []models.PaymentEvent{
		pay(2023, time.January, 10, "1000"), // before origination, ignored
		pay(2023, time.February, 28, "460.27"),
	}

	rows, err := Compute(standardTerms(), payments, day(2023, time.March, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !rows[0].EndingPrincipal.Equal(dec("100000")) {
		t.Errorf("Ending principal = %s, want 100000 (pre-origination payment must not count)", rows[0].EndingPrincipal)
	}
	if !rows[0].SatisfiedOn.Equal(day(2023, time.February, 28)) {
		t.Errorf("Satisfied on %s, want 2023-02-28", rows[0].SatisfiedOn)
	}
}

func TestDeterministicAndOrderIndependent(t *testing.T) {
	payments := []models.PaymentEvent{
		pay(2023, time.February, 10, "300"),
		pay(2023, time.March, 15, "600"),
		pay(2023, time.February, 5, "200"),
		pay(2023, time.April, 28, "550"),
	}
	shuffled := []models.PaymentEvent{payments[3], payments[1], payments[0], payments[2]}

	asOf := day(2023, time.June, 1)
	first, err := Compute(standardTerms(), payments, asOf)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	second, err := Compute(standardTerms(), payments, asOf)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	third, err := Compute(standardTerms(), shuffled, asOf)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Identical inputs produced different ledgers")
	}
	if !reflect.DeepEqual(first, third) {
		t.Error("Shuffled payment input produced a different ledger")
	}
}

func TestCapitalizationInvariant(t *testing.T) {
	payments := []models.PaymentEvent{
		pay(2023, time.March, 20, "700"),
		pay(2023, time.April, 25, "1000"),
	}

	rows, err := Compute(standardTerms(), payments, day(2023, time.June, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	prev := dec("100000")
	for i, row := range rows {
		want := prev.Add(row.LateFeeAssessed).Sub(row.PrincipalApplied)
		if !row.EndingPrincipal.Equal(want) {
			t.Errorf("Cycle %d: ending principal = %s, want %s (+fee -principal from %s)",
				i+1, row.EndingPrincipal, want, prev)
		}
		if row.EndingPrincipal.IsNegative() {
			t.Errorf("Cycle %d: principal went negative: %s", i+1, row.EndingPrincipal)
		}
		prev = row.EndingPrincipal
	}
}

func TestZeroRateCyclesSatisfiedAtDue(t *testing.T) {
	terms := standardTerms()
	terms.AnnualRate = decimal.Zero
	payments := []models.PaymentEvent{pay(2023, time.March, 10, "100")}

	rows, err := Compute(terms, payments, day(2023, time.May, 1))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i, row := range rows {
		if !row.CycleInterest.IsZero() {
			t.Errorf("Cycle %d: interest = %s, want 0", i+1, row.CycleInterest)
		}
		if row.SatisfiedOn == nil {
			t.Errorf("Cycle %d: zero-interest cycle should be satisfied", i+1)
		}
	}
}

func TestInvalidTermsRejectedWholesale(t *testing.T) {
	cases := []struct {
		name  string
		mutit func(*models.LoanTerms)
	}{
		{"negative principal", func(tm *models.LoanTerms) { tm.Principal = dec("-1") }},
		{"negative rate", func(tm *models.LoanTerms) { tm.AnnualRate = dec("-0.01") }},
		{"negative grace", func(tm *models.LoanTerms) { tm.LateFee.GraceDays = -1 }},
	}

	for _, c := range cases {
		terms := standardTerms()
		c.mutit(&terms)
		rows, err := Compute(terms, nil, day(2023, time.March, 1))
		if !errors.Is(err, ErrInvalidTerms) {
			t.Errorf("%s: expected ErrInvalidTerms, got %v", c.name, err)
		}
		if rows != nil {
			t.Errorf("%s: expected no rows, got %d", c.name, len(rows))
		}
	}
}

func TestCheckOrderedDetectsRegression(t *testing.T) {
	events := []models.PaymentEvent{
		pay(2023, time.March, 10, "100"),
		pay(2023, time.February, 10, "100"),
	}
	if err := checkOrdered(events); !errors.Is(err, ErrUnorderedPayments) {
		t.Errorf("Expected ErrUnorderedPayments, got %v", err)
	}
	if err := checkOrdered(Normalize(events, day(2023, time.January, 31))); err != nil {
		t.Errorf("Normalized events should be ordered, got %v", err)
	}
}
