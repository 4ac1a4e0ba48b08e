// Package ledger turns a loan's terms plus its payment history into a
// deterministic row-per-cycle ledger: actual/365 interest accrual, carry of
// unapplied amounts across cycles, late-fee capitalization, and a principal
// reduction rule keyed to when a payment lands relative to its due date.
//
// The engine is a pure function over its inputs. It holds no state between
// calls, performs no I/O, and may be invoked concurrently for different
// loans without coordination.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

var (
	// ErrInvalidTerms is returned when principal, rate, or grace days are
	// negative. No ledger rows are produced.
	ErrInvalidTerms = errors.New("invalid loan terms")
	// ErrUnorderedPayments is returned when payment events are out of order
	// after normalization, which indicates a normalizer bug.
	ErrUnorderedPayments = errors.New("payment events out of order")
)

// ValidateTerms rejects terms the engines cannot price: negative principal,
// rate, or grace period.
func ValidateTerms(terms models.LoanTerms) error {
	if terms.Principal.IsNegative() {
		return fmt.Errorf("%w: principal is negative", ErrInvalidTerms)
	}
	if terms.AnnualRate.IsNegative() {
		return fmt.Errorf("%w: annual rate is negative", ErrInvalidTerms)
	}
	if terms.LateFee.GraceDays < 0 {
		return fmt.Errorf("%w: grace days is negative", ErrInvalidTerms)
	}
	return nil
}

// Compute produces the ledger for a loan under the canonical capitalization
// policy: one CycleRecord per due date, walked in order.
//
// Per cycle, interest accrues on the running principal for the days since
// the previous due date. Payments dated on or before the due date feed a
// carry pool; if the pool covers the interest the cycle is satisfied pre-due
// and any surplus stays reserved for future cycles, never touching
// principal. Otherwise later payments are consumed until the interest is
// covered; when the satisfying payment lands past due+grace a late fee is
// assessed and folded into principal, and the satisfying payment's own
// excess over the interest is the only amount ever applied to principal.
// Principal reduction stops at zero: an excess beyond a full payoff returns
// to the carry pool, so the balance never goes negative.
//
// asOf is used solely to report days late on a trailing cycle that no
// payment has satisfied; it has no other influence on the output.
func Compute(terms models.LoanTerms, payments []models.PaymentEvent, asOf time.Time) ([]models.CycleRecord, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}

	origination := DateOnly(terms.OriginationDate)
	events := Normalize(payments, origination)
	if err := checkOrdered(events); err != nil {
		return nil, err
	}

	balance := terms.Principal.Round(2)
	carry := decimal.Zero
	next := 0 // cursor into events; everything before it has been consumed

	lastDate := origination
	if len(events) > 0 {
		lastDate = events[len(events)-1].Date
	}
	// Due dates are generated through one cycle past the final payment;
	// anything beyond that cannot be evaluated yet and is never emitted.
	// A surplus left in the pool reaches further: it keeps cycles coming
	// until a cycle consumes it, goes open, or no cycle can charge
	// interest against it.
	horizon := AddMonths(lastDate, 1)

	var rows []models.CycleRecord
	prevDue := origination
	for cycle := 1; ; cycle++ {
		due := DueDate(origination, cycle)
		if due.After(horizon) {
			if !carry.IsPositive() || !balance.IsPositive() || !terms.AnnualRate.IsPositive() {
				break
			}
		}

		cycleInterest := Accrue(balance, terms.AnnualRate, daysBetween(prevDue, due))
		graceDate := due.AddDate(0, 0, terms.LateFee.GraceDays)

		// Absorb everything dated on or before the due date into the pool.
		for next < len(events) && !events[next].Date.After(due) {
			carry = carry.Add(events[next].Amount)
			next++
		}

		row := models.CycleRecord{
			DueDate:          due,
			CycleInterest:    cycleInterest,
			LateFeeAssessed:  decimal.Zero,
			PrincipalApplied: decimal.Zero,
		}

		open := false
		switch {
		case carry.GreaterThanOrEqual(cycleInterest):
			// Satisfied at or before the due date. The surplus stays in the
			// pool for future cycles; principal is never reduced pre-due.
			satisfied := attributeSatisfier(events[:next], carry, cycleInterest, due)
			carry = carry.Sub(cycleInterest)
			row.SatisfiedOn = &satisfied
			row.AmountPosted = cycleInterest

		default:
			used := carry
			lastUsed := -1
			for used.LessThan(cycleInterest) && next < len(events) {
				used = used.Add(events[next].Amount)
				lastUsed = next
				next++
			}

			if used.GreaterThanOrEqual(cycleInterest) && lastUsed >= 0 {
				satisfied := events[lastUsed].Date
				row.SatisfiedOn = &satisfied
				row.DaysLate = max(0, daysBetween(due, satisfied))
				if satisfied.After(graceDate) {
					row.LateFeeAssessed = AssessLateFee(cycleInterest, terms.LateFee)
					balance = balance.Add(row.LateFeeAssessed)
				}
				// Only the satisfying event's own excess reduces principal,
				// and only because it landed on or after the due date. The
				// reduction stops at zero; anything past a full payoff goes
				// back to the pool instead of driving the balance negative.
				carry = decimal.Zero
				if extra := used.Sub(cycleInterest); extra.IsPositive() && !satisfied.Before(due) {
					row.PrincipalApplied = decimal.Min(extra, balance)
					carry = extra.Sub(row.PrincipalApplied)
				}
				row.AmountPosted = cycleInterest.Add(row.PrincipalApplied)
			} else {
				// Payments exhausted: the cycle stays open. The fee is owed
				// by construction, and no further due dates can be judged.
				row.DaysLate = max(0, daysBetween(due, DateOnly(asOf)))
				row.LateFeeAssessed = AssessLateFee(cycleInterest, terms.LateFee)
				balance = balance.Add(row.LateFeeAssessed)
				row.AmountPosted = carry
				carry = decimal.Zero
				open = true
			}
		}

		balance = balance.Sub(row.PrincipalApplied)
		row.EndingPrincipal = balance
		rows = append(rows, row)

		if open {
			break
		}
		prevDue = due
	}
	return rows, nil
}

// attributeSatisfier finds the payment date credited with satisfying a
// cycle that was covered at or before its due date. Reading the consumed
// events in reverse chronological order, it accumulates amounts until the
// cycle's interest is covered and attributes satisfaction to the event that
// completed coverage: the last payment actually needed, not the first one
// ever received. A cycle covered entirely by surplus carried from earlier
// cycles is attributed to the due date itself.
func attributeSatisfier(consumed []models.PaymentEvent, pool, cycleInterest decimal.Decimal, due time.Time) time.Time {
	needed := cycleInterest
	rem := pool
	satisfied := due
	for i := len(consumed) - 1; i >= 0 && needed.IsPositive(); i-- {
		amt := consumed[i].Amount
		if rem.Sub(amt).LessThan(needed) {
			satisfied = consumed[i].Date
		}
		rem = rem.Sub(amt)
		needed = needed.Sub(decimal.Min(needed, amt))
	}
	return satisfied
}
