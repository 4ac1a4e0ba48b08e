package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

// PrevDueDate returns the most recent scheduled due date on or before when,
// with the origination date standing in before the first cycle closes.
func PrevDueDate(origination, when time.Time) time.Time {
	origination = DateOnly(origination)
	when = DateOnly(when)
	months := (when.Year()-origination.Year())*12 + int(when.Month()) - int(origination.Month())
	if when.Day() < origination.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return AddMonths(origination, months)
}

// ComputeWaterfall produces the ledger under the legacy receivables policy:
// one AllocationRecord per payment. Late fees and penalty interest are kept
// as separate outstanding buckets instead of being capitalized, penalty
// interest accrues on unpaid late fees at penaltyAPR (the loan APR when
// zero), and each payment is allocated in fixed priority order: penalty
// interest, then late fees, then loan interest, then principal.
//
// This policy and the capitalization policy of Compute are materially
// different financial rules and are never mixed within one ledger.
func ComputeWaterfall(terms models.LoanTerms, payments []models.PaymentEvent, penaltyAPR decimal.Decimal) ([]models.AllocationRecord, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}
	if penaltyAPR.IsNegative() {
		return nil, fmt.Errorf("%w: penalty rate is negative", ErrInvalidTerms)
	}
	if penaltyAPR.IsZero() {
		penaltyAPR = terms.AnnualRate
	}

	origination := DateOnly(terms.OriginationDate)
	events := Normalize(payments, origination)
	if err := checkOrdered(events); err != nil {
		return nil, err
	}

	balance := terms.Principal.Round(2)
	outLateFees := decimal.Zero
	outPenaltyInt := decimal.Zero
	interestCarry := decimal.Zero
	lastEvent := origination

	var rows []models.AllocationRecord
	for _, e := range events {
		due := PrevDueDate(origination, e.Date)
		days := daysBetween(lastEvent, e.Date)

		accrued := Accrue(balance, terms.AnnualRate, days)
		interestDue := accrued.Add(interestCarry)

		// A payment landing past its due date's grace window incurs a fee
		// into the outstanding bucket. The percent basis here is one
		// month's interest on the current balance.
		fee := decimal.Zero
		if e.Date.After(due.AddDate(0, 0, terms.LateFee.GraceDays)) {
			if terms.LateFee.Kind == models.LateFeePercent {
				monthly := balance.Mul(terms.AnnualRate).Div(twelve).Round(2)
				fee = monthly.Mul(terms.LateFee.Amount).Div(hundred).Round(2)
			} else {
				fee = terms.LateFee.Amount.Round(2)
			}
			outLateFees = outLateFees.Add(fee)
		}

		penaltyAccrued := Accrue(outLateFees, penaltyAPR, days)
		outPenaltyInt = outPenaltyInt.Add(penaltyAccrued)

		remaining := e.Amount
		toPenalty := decimal.Min(remaining, outPenaltyInt)
		remaining = remaining.Sub(toPenalty)
		outPenaltyInt = outPenaltyInt.Sub(toPenalty)

		toLate := decimal.Min(remaining, outLateFees)
		remaining = remaining.Sub(toLate)
		outLateFees = outLateFees.Sub(toLate)

		toInterest := decimal.Min(remaining, interestDue)
		remaining = remaining.Sub(toInterest)
		interestCarry = interestDue.Sub(toInterest)

		toPrincipal := remaining
		balance = balance.Sub(toPrincipal)

		rows = append(rows, models.AllocationRecord{
			PaymentDate:            e.Date,
			DueDate:                due,
			PaymentAmount:          e.Amount,
			AccruedLoanInterest:    interestDue,
			PenaltyInterestAccrued: penaltyAccrued,
			LateFeeAssessed:        fee,
			ToPenaltyInterest:      toPenalty,
			ToLateFees:             toLate,
			ToLoanInterest:         toInterest,
			ToPrincipal:            toPrincipal,
			EndingPrincipal:        balance,
			LateFeesOutstanding:    outLateFees,
			PenaltyIntOutstanding:  outPenaltyInt,
		})

		lastEvent = e.Date
	}
	return rows, nil
}

var twelve = decimal.NewFromInt(12)
