// Package statement renders computed ledgers for people: summary totals,
// fixed-width statement text, and CSV import/export. It is purely
// presentational and never alters ledger figures.
package statement

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

const usDateFormat = "01/02/2006"

// FormatUSD renders a decimal dollar amount as a currency string.
func FormatUSD(d decimal.Decimal) string {
	cents := d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
	return money.New(cents, money.USD).Display()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(usDateFormat)
}

// Summary aggregates a ledger into the statement header totals.
type Summary struct {
	BeginningPrincipal decimal.Decimal `json:"beginning_principal"`
	PaymentsPosted     decimal.Decimal `json:"payments_posted"`
	InterestAccrued    decimal.Decimal `json:"interest_accrued"`
	LateFeesAssessed   decimal.Decimal `json:"late_fees_assessed"`
	PrincipalApplied   decimal.Decimal `json:"principal_applied"`
	EndingPrincipal    decimal.Decimal `json:"ending_principal"`
}

// Summarize computes the statement totals for a ledger.
func Summarize(terms models.LoanTerms, cycles []models.CycleRecord) Summary {
	s := Summary{
		BeginningPrincipal: terms.Principal.Round(2),
		EndingPrincipal:    terms.Principal.Round(2),
	}
	for _, c := range cycles {
		s.PaymentsPosted = s.PaymentsPosted.Add(c.AmountPosted)
		s.InterestAccrued = s.InterestAccrued.Add(c.CycleInterest)
		s.LateFeesAssessed = s.LateFeesAssessed.Add(c.LateFeeAssessed)
		s.PrincipalApplied = s.PrincipalApplied.Add(c.PrincipalApplied)
		s.EndingPrincipal = c.EndingPrincipal
	}
	return s
}

// RenderText writes a full plain-text statement: header, totals, and one
// line per cycle.
func RenderText(w io.Writer, loan *models.Loan, cycles []models.CycleRecord) error {
	name := loan.Name
	if name == "" {
		name = "Loan"
	}
	fmt.Fprintf(w, "Loan Statement: %s\n", name)
	if loan.LenderName != "" {
		fmt.Fprintf(w, "Lender: %s\n", loan.LenderName)
	}
	if loan.BorrowerName != "" {
		fmt.Fprintf(w, "Borrower: %s\n", loan.BorrowerName)
	}
	fmt.Fprintf(w, "Origination: %s\n", loan.Terms.OriginationDate.Format(usDateFormat))

	ratePct := loan.Terms.AnnualRate.Mul(decimal.NewFromInt(100))
	fmt.Fprintf(w, "APR: %s%% (ACT/365 simple interest)\n\n", ratePct.StringFixed(3))

	s := Summarize(loan.Terms, cycles)
	fmt.Fprintf(w, "Beginning Principal Balance: %s\n", FormatUSD(s.BeginningPrincipal))
	fmt.Fprintf(w, "Payments Posted (Total):     %s\n", FormatUSD(s.PaymentsPosted))
	fmt.Fprintf(w, "Accrued Interest (Total):    %s\n", FormatUSD(s.InterestAccrued))
	fmt.Fprintf(w, "Late Fees Assessed (Total):  %s\n", FormatUSD(s.LateFeesAssessed))
	fmt.Fprintf(w, "Allocated to Principal:      %s\n", FormatUSD(s.PrincipalApplied))
	fmt.Fprintf(w, "Ending Principal Balance:    %s\n\n", FormatUSD(s.EndingPrincipal))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Due Date\tPaid On\tDays Late\tPosted\tInterest\tLate Fee\tTo Principal\tBalance")
	for _, c := range cycles {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			c.DueDate.Format(usDateFormat),
			formatDate(c.SatisfiedOn),
			c.DaysLate,
			FormatUSD(c.AmountPosted),
			FormatUSD(c.CycleInterest),
			FormatUSD(c.LateFeeAssessed),
			FormatUSD(c.PrincipalApplied),
			FormatUSD(c.EndingPrincipal),
		)
	}
	return tw.Flush()
}
