package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var daysInYear = decimal.NewFromInt(365)

// Accrue computes actual/365 simple interest on balance at the given annual
// rate over days elapsed days, rounded to the cent (half up). A negative day
// count is a caller bug, never a data condition, so it panics.
func Accrue(balance, annualRate decimal.Decimal, days int) decimal.Decimal {
	if days < 0 {
		panic(fmt.Sprintf("ledger: accrual over negative span (%d days)", days))
	}
	if days == 0 {
		return decimal.Zero
	}
	return balance.Mul(annualRate).Mul(decimal.NewFromInt(int64(days))).Div(daysInYear).Round(2)
}
