package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// AssessLateFee computes the fee owed for a cycle that missed its grace
// window. Fixed policies charge the flat amount; percent policies charge a
// share of the cycle's interest, rounded to the cent. A zero fee is valid
// and capitalizes as a no-op.
func AssessLateFee(cycleInterest decimal.Decimal, policy models.LateFeePolicy) decimal.Decimal {
	switch policy.Kind {
	case models.LateFeePercent:
		return cycleInterest.Mul(policy.Amount).Div(hundred).Round(2)
	default:
		return policy.Amount.Round(2)
	}
}
