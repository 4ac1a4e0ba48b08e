package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LateFeeKind selects how a late fee is computed from a cycle's interest.
type LateFeeKind string

const (
	LateFeeFixed   LateFeeKind = "fixed"   // flat amount per late cycle
	LateFeePercent LateFeeKind = "percent" // percentage of the cycle's interest
)

// AllocationPolicy selects which engine computes a loan's ledger.
type AllocationPolicy string

const (
	// PolicyCapitalize is the canonical policy: late fees are folded into
	// principal the moment they are assessed.
	PolicyCapitalize AllocationPolicy = "capitalize"
	// PolicyWaterfall is the legacy policy: late fees and penalty interest
	// are tracked as separate receivables and payments are allocated
	// penalty interest -> late fees -> loan interest -> principal.
	PolicyWaterfall AllocationPolicy = "waterfall"
)

// LateFeePolicy describes how and when a late fee is assessed.
type LateFeePolicy struct {
	Kind      LateFeeKind     `json:"kind"`
	Amount    decimal.Decimal `json:"amount"` // dollars for fixed, percent of cycle interest otherwise
	GraceDays int             `json:"grace_days"`
}

// LoanTerms are the immutable inputs to a ledger computation.
type LoanTerms struct {
	Principal       decimal.Decimal `json:"principal"`
	OriginationDate time.Time       `json:"origination_date"`
	AnnualRate      decimal.Decimal `json:"annual_rate"` // decimal fraction, e.g. 0.06
	LateFee         LateFeePolicy   `json:"late_fee"`
}

// PaymentEvent is a single cleared payment. Multiple events may share a
// date; the engine pools same-date events into one amount.
type PaymentEvent struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// CycleRecord is one ledger row, emitted per due date by the cycle engine.
type CycleRecord struct {
	DueDate          time.Time       `json:"due_date"`
	SatisfiedOn      *time.Time      `json:"satisfied_on,omitempty"` // nil while the cycle is still open
	DaysLate         int             `json:"days_late"`
	AmountPosted     decimal.Decimal `json:"amount_posted"`
	CycleInterest    decimal.Decimal `json:"cycle_interest"`
	LateFeeAssessed  decimal.Decimal `json:"late_fee_assessed"`
	PrincipalApplied decimal.Decimal `json:"principal_applied"`
	EndingPrincipal  decimal.Decimal `json:"ending_principal"`
}

// AllocationRecord is one row of the legacy waterfall ledger, emitted per
// payment rather than per due date.
type AllocationRecord struct {
	PaymentDate            time.Time       `json:"payment_date"`
	DueDate                time.Time       `json:"due_date"` // due date the payment falls under
	PaymentAmount          decimal.Decimal `json:"payment_amount"`
	AccruedLoanInterest    decimal.Decimal `json:"accrued_loan_interest"`
	PenaltyInterestAccrued decimal.Decimal `json:"penalty_interest_accrued"`
	LateFeeAssessed        decimal.Decimal `json:"late_fee_assessed"`
	ToPenaltyInterest      decimal.Decimal `json:"to_penalty_interest"`
	ToLateFees             decimal.Decimal `json:"to_late_fees"`
	ToLoanInterest         decimal.Decimal `json:"to_loan_interest"`
	ToPrincipal            decimal.Decimal `json:"to_principal"`
	EndingPrincipal        decimal.Decimal `json:"ending_principal"`
	LateFeesOutstanding    decimal.Decimal `json:"late_fees_outstanding"`
	PenaltyIntOutstanding  decimal.Decimal `json:"penalty_interest_outstanding"`
}

// Loan is the persisted record: terms plus identity and sharing metadata.
type Loan struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	LenderName    string           `json:"lender_name"`
	BorrowerName  string           `json:"borrower_name"`
	BorrowerToken string           `json:"borrower_token"` // read-only share token for the borrower view
	Terms         LoanTerms        `json:"terms"`
	Policy        AllocationPolicy `json:"policy"`
	PenaltyAPR    decimal.Decimal  `json:"penalty_apr"` // waterfall only; zero means "use the loan APR"
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Payment is a persisted payment row for a loan.
type Payment struct {
	ID     uuid.UUID       `json:"id"`
	LoanID uuid.UUID       `json:"loan_id"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Event returns the payment as the engine's input shape.
func (p Payment) Event() PaymentEvent {
	return PaymentEvent{Date: p.Date, Amount: p.Amount}
}
