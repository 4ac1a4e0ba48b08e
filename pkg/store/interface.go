package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/shylock-app/shylock/pkg/models"
)

// ErrLoanNotFound is returned when a loan ID or borrower token matches nothing.
var ErrLoanNotFound = errors.New("loan not found")

// Storage defines the persistence operations for loans and their payment
// histories. Payment handling is snapshot-oriented: the engine recomputes a
// ledger from the full payment set, so ReplacePayments swaps a loan's
// payments atomically and readers always see a consistent set.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	GetLoanByToken(token string) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)

	AddPayment(payment *models.Payment) error
	ReplacePayments(loanID uuid.UUID, payments []models.Payment) error
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)

	Close() error
}
