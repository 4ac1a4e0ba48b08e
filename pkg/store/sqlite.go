package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lender_name TEXT NOT NULL DEFAULT '',
		borrower_name TEXT NOT NULL DEFAULT '',
		borrower_token TEXT NOT NULL DEFAULT '',
		principal TEXT NOT NULL,
		origination_date DATETIME NOT NULL,
		annual_rate TEXT NOT NULL,
		late_fee_kind TEXT NOT NULL DEFAULT 'fixed',
		late_fee_amount TEXT NOT NULL DEFAULT '0',
		grace_days INTEGER NOT NULL DEFAULT 0,
		allocation_policy TEXT NOT NULL DEFAULT 'capitalize',
		penalty_apr TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		amount TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan_date ON payments(loan_id, payment_date);
	CREATE INDEX IF NOT EXISTS idx_loans_borrower_token ON loans(borrower_token);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, name, lender_name, borrower_name, borrower_token, principal, origination_date, annual_rate, late_fee_kind, late_fee_amount, grace_days, allocation_policy, penalty_apr, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Name, loan.LenderName, loan.BorrowerName, loan.BorrowerToken,
		loan.Terms.Principal, loan.Terms.OriginationDate, loan.Terms.AnnualRate,
		string(loan.Terms.LateFee.Kind), loan.Terms.LateFee.Amount, loan.Terms.LateFee.GraceDays,
		string(loan.Policy), loan.PenaltyAPR, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func scanLoan(row interface{ Scan(...any) error }) (*models.Loan, error) {
	var loan models.Loan
	var idStr, feeKind, policy string
	var origination, created, updated time.Time

	err := row.Scan(&idStr, &loan.Name, &loan.LenderName, &loan.BorrowerName, &loan.BorrowerToken,
		&loan.Terms.Principal, &origination, &loan.Terms.AnnualRate,
		&feeKind, &loan.Terms.LateFee.Amount, &loan.Terms.LateFee.GraceDays,
		&policy, &loan.PenaltyAPR, &created, &updated)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.Terms.OriginationDate = origination
	loan.Terms.LateFee.Kind = models.LateFeeKind(feeKind)
	loan.Policy = models.AllocationPolicy(policy)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetLoanByToken retrieves a loan by its borrower share token.
func (s *SQLiteStore) GetLoanByToken(token string) (*models.Loan, error) {
	if token == "" {
		return nil, ErrLoanNotFound
	}
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE borrower_token = ?`, token)
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan by token: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET name = ?, lender_name = ?, borrower_name = ?, borrower_token = ?,
		principal = ?, origination_date = ?, annual_rate = ?, late_fee_kind = ?, late_fee_amount = ?,
		grace_days = ?, allocation_policy = ?, penalty_apr = ?, updated_at = ? WHERE id = ?`,
		loan.Name, loan.LenderName, loan.BorrowerName, loan.BorrowerToken,
		loan.Terms.Principal, loan.Terms.OriginationDate, loan.Terms.AnnualRate,
		string(loan.Terms.LateFee.Kind), loan.Terms.LateFee.Amount, loan.Terms.LateFee.GraceDays,
		string(loan.Policy), loan.PenaltyAPR, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// DeleteLoan removes a loan and its payments from the database within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM payments WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans, oldest first.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// AddPayment inserts a single payment row for a loan.
func (s *SQLiteStore) AddPayment(payment *models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (id, loan_id, payment_date, amount) VALUES (?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Date, payment.Amount,
	)
	if err != nil {
		return fmt.Errorf("failed to add payment: %w", err)
	}
	return nil
}

// ReplacePayments swaps a loan's full payment set inside one transaction,
// so concurrent readers never observe a half-replaced history.
func (s *SQLiteStore) ReplacePayments(loanID uuid.UUID, payments []models.Payment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM payments WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return fmt.Errorf("failed to clear payments: %w", err)
	}

	for _, p := range payments {
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err = tx.Exec(
			`INSERT INTO payments (id, loan_id, payment_date, amount) VALUES (?, ?, ?, ?)`,
			id.String(), loanID.String(), p.Date, p.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	}

	return tx.Commit()
}

// GetPaymentsForLoan retrieves all payments for a given loan ID, oldest first.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, payment_date, amount FROM payments WHERE loan_id = ? ORDER BY payment_date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var payment models.Payment
		var idStr, loanIDStr string
		var date time.Time
		var amount decimal.Decimal
		if err := rows.Scan(&idStr, &loanIDStr, &date, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payment.ID = uuid.MustParse(idStr)
		payment.LoanID = uuid.MustParse(loanIDStr)
		payment.Date = date
		payment.Amount = amount
		payments = append(payments, &payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
