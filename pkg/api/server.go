// Package api exposes the loan store and ledger engines over HTTP. The
// handlers are thin: decode, delegate, encode. The engine never sees a
// request and the handlers never do ledger math.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/shylock-app/shylock/pkg/ledger"
	"github.com/shylock-app/shylock/pkg/models"
	"github.com/shylock-app/shylock/pkg/statement"
	"github.com/shylock-app/shylock/pkg/store"
)

const dateFormat = "2006-01-02"

// Server holds the storage backing the HTTP handlers.
type Server struct {
	storage        store.Storage
	metricsEnabled bool
	now            func() time.Time // injectable for tests
}

// NewServer creates a Server over the given storage.
func NewServer(s store.Storage) *Server {
	return &Server{storage: s, now: time.Now}
}

// EnableMetrics turns on the /metrics Prometheus endpoint and request counting.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Router returns the mux router with all routes mounted.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	if s.metricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
		router.Use(countRequests)
	}

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")

	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.addPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.replacePaymentsHandler).Methods("PUT")

	router.HandleFunc("/loans/{id}/ledger", s.ledgerHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/statement", s.statementHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/statement.csv", s.statementCSVHandler).Methods("GET")

	// Borrower share-token access: read only, no loan mutation routes.
	router.HandleFunc("/borrower/{token}/ledger", s.borrowerLedgerHandler).Methods("GET")
	router.HandleFunc("/borrower/{token}/statement", s.borrowerStatementHandler).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrLoanNotFound) {
		http.Error(w, "Loan not found", http.StatusNotFound)
		return
	}
	log.Printf("storage error: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func loanIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// loanRequest is the write shape shared by create and update.
type loanRequest struct {
	Name            string                  `json:"name"`
	LenderName      string                  `json:"lender_name"`
	BorrowerName    string                  `json:"borrower_name"`
	Principal       decimal.Decimal         `json:"principal"`
	OriginationDate string                  `json:"origination_date"`
	AnnualRate      decimal.Decimal         `json:"annual_rate"`
	LateFeeKind     models.LateFeeKind      `json:"late_fee_kind"`
	LateFeeAmount   decimal.Decimal         `json:"late_fee_amount"`
	GraceDays       int                     `json:"grace_days"`
	Policy          models.AllocationPolicy `json:"policy"`
	PenaltyAPR      decimal.Decimal         `json:"penalty_apr"`
}

func (req *loanRequest) toLoan(loan *models.Loan) error {
	origination, err := time.Parse(dateFormat, req.OriginationDate)
	if err != nil {
		return fmt.Errorf("invalid origination_date %q: want YYYY-MM-DD", req.OriginationDate)
	}

	feeKind := req.LateFeeKind
	if feeKind == "" {
		feeKind = models.LateFeeFixed
	}
	if feeKind != models.LateFeeFixed && feeKind != models.LateFeePercent {
		return fmt.Errorf("invalid late_fee_kind %q", feeKind)
	}
	policy := req.Policy
	if policy == "" {
		policy = models.PolicyCapitalize
	}
	if policy != models.PolicyCapitalize && policy != models.PolicyWaterfall {
		return fmt.Errorf("invalid policy %q", policy)
	}

	loan.Name = req.Name
	loan.LenderName = req.LenderName
	loan.BorrowerName = req.BorrowerName
	loan.Terms = models.LoanTerms{
		Principal:       req.Principal,
		OriginationDate: ledger.DateOnly(origination),
		AnnualRate:      req.AnnualRate,
		LateFee: models.LateFeePolicy{
			Kind:      feeKind,
			Amount:    req.LateFeeAmount,
			GraceDays: req.GraceDays,
		},
	}
	loan.Policy = policy
	loan.PenaltyAPR = req.PenaltyAPR
	return ledger.ValidateTerms(loan.Terms)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan := &models.Loan{
		ID:            uuid.New(),
		BorrowerToken: uuid.NewString(),
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := req.toLoan(loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.CreateLoan(loan); err != nil {
		log.Printf("Error creating loan: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.storage.GetAllLoans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.toLoan(loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan.UpdatedAt = s.now()

	if err := s.storage.UpdateLoan(loan); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	if err := s.storage.DeleteLoan(loanID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if _, err := s.storage.GetLoan(loanID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	payments, err := s.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

type paymentRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

func (req paymentRequest) toPayment(loanID uuid.UUID) (*models.Payment, error) {
	date, err := time.Parse(dateFormat, req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", req.Date)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	return &models.Payment{
		ID:     uuid.New(),
		LoanID: loanID,
		Date:   ledger.DateOnly(date),
		Amount: req.Amount,
	}, nil
}

func (s *Server) addPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if _, err := s.storage.GetLoan(loanID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payment, err := req.toPayment(loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.AddPayment(payment); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) replacePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if _, err := s.storage.GetLoan(loanID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	var reqs []paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payments := make([]models.Payment, 0, len(reqs))
	for i, pr := range reqs {
		payment, err := pr.toPayment(loanID)
		if err != nil {
			http.Error(w, fmt.Sprintf("payment %d: %v", i, err), http.StatusBadRequest)
			return
		}
		payments = append(payments, *payment)
	}

	if err := s.storage.ReplacePayments(loanID, payments); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(payments)})
}

// ledgerResponse is the ledger endpoint payload. Exactly one of Cycles or
// Allocations is set, according to the loan's allocation policy.
type ledgerResponse struct {
	Policy      models.AllocationPolicy   `json:"policy"`
	AsOf        string                    `json:"as_of"`
	Cycles      []models.CycleRecord      `json:"cycles,omitempty"`
	Allocations []models.AllocationRecord `json:"allocations,omitempty"`
	Summary     *statement.Summary        `json:"summary,omitempty"`
}

func (s *Server) computeLedger(loan *models.Loan, r *http.Request) (*ledgerResponse, error) {
	payments, err := s.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	events := make([]models.PaymentEvent, 0, len(payments))
	for _, p := range payments {
		events = append(events, p.Event())
	}

	asOf := ledger.DateOnly(s.now())
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse(dateFormat, v)
		if err != nil {
			return nil, fmt.Errorf("invalid as_of %q: want YYYY-MM-DD", v)
		}
		asOf = ledger.DateOnly(parsed)
	}

	policy := loan.Policy
	if v := r.URL.Query().Get("policy"); v != "" {
		policy = models.AllocationPolicy(v)
	}

	resp := &ledgerResponse{Policy: policy, AsOf: asOf.Format(dateFormat)}
	started := time.Now()
	switch policy {
	case models.PolicyWaterfall:
		rows, err := ledger.ComputeWaterfall(loan.Terms, events, loan.PenaltyAPR)
		if err != nil {
			return nil, err
		}
		resp.Allocations = rows
	case models.PolicyCapitalize, "":
		resp.Policy = models.PolicyCapitalize
		rows, err := ledger.Compute(loan.Terms, events, asOf)
		if err != nil {
			return nil, err
		}
		summary := statement.Summarize(loan.Terms, rows)
		resp.Cycles = rows
		resp.Summary = &summary
	default:
		return nil, fmt.Errorf("invalid policy %q", policy)
	}
	if s.metricsEnabled {
		observeComputation(string(resp.Policy), started)
	}
	return resp, nil
}

func (s *Server) serveLedger(w http.ResponseWriter, r *http.Request, loan *models.Loan) {
	resp, err := s.computeLedger(loan, r)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTerms) || errors.Is(err, ledger.ErrUnorderedPayments) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.serveLedger(w, r, loan)
}

func (s *Server) borrowerLedgerHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.storage.GetLoanByToken(mux.Vars(r)["token"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.serveLedger(w, r, loan)
}

func (s *Server) serveStatement(w http.ResponseWriter, r *http.Request, loan *models.Loan, asCSV bool) {
	resp, err := s.computeLedger(loan, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if asCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=statement.csv")
		if resp.Policy == models.PolicyWaterfall {
			err = statement.WriteWaterfallCSV(w, resp.Allocations)
		} else {
			err = statement.WriteCSV(w, resp.Cycles)
		}
	} else {
		if resp.Policy == models.PolicyWaterfall {
			http.Error(w, "text statements are only available for the capitalize policy", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = statement.RenderText(w, loan, resp.Cycles)
	}
	if err != nil {
		log.Printf("Error rendering statement for loan %s: %v", loan.ID, err)
	}
}

func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.serveStatement(w, r, loan, false)
}

func (s *Server) statementCSVHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.serveStatement(w, r, loan, true)
}

func (s *Server) borrowerStatementHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.storage.GetLoanByToken(mux.Vars(r)["token"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.serveStatement(w, r, loan, false)
}
