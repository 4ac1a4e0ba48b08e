package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shylock-app/shylock/pkg/api"
	"github.com/shylock-app/shylock/pkg/config"
	"github.com/shylock-app/shylock/pkg/ledger"
	"github.com/shylock-app/shylock/pkg/models"
	"github.com/shylock-app/shylock/pkg/statement"
	"github.com/shylock-app/shylock/pkg/store"
)

var rootCmd = &cobra.Command{
	Use:   "shylock",
	Short: "Private loan ledger",
	Long:  "shylock tracks private loans: monthly interest cycles, late fees, and principal reduction, served over HTTP or computed offline.",
}

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		server := api.NewServer(st)
		if cfg.MetricsEnabled {
			server.EnableMetrics()
		}

		log.Printf("Listening on %s (db %s)", cfg.ListenAddr, cfg.DBPath)
		return http.ListenAndServe(cfg.ListenAddr, server.Router())
	},
}

var ledgerFlags struct {
	name        string
	principal   string
	origination string
	rate        string
	feeKind     string
	feeAmount   string
	graceDays   int
	policy      string
	penaltyAPR  string
	payments    string
	asOf        string
	csv         bool
}

// ledgerCmd computes a ledger entirely offline, no store involved. Useful
// for dry runs against a bank-exported payment history.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Compute a ledger from flags and a payments CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, err := termsFromFlags()
		if err != nil {
			return err
		}

		var events []models.PaymentEvent
		if ledgerFlags.payments != "" {
			f, err := os.Open(ledgerFlags.payments)
			if err != nil {
				return err
			}
			defer f.Close()
			events, err = statement.ImportPaymentsCSV(f)
			if err != nil {
				return fmt.Errorf("reading payments: %w", err)
			}
		}

		asOf := ledger.DateOnly(time.Now())
		if ledgerFlags.asOf != "" {
			parsed, err := time.Parse("2006-01-02", ledgerFlags.asOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", ledgerFlags.asOf)
			}
			asOf = ledger.DateOnly(parsed)
		}

		if ledgerFlags.policy == string(models.PolicyWaterfall) {
			penalty, err := decimal.NewFromString(ledgerFlags.penaltyAPR)
			if err != nil {
				return fmt.Errorf("invalid --penalty-apr %q", ledgerFlags.penaltyAPR)
			}
			rows, err := ledger.ComputeWaterfall(terms, events, penalty)
			if err != nil {
				return err
			}
			return statement.WriteWaterfallCSV(cmd.OutOrStdout(), rows)
		}

		rows, err := ledger.Compute(terms, events, asOf)
		if err != nil {
			return err
		}
		if ledgerFlags.csv {
			return statement.WriteCSV(cmd.OutOrStdout(), rows)
		}
		loan := &models.Loan{Name: ledgerFlags.name, Terms: terms}
		return statement.RenderText(cmd.OutOrStdout(), loan, rows)
	},
}

func termsFromFlags() (models.LoanTerms, error) {
	var terms models.LoanTerms

	principal, err := decimal.NewFromString(ledgerFlags.principal)
	if err != nil {
		return terms, fmt.Errorf("invalid --principal %q", ledgerFlags.principal)
	}
	rate, err := decimal.NewFromString(ledgerFlags.rate)
	if err != nil {
		return terms, fmt.Errorf("invalid --rate %q", ledgerFlags.rate)
	}
	feeAmount, err := decimal.NewFromString(ledgerFlags.feeAmount)
	if err != nil {
		return terms, fmt.Errorf("invalid --late-fee %q", ledgerFlags.feeAmount)
	}
	origination, err := time.Parse("2006-01-02", ledgerFlags.origination)
	if err != nil {
		return terms, fmt.Errorf("invalid --origination %q: want YYYY-MM-DD", ledgerFlags.origination)
	}
	kind := models.LateFeeKind(ledgerFlags.feeKind)
	if kind != models.LateFeeFixed && kind != models.LateFeePercent {
		return terms, fmt.Errorf("invalid --fee-kind %q: want fixed or percent", ledgerFlags.feeKind)
	}

	terms = models.LoanTerms{
		Principal:       principal,
		OriginationDate: ledger.DateOnly(origination),
		AnnualRate:      rate,
		LateFee: models.LateFeePolicy{
			Kind:      kind,
			Amount:    feeAmount,
			GraceDays: ledgerFlags.graceDays,
		},
	}
	return terms, ledger.ValidateTerms(terms)
}

var importDBPath string

var importCmd = &cobra.Command{
	Use:   "import <loan-id> <payments.csv>",
	Short: "Replace a loan's payment history from a CSV export",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loanID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid loan ID %q", args[0])
		}

		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		events, err := statement.ImportPaymentsCSV(f)
		if err != nil {
			return fmt.Errorf("reading payments: %w", err)
		}

		st, err := store.NewSQLiteStore(importDBPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if _, err := st.GetLoan(loanID); err != nil {
			return err
		}
		payments := make([]models.Payment, 0, len(events))
		for _, e := range events {
			payments = append(payments, models.Payment{
				LoanID: loanID,
				Date:   e.Date,
				Amount: e.Amount,
			})
		}
		if err := st.ReplacePayments(loanID, payments); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d payments for loan %s\n", len(payments), loanID)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to the TOML config file (default "+config.DefaultPath+" if present)")

	lf := ledgerCmd.Flags()
	lf.StringVar(&ledgerFlags.name, "name", "Loan", "loan name for the statement header")
	lf.StringVar(&ledgerFlags.principal, "principal", "", "original principal (required)")
	lf.StringVar(&ledgerFlags.origination, "origination", "", "origination date, YYYY-MM-DD (required)")
	lf.StringVar(&ledgerFlags.rate, "rate", "", "annual interest rate, e.g. 0.06 (required)")
	lf.StringVar(&ledgerFlags.feeKind, "fee-kind", "fixed", "late fee kind: fixed or percent")
	lf.StringVar(&ledgerFlags.feeAmount, "late-fee", "0", "late fee amount (dollars, or percent of cycle interest)")
	lf.IntVar(&ledgerFlags.graceDays, "grace-days", 0, "days past due before a late fee applies")
	lf.StringVar(&ledgerFlags.policy, "policy", string(models.PolicyCapitalize), "allocation policy: capitalize or waterfall")
	lf.StringVar(&ledgerFlags.penaltyAPR, "penalty-apr", "0", "penalty rate on outstanding late fees (waterfall only)")
	lf.StringVar(&ledgerFlags.payments, "payments", "", "CSV of payments (date, amount)")
	lf.StringVar(&ledgerFlags.asOf, "as-of", "", "report days late on an open cycle as of this date")
	lf.BoolVar(&ledgerFlags.csv, "csv", false, "emit CSV instead of a text statement")
	ledgerCmd.MarkFlagRequired("principal")
	ledgerCmd.MarkFlagRequired("origination")
	ledgerCmd.MarkFlagRequired("rate")

	importCmd.Flags().StringVar(&importDBPath, "db", "shylock.db", "path to the SQLite database")

	rootCmd.AddCommand(serveCmd, ledgerCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
