package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
)

func newImportCmd(flags *identityFlags) *cobra.Command {
	var (
		file      string
		in        services.ImportRunInput
		targetRun string
		payDate   string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a provider CSV as an IMPORTED run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer f.Close()
			if in.Rows, err = readImportRows(f); err != nil {
				return err
			}
			if in.TargetRunID, err = optionalUUIDFlag("target-run", targetRun); err != nil {
				return err
			}
			if payDate != "" {
				d, err := parseDateUTC(payDate)
				if err != nil {
					return withCode(exitUsage, err)
				}
				in.PayDate = &d
			}
			in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ImportRun(s.ctx, s.actor, in)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with one row per employee (required)")
	cmd.Flags().StringVar(&targetRun, "target-run", "", "Correction shell run id to fill")
	cmd.Flags().StringVar(&in.LegalEntityCode, "legal-entity", "", "Legal entity code")
	cmd.Flags().StringVar(&in.ProviderCode, "provider", "", "Payroll provider code")
	cmd.Flags().StringVar(&in.Period, "period", "", "Accounting period (YYYY-MM)")
	cmd.Flags().StringVar(&payDate, "pay-date", "", "Pay date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&in.RunNo, "run-no", "", "Run number (default: generated)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newReviewCmd(flags *identityFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "review RUN_ID",
		Short: "Check the accrual of an IMPORTED run and mark it REVIEWED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ReviewRun(s.ctx, s.actor, runID)
			})
		},
	}
}

func newFinalizeCmd(flags *identityFlags) *cobra.Command {
	var (
		opts    services.FinalizeOptions
		preview bool
	)
	cmd := &cobra.Command{
		Use:   "finalize RUN_ID",
		Short: "Post the accrual journal and finalize the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				if preview {
					return s.payroll.PreviewAccrual(s.ctx, s.actor, runID)
				}
				return s.payroll.FinalizeRun(s.ctx, s.actor, runID, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.ForceFromImported, "force-from-imported", false, "Finalize an IMPORTED run without review")
	cmd.Flags().BoolVar(&preview, "preview", false, "Print the accrual preview without posting")
	return cmd
}

func newReverseCmd(flags *identityFlags) *cobra.Command {
	var in services.ReverseInput
	cmd := &cobra.Command{
		Use:   "reverse RUN_ID",
		Short: "Reverse a finalized run and cancel its open liabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(in.Reason) == "" {
				return withCode(exitUsage, fmt.Errorf("--reason is required"))
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ReverseRun(s.ctx, s.actor, runID, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Reason, "reason", "", "Reason recorded on the reversal (required)")
	cmd.Flags().StringVar(&in.IdempotencyKey, "idempotency-key", "", "Idempotency key (default: derived from the run)")
	return cmd
}

func newCorrectionCmd(flags *identityFlags) *cobra.Command {
	var (
		in          services.ShellInput
		kind        string
		originalRun string
		payDate     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a RETRO or OFF_CYCLE correction shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			in.Type = domain.CorrectionType(strings.ToUpper(strings.TrimSpace(kind)))
			if in.OriginalRunID, err = optionalUUIDFlag("original-run", originalRun); err != nil {
				return err
			}
			if payDate != "" {
				d, err := parseDateUTC(payDate)
				if err != nil {
					return withCode(exitUsage, err)
				}
				in.PayDate = &d
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.CreateCorrectionShell(s.ctx, s.actor, in)
			})
		},
	}
	create.Flags().StringVar(&kind, "type", "", "RETRO or OFF_CYCLE (required)")
	create.Flags().StringVar(&originalRun, "original-run", "", "Finalized run a RETRO correction adjusts")
	create.Flags().StringVar(&in.LegalEntityCode, "legal-entity", "", "Legal entity code (OFF_CYCLE)")
	create.Flags().StringVar(&in.ProviderCode, "provider", "", "Provider code (OFF_CYCLE)")
	create.Flags().StringVar(&in.Period, "period", "", "Period YYYY-MM (OFF_CYCLE)")
	create.Flags().StringVar(&payDate, "pay-date", "", "Pay date YYYY-MM-DD")
	create.Flags().StringVar(&in.Currency, "currency", "", "ISO currency code (OFF_CYCLE)")
	create.Flags().StringVar(&in.RunNo, "run-no", "", "Run number")
	create.Flags().StringVar(&in.IdempotencyKey, "idempotency-key", "", "Idempotency key")
	create.Flags().StringVar(&in.Reason, "reason", "", "Reason (required)")
	_ = create.MarkFlagRequired("type")
	_ = create.MarkFlagRequired("reason")

	list := &cobra.Command{
		Use:   "list RUN_ID",
		Short: "List corrections linked to a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ListRunCorrections(s.ctx, s.actor, runID)
			})
		},
	}

	cmd := &cobra.Command{Use: "correction", Short: "Correction runs"}
	cmd.AddCommand(create, list)
	return cmd
}
