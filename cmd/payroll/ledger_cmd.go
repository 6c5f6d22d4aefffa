package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

func newLiabilitiesCmd(flags *identityFlags) *cobra.Command {
	build := &cobra.Command{
		Use:   "build RUN_ID",
		Short: "Derive liabilities from a finalized run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.BuildLiabilities(s.ctx, s.actor, runID)
			})
		},
	}

	var (
		runID, legalEntity, group string
		statuses                  []string
		limit, offset             int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List liabilities in the caller's legal entity scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f   services.LiabilityFilter
				err error
			)
			if f.RunID, err = optionalUUIDFlag("run", runID); err != nil {
				return err
			}
			if f.LegalEntityID, err = optionalUUIDFlag("legal-entity", legalEntity); err != nil {
				return err
			}
			for _, st := range statuses {
				f.Statuses = append(f.Statuses, domain.LiabilityStatus(strings.ToUpper(strings.TrimSpace(st))))
			}
			if g := strings.ToUpper(strings.TrimSpace(group)); g != "" {
				lg := domain.LiabilityGroup(g)
				f.Group = &lg
			}
			f.Limit, f.Offset = limit, offset
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ListLiabilities(s.ctx, s.actor, f)
			})
		},
	}
	list.Flags().StringVar(&runID, "run", "", "Run id")
	list.Flags().StringVar(&legalEntity, "legal-entity", "", "Legal entity id")
	list.Flags().StringSliceVar(&statuses, "status", nil, "Statuses to include")
	list.Flags().StringVar(&group, "group", "", "EMPLOYEE_NET or STATUTORY")
	list.Flags().IntVar(&limit, "limit", 0, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	cmd := &cobra.Command{Use: "liabilities", Short: "Payroll liabilities"}
	cmd.AddCommand(build, list)
	return cmd
}

var settableBatchStatuses = []string{
	domain.BatchStatusApproved,
	domain.BatchStatusSent,
	domain.BatchStatusPaid,
	domain.BatchStatusCancelled,
	domain.BatchStatusFailed,
}

func newBatchCmd(flags *identityFlags) *cobra.Command {
	var scope string
	preview := &cobra.Command{
		Use:   "preview RUN_ID",
		Short: "Show which open liabilities a batch would reserve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.PreviewPaymentBatch(s.ctx, s.actor, runID, domain.BatchScope(strings.ToUpper(scope)))
			})
		},
	}
	preview.Flags().StringVar(&scope, "scope", string(domain.ScopeAll), "NET_PAY, STATUTORY or ALL")

	var (
		in          services.CreateBatchInput
		createScope string
		bankAccount string
	)
	create := &cobra.Command{
		Use:   "create RUN_ID",
		Short: "Create a payment batch from open liabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			in.Scope = domain.BatchScope(strings.ToUpper(strings.TrimSpace(createScope)))
			if in.BankAccountID, err = optionalUUIDFlag("bank-account", bankAccount); err != nil {
				return err
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				if in.IdempotencyKey == "" {
					in.IdempotencyKey = domain.DefaultBatchIdempotencyKey(runID, in.Scope)
				}
				return s.payroll.CreatePaymentBatchFromLiabilities(s.ctx, s.actor, runID, in)
			})
		},
	}
	create.Flags().StringVar(&createScope, "scope", string(domain.ScopeAll), "NET_PAY, STATUTORY or ALL")
	create.Flags().StringVar(&in.IdempotencyKey, "idempotency-key", "", "Idempotency key (default: derived from run and scope)")
	create.Flags().StringVar(&bankAccount, "bank-account", "", "Paying bank account id")
	create.Flags().StringVar(&in.Notes, "notes", "", "Notes")

	status := &cobra.Command{
		Use:   "status BATCH_ID STATUS",
		Short: "Move a payment batch and its open lines to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid batch id %q", args[0]))
			}
			next := strings.ToUpper(strings.TrimSpace(args[1]))
			if !slices.Contains(settableBatchStatuses, next) {
				return withCode(exitUsage, fmt.Errorf("invalid status %q (expected one of %s)", args[1], strings.Join(settableBatchStatuses, ", ")))
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				err := composables.InTenantTx(s.ctx, func(txCtx context.Context) error {
					return s.batches.SetBatchStatus(txCtx, s.actor.TenantID, batchID, next)
				})
				if err != nil {
					return nil, err
				}
				return map[string]string{"payment_batch_id": batchID.String(), "status": next}, nil
			})
		},
	}

	cmd := &cobra.Command{Use: "batch", Short: "Payment batches built from liabilities"}
	cmd.AddCommand(preview, create, status)
	return cmd
}

func newSettleCmd(flags *identityFlags) *cobra.Command {
	var (
		runID, legalEntity string
		limit              int
		evidenceFree       string
	)
	build := func(apply bool) *cobra.Command {
		use, short := "preview", "Show settlement decisions without writing"
		if apply {
			use, short = "apply", "Apply settlement decisions from paid batches"
		}
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var (
					f   services.SyncFilter
					err error
				)
				if f.RunID, err = optionalUUIDFlag("run", runID); err != nil {
					return err
				}
				if f.LegalEntityID, err = optionalUUIDFlag("legal-entity", legalEntity); err != nil {
					return err
				}
				f.Limit = limit
				switch strings.ToLower(strings.TrimSpace(evidenceFree)) {
				case "":
				case "true":
					v := true
					f.AllowEvidenceFreeSettlement = &v
				case "false":
					v := false
					f.AllowEvidenceFreeSettlement = &v
				default:
					return withCode(exitUsage, fmt.Errorf("invalid --allow-evidence-free %q", evidenceFree))
				}
				return runInSession(cmd, flags, func(s *session) (any, error) {
					if apply {
						return s.payroll.ApplySettlementSync(s.ctx, s.actor, f)
					}
					return s.payroll.PreviewSettlementSync(s.ctx, s.actor, f)
				})
			},
		}
	}

	cmd := &cobra.Command{Use: "settle", Short: "Settlement sync from payment batches"}
	cmd.PersistentFlags().StringVar(&runID, "run", "", "Run id")
	cmd.PersistentFlags().StringVar(&legalEntity, "legal-entity", "", "Legal entity id")
	cmd.PersistentFlags().IntVar(&limit, "limit", 0, "Maximum links to examine (default: PAYROLL_SETTLEMENT_SYNC_LIMIT)")
	cmd.PersistentFlags().StringVar(&evidenceFree, "allow-evidence-free", "", "Override PAYROLL_ALLOW_EVIDENCE_FREE_SETTLEMENT (true|false)")
	cmd.AddCommand(build(false), build(true))
	return cmd
}

func newMappingCmd(flags *identityFlags) *cobra.Command {
	var (
		legalEntity, provider, currency, component, asOf string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List component to GL account mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := services.MappingFilter{ProviderCode: provider, Currency: strings.ToUpper(currency), ComponentCode: component}
			var err error
			if f.LegalEntityID, err = optionalUUIDFlag("legal-entity", legalEntity); err != nil {
				return err
			}
			if asOf != "" {
				d, err := parseDateUTC(asOf)
				if err != nil {
					return withCode(exitUsage, err)
				}
				f.AsOf = &d
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.ListComponentMappings(s.ctx, s.actor, f)
			})
		},
	}
	list.Flags().StringVar(&legalEntity, "legal-entity", "", "Legal entity id")
	list.Flags().StringVar(&provider, "provider", "", "Provider code")
	list.Flags().StringVar(&currency, "currency", "", "Currency")
	list.Flags().StringVar(&component, "component", "", "Component code")
	list.Flags().StringVar(&asOf, "as-of", "", "Effective date YYYY-MM-DD")

	var (
		in                                   services.UpsertMappingInput
		upLegalEntity, glAccount, side, from string
	)
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Create or replace a mapping from an effective date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.LegalEntityID, err = uuid.Parse(strings.TrimSpace(upLegalEntity)); err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --legal-entity %q", upLegalEntity))
			}
			if in.GLAccountID, err = uuid.Parse(strings.TrimSpace(glAccount)); err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --gl-account %q", glAccount))
			}
			in.EntrySide = domain.EntrySide(strings.ToUpper(strings.TrimSpace(side)))
			in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
			if in.EffectiveFrom, err = parseDateUTC(from); err != nil {
				return withCode(exitUsage, err)
			}
			return runInSession(cmd, flags, func(s *session) (any, error) {
				return s.payroll.UpsertComponentMapping(s.ctx, s.actor, in)
			})
		},
	}
	upsert.Flags().StringVar(&upLegalEntity, "legal-entity", "", "Legal entity id (required)")
	upsert.Flags().StringVar(&in.ProviderCode, "provider", "", "Provider code (required)")
	upsert.Flags().StringVar(&in.Currency, "currency", "", "Currency (required)")
	upsert.Flags().StringVar(&in.ComponentCode, "component", "", "Component code (required)")
	upsert.Flags().StringVar(&glAccount, "gl-account", "", "GL account id (required)")
	upsert.Flags().StringVar(&side, "side", "", "DEBIT or CREDIT (required)")
	upsert.Flags().StringVar(&from, "effective-from", time.Now().UTC().Format("2006-01-02"), "Effective from YYYY-MM-DD")
	for _, name := range []string{"legal-entity", "provider", "currency", "component", "gl-account", "side"} {
		_ = upsert.MarkFlagRequired(name)
	}

	cmd := &cobra.Command{Use: "mapping", Short: "Component to GL account mappings"}
	cmd.AddCommand(list, upsert)
	return cmd
}
