package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-ledger/modules"
	"github.com/iota-uz/payroll-ledger/pkg/commands"
)

func newRootCmd() *cobra.Command {
	flags := &identityFlags{}
	cmd := &cobra.Command{
		Use:           "payroll",
		Short:         "Payroll liability and settlement operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.bind(cmd)

	cmd.AddCommand(
		commands.NewMigrateCommand(commands.NewAppLoader(modules.BuiltInModules...)),
		newImportCmd(flags),
		newReviewCmd(flags),
		newFinalizeCmd(flags),
		newReverseCmd(flags),
		newCorrectionCmd(flags),
		newLiabilitiesCmd(flags),
		newBatchCmd(flags),
		newSettleCmd(flags),
		newMappingCmd(flags),
	)
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

// runInSession opens a session, runs fn and prints its result as JSON.
func runInSession(cmd *cobra.Command, flags *identityFlags, fn func(s *session) (any, error)) error {
	s, err := openSession(cmd, flags)
	if err != nil {
		return err
	}
	defer s.close()

	start := time.Now()
	res, err := fn(s)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), cmd.CommandPath(), s.actor.RequestID, start, res)
}
