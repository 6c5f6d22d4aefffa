package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, exitOK, exitCode(nil))
	require.Equal(t, exitUsage, exitCode(withCode(exitUsage, errors.New("bad flag"))))
	require.Equal(t, exitNotFound, exitCode(fmt.Errorf("load: %w", domain.ErrNotFound)))
	require.Equal(t, exitConflict, exitCode(&services.PeriodLockedError{Period: "2026-03"}))
	require.Equal(t, exitValidation, exitCode(&services.ServiceError{Status: http.StatusBadRequest, Code: "X"}))
	require.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

func TestCommands_RejectBadArgumentsBeforeConnecting(t *testing.T) {
	cases := []struct {
		name string
		args []string
		code int
	}{
		{name: "missing tenant", args: []string{"review", "00000000-0000-0000-0000-000000000001"}, code: exitUsage},
		{name: "bad run id", args: []string{"finalize", "nope"}, code: exitUsage},
		{name: "reverse needs reason", args: []string{"reverse", "00000000-0000-0000-0000-000000000001"}, code: exitUsage},
		{name: "bad batch status", args: []string{"batch", "status", "00000000-0000-0000-0000-000000000001", "LOST"}, code: exitUsage},
		{name: "bad evidence override", args: []string{"settle", "apply", "--allow-evidence-free", "maybe"}, code: exitUsage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tc.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			require.Equal(t, tc.code, exitCode(err))
		})
	}
}
