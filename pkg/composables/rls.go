package composables

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-ledger/pkg/configuration"
)

// GUCs read by the tenant isolation policies on the payroll tables.
const (
	settingTenant    = "app.current_tenant"
	settingUser      = "app.current_user"
	settingRequestID = "app.request_id"
)

type sessionSetting struct {
	name  string
	value string
}

// sessionSettings lists the transaction-local settings of a payroll
// transaction. Timeouts always apply so run and liability row locks cannot
// wait forever; the identity settings only when RLS is enforced.
func sessionSettings(ctx context.Context, conf *configuration.Configuration) ([]sessionSetting, error) {
	var out []sessionSetting
	if ms := conf.Database.StatementTimeout.Milliseconds(); ms > 0 {
		out = append(out, sessionSetting{name: "statement_timeout", value: strconv.FormatInt(ms, 10)})
	}
	if ms := conf.Database.LockTimeout.Milliseconds(); ms > 0 {
		out = append(out, sessionSetting{name: "lock_timeout", value: strconv.FormatInt(ms, 10)})
	}
	if conf.RLSEnforce != "enforce" {
		return out, nil
	}

	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return nil, fmt.Errorf("rls requires tenant in context: %w", err)
	}
	out = append(out, sessionSetting{name: settingTenant, value: tenantID.String()})
	if userID, err := UseUserID(ctx); err == nil {
		out = append(out, sessionSetting{name: settingUser, value: userID.String()})
	}
	if requestID := UseRequestID(ctx); requestID != "" {
		out = append(out, sessionSetting{name: settingRequestID, value: requestID})
	}
	return out, nil
}

// setConfigStatement renders the settings as one round trip.
func setConfigStatement(settings []sessionSetting) (string, []any) {
	calls := make([]string, 0, len(settings))
	args := make([]any, 0, 2*len(settings))
	for i, s := range settings {
		calls = append(calls, fmt.Sprintf("set_config($%d, $%d, true)", 2*i+1, 2*i+2))
		args = append(args, s.name, s.value)
	}
	return "SELECT " + strings.Join(calls, ", "), args
}

// ApplyPayrollSession sets the payroll session settings on tx.
func ApplyPayrollSession(ctx context.Context, tx pgx.Tx) error {
	settings, err := sessionSettings(ctx, configuration.Use())
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		return nil
	}
	sql, args := setConfigStatement(settings)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to apply payroll session settings: %w", err)
	}
	return nil
}
