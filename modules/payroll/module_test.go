package payroll

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-ledger/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
)

func TestModule_RegistersServicesAndControllers(t *testing.T) {
	policy, err := authz.NewService(authz.Config{
		PolicyPath: "../../config/access/payroll_scope_policy.csv",
		Mode:       authz.ModeEnforce,
	})
	require.NoError(t, err)

	app := application.New(&application.ApplicationOptions{})
	module := NewModule(&ModuleOptions{
		Authorizer: policy,
		Settings:   &services.Settings{SettlementSyncLimit: 50},
	})
	require.NoError(t, module.Register(app))

	var keys []string
	for _, c := range app.Controllers() {
		keys = append(keys, c.Key())
	}
	require.Equal(t, []string{"/health", "/payroll/api"}, keys)
	require.NotNil(t, app.Service(services.PayrollService{}))
	require.NotNil(t, app.Service(persistence.PaymentBatchStore{}))
}

func TestSettingsFromConfig(t *testing.T) {
	conf := &configuration.Configuration{}
	conf.Payroll.DefaultBookType = "IFRS"
	conf.Payroll.SettlementSyncLimit = 200
	conf.Payroll.MakerChecker = true

	got := SettingsFromConfig(conf)
	require.Equal(t, services.Settings{BookType: "IFRS", SettlementSyncLimit: 200, MakerChecker: true}, got)
}
