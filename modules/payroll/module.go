package payroll

import (
	"io/fs"

	"github.com/iota-uz/payroll-ledger/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-ledger/modules/payroll/presentation/controllers"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/routing"
)

type ModuleOptions struct {
	// Authorizer replaces the casbin service built from AUTHZ_* settings.
	Authorizer persistence.Authorizer
	// Settings replaces the PAYROLL_* settings when non-nil.
	Settings *services.Settings
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	schema, err := fs.Sub(persistence.Migrations, persistence.MigrationsDir)
	if err != nil {
		return err
	}
	app.Migrations().RegisterSchema(m.Name(), schema)

	authorizer := m.options.Authorizer
	if authorizer == nil {
		cfg := authz.DefaultConfig()
		cfg.PolicyPath = routing.ResolveConfigPath(cfg.PolicyPath)
		svc, err := authz.NewService(cfg)
		if err != nil {
			return err
		}
		authorizer = svc
	}

	var settings services.Settings
	if m.options.Settings != nil {
		settings = *m.options.Settings
	} else {
		settings = SettingsFromConfig(configuration.Use())
	}

	batches := persistence.NewPaymentBatchStore()
	payrollService := services.NewPayrollService(
		persistence.NewPayrollRepository(),
		services.Collaborators{
			Scope:         persistence.NewLegalEntityScopeGate(authorizer),
			Periods:       persistence.NewPeriodCloseGate(),
			Batches:       batches,
			Beneficiaries: persistence.NewBeneficiaryStore(),
			Evidence:      persistence.NewBankEvidenceReader(),
			Events:        persistence.NewOutboxEventSink(nil),
		},
		settings,
	)
	app.RegisterServices(payrollService, batches)

	var db controllers.Querier
	if pool := app.DB(); pool != nil {
		db = pool
	}
	app.RegisterControllers(
		controllers.NewPayrollAPIController(payrollService),
		controllers.NewHealthController(db),
	)
	return nil
}

func (m *Module) Name() string {
	return "payroll"
}

func SettingsFromConfig(conf *configuration.Configuration) services.Settings {
	return services.Settings{
		BookType:                    conf.Payroll.DefaultBookType,
		AllowEvidenceFreeSettlement: conf.Payroll.AllowEvidenceFreeSettlement,
		SettlementSyncLimit:         conf.Payroll.SettlementSyncLimit,
		MakerChecker:                conf.Payroll.MakerChecker,
	}
}
