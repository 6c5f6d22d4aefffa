package modules

import (
	"github.com/iota-uz/payroll-ledger/modules/payroll"
	"github.com/iota-uz/payroll-ledger/pkg/application"
)

var BuiltInModules = []application.Module{
	payroll.NewModule(nil),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
