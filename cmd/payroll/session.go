package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-ledger/modules"
	"github.com/iota-uz/payroll-ledger/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/commands"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
)

// identityFlags are the persistent flags naming who a command acts as.
type identityFlags struct {
	tenantID  string
	userID    string
	requestID string
}

func (f *identityFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.tenantID, "tenant", "", "Tenant UUID")
	cmd.PersistentFlags().StringVar(&f.userID, "user", "", "Acting user UUID")
	cmd.PersistentFlags().StringVar(&f.requestID, "request-id", "", "Request id recorded in the audit log (default: random)")
}

func (f *identityFlags) actor() (services.Actor, error) {
	tenantID, err := uuid.Parse(strings.TrimSpace(f.tenantID))
	if err != nil || tenantID == uuid.Nil {
		return services.Actor{}, withCode(exitUsage, fmt.Errorf("invalid --tenant %q", f.tenantID))
	}
	userID, err := uuid.Parse(strings.TrimSpace(f.userID))
	if err != nil || userID == uuid.Nil {
		return services.Actor{}, withCode(exitUsage, fmt.Errorf("invalid --user %q", f.userID))
	}
	requestID := strings.TrimSpace(f.requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return services.Actor{TenantID: tenantID, UserID: userID, RequestID: requestID}, nil
}

type session struct {
	ctx     context.Context
	actor   services.Actor
	payroll *services.PayrollService
	batches *persistence.PaymentBatchStore
	close   func()
}

// openSession connects, registers the modules and returns a context carrying
// the pool and the actor identity.
func openSession(cmd *cobra.Command, flags *identityFlags) (*session, error) {
	actor, err := flags.actor()
	if err != nil {
		return nil, err
	}
	app, cleanup, err := commands.NewAppLoader(modules.BuiltInModules...)(cmd.Context())
	if err != nil {
		return nil, withCode(exitDB, err)
	}

	logger := configuration.Use().Logger().WithFields(logrus.Fields{
		"request-id": actor.RequestID,
		"tenant-id":  actor.TenantID.String(),
		"user-id":    actor.UserID.String(),
		"command":    cmd.CommandPath(),
	})
	ctx := composables.WithPool(cmd.Context(), app.DB())
	ctx = composables.WithTenantID(ctx, actor.TenantID)
	ctx = composables.WithUserID(ctx, actor.UserID)
	ctx = composables.WithRequestID(ctx, actor.RequestID)
	ctx = composables.WithLogger(ctx, logger)

	return &session{
		ctx:     ctx,
		actor:   actor,
		payroll: app.Service(services.PayrollService{}).(*services.PayrollService),
		batches: app.Service(persistence.PaymentBatchStore{}).(*persistence.PaymentBatchStore),
		close:   cleanup,
	}, nil
}

func parseRunID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid run id %q", raw))
	}
	return id, nil
}

func optionalUUIDFlag(name, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("invalid --%s %q", name, raw))
	}
	return &id, nil
}
