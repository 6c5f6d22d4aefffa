package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger := composables.UseLogger(ctx)
	if logger == nil {
		return
	}
	logger.WithFields(fields).Log(level, msg)
}

func logRejected(ctx context.Context, operation string, actor Actor, err error) {
	fields := logrus.Fields{
		"operation": operation,
		"tenant_id": actor.TenantID.String(),
		"actor_id":  actor.UserID.String(),
	}
	if svcErr, ok := err.(*ServiceError); ok {
		fields["error_code"] = svcErr.Code
	}
	logWithFields(ctx, logrus.WarnLevel, "payroll operation rejected", fields)
}
