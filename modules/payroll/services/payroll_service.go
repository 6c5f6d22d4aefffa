package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
)

type Collaborators struct {
	Scope         ScopeGate
	Periods       PeriodGate
	Batches       PaymentBatchService
	Beneficiaries BeneficiaryService
	Evidence      BankEvidenceReader
	Events        EventSink
}

type Settings struct {
	BookType                    string
	AllowEvidenceFreeSettlement bool
	SettlementSyncLimit         int
	// MakerChecker forbids reviewing a run with the account that imported it.
	MakerChecker bool
}

type PayrollService struct {
	repo     Repository
	collab   Collaborators
	settings Settings
	txRunner TxRunner
	now      func() time.Time
}

func NewPayrollService(repo Repository, collab Collaborators, settings Settings) *PayrollService {
	if settings.BookType == "" {
		settings.BookType = "LOCAL"
	}
	if settings.SettlementSyncLimit <= 0 {
		settings.SettlementSyncLimit = 500
	}
	return &PayrollService{
		repo:     repo,
		collab:   collab,
		settings: settings,
		txRunner: composables.InTenantTx,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithTxRunner replaces the transaction runner; used by tests and tools that
// manage their own transaction.
func (s *PayrollService) WithTxRunner(r TxRunner) *PayrollService {
	s.txRunner = r
	return s
}

func (s *PayrollService) WithClock(now func() time.Time) *PayrollService {
	s.now = now
	return s
}

func inTx[T any](ctx context.Context, s *PayrollService, actor Actor, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	ctx = composables.WithTenantID(ctx, actor.TenantID)
	err := s.txRunner(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}

func validateActor(actor Actor) error {
	if actor.TenantID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, CodeNoTenant, "tenant_id is required", nil)
	}
	return nil
}

// loadRunInScope reads the run and checks the actor's legal-entity scope
// before any lock is taken.
func (s *PayrollService) loadRunInScope(ctx context.Context, actor Actor, runID uuid.UUID) (domain.Run, error) {
	if err := validateActor(actor); err != nil {
		return domain.Run{}, err
	}
	if runID == uuid.Nil {
		return domain.Run{}, invalidArgument("run_id is required")
	}
	run, err := inTx(ctx, s, actor, func(txCtx context.Context) (domain.Run, error) {
		return s.repo.GetRun(txCtx, actor.TenantID, runID)
	})
	if err != nil {
		return domain.Run{}, mapCollaboratorError(err)
	}
	if err := s.assertLegalEntity(ctx, actor, run.LegalEntityID); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func (s *PayrollService) assertLegalEntity(ctx context.Context, actor Actor, legalEntityID uuid.UUID) error {
	if s.collab.Scope == nil {
		return nil
	}
	if err := s.collab.Scope.AssertScopeAccess(ctx, actor, ScopeLegalEntity, legalEntityID, "legal_entity_id"); err != nil {
		return mapCollaboratorError(err)
	}
	return nil
}

func (s *PayrollService) scopePredicate(ctx context.Context, actor Actor, column string) (ScopePredicate, error) {
	if s.collab.Scope == nil {
		return ScopePredicate{}, nil
	}
	var args []any
	clause, err := s.collab.Scope.BuildScopeFilter(ctx, actor, ScopeLegalEntity, column, &args)
	if err != nil {
		return ScopePredicate{}, mapCollaboratorError(err)
	}
	return ScopePredicate{Clause: clause, Args: args}, nil
}

func (s *PayrollService) assertPeriod(ctx context.Context, run domain.Run, action PeriodAction) error {
	return s.assertPeriodFor(ctx, run.TenantID, run.LegalEntityID, run.Period, action)
}

func (s *PayrollService) assertPeriodFor(ctx context.Context, tenantID, legalEntityID uuid.UUID, period string, action PeriodAction) error {
	if s.collab.Periods == nil {
		return nil
	}
	if err := s.collab.Periods.AssertPeriodActionAllowed(ctx, tenantID, legalEntityID, period, action); err != nil {
		return mapCollaboratorError(err)
	}
	return nil
}

func (s *PayrollService) emit(ctx context.Context, tenantID uuid.UUID, topic string, aggregateID uuid.UUID, payload any) error {
	if s.collab.Events == nil {
		return nil
	}
	return s.collab.Events.Enqueue(ctx, LifecycleEvent{
		TenantID:    tenantID,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
	})
}

func (s *PayrollService) audit(ctx context.Context, actor Actor, a AuditLogInsert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.TenantID = actor.TenantID
	a.ActorID = actor.UserID
	if a.RequestID == "" {
		a.RequestID = actor.RequestID
	}
	if a.TransactionTime.IsZero() {
		a.TransactionTime = s.now()
	}
	if a.Result == "" {
		a.Result = AuditResultSuccess
	}
	return s.repo.InsertAuditLog(ctx, a)
}

// auditOutsideTx records a rejected attempt in its own transaction so the
// row survives the rollback of the operation it describes.
func (s *PayrollService) auditOutsideTx(ctx context.Context, actor Actor, a AuditLogInsert) {
	ctx = composables.WithTenantID(ctx, actor.TenantID)
	err := s.txRunner(ctx, func(txCtx context.Context) error {
		return s.audit(txCtx, actor, a)
	})
	if err != nil {
		logWithFields(ctx, logrus.ErrorLevel, "payroll audit insert failed", logrus.Fields{
			"action": a.Action,
			"error":  err.Error(),
		})
	}
}

// finish maps err, logs and counts the outcome of an operation.
func (s *PayrollService) finish(ctx context.Context, operation string, actor Actor, replay bool, err error) error {
	if err != nil {
		err = mapCollaboratorError(err)
		recordTransition(operation, resultRejected)
		logRejected(ctx, operation, actor, err)
		return err
	}
	result := resultApplied
	if replay {
		result = resultReplay
	}
	recordTransition(operation, result)
	logWithFields(ctx, logrus.InfoLevel, "payroll operation completed", logrus.Fields{
		"operation": operation,
		"tenant_id": actor.TenantID.String(),
		"result":    result,
	})
	return nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func timePtr(t time.Time) *time.Time { return &t }

func isNotFound(err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Status == http.StatusNotFound
}
