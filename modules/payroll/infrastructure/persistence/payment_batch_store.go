package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

// PaymentBatchStore keeps payment batches in payment_batches and
// payment_batch_lines, keyed by (tenant, idempotency key).
type PaymentBatchStore struct{}

func NewPaymentBatchStore() *PaymentBatchStore {
	return &PaymentBatchStore{}
}

var _ services.PaymentBatchService = (*PaymentBatchStore)(nil)

const batchColumns = `
	b.id, b.tenant_id, b.legal_entity_id, b.source_type, b.source_id, b.idempotency_key,
	b.status, b.currency, b.total_amount`

func scanBatch(row rowScanner) (services.PaymentBatch, error) {
	var (
		b                            services.PaymentBatch
		id, tenantID, leID, sourceID pgtype.UUID
		currency                     string
	)
	if err := row.Scan(&id, &tenantID, &leID, &b.SourceType, &sourceID, &b.IdempotencyKey, &b.Status, &currency, &b.TotalAmount); err != nil {
		return services.PaymentBatch{}, err
	}
	b.ID, b.TenantID, b.LegalEntityID, b.SourceID = asUUID(id), asUUID(tenantID), asUUID(leID), asUUID(sourceID)
	b.Currency = strings.TrimSpace(currency)
	return b, nil
}

func (s *PaymentBatchStore) CreatePaymentBatch(ctx context.Context, in services.CreatePaymentBatchInput) (services.PaymentBatch, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.PaymentBatch{}, err
	}
	total := money.Zero
	for _, l := range in.Lines {
		total = total.Add(l.Amount)
	}
	batchID := uuid.New()
	var inserted pgtype.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO payment_batches (
			id, tenant_id, legal_entity_id, source_type, source_id, idempotency_key,
			status, currency, payment_date, bank_account_id, notes, total_amount, created_by
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
		`,
		pgUUID(batchID), pgUUID(in.TenantID), pgUUID(in.LegalEntityID), in.SourceType, pgUUID(in.SourceID),
		in.IdempotencyKey, domain.BatchStatusDraft, in.Currency, pgDate(in.PaymentDate),
		pgNullableUUID(in.BankAccountID), in.Notes, total, pgUUID(in.CreatedBy),
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.FindPaymentBatchByKey(ctx, in.TenantID, in.IdempotencyKey)
		if err != nil {
			return services.PaymentBatch{}, err
		}
		if existing == nil {
			return services.PaymentBatch{}, notFound("payment batch", in.IdempotencyKey)
		}
		existing.Reused = true
		return *existing, nil
	}
	if err != nil {
		return services.PaymentBatch{}, gerrors.Wrap(err, "insert payment batch")
	}

	batch := services.PaymentBatch{
		ID:             batchID,
		TenantID:       in.TenantID,
		LegalEntityID:  in.LegalEntityID,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
		IdempotencyKey: in.IdempotencyKey,
		Status:         domain.BatchStatusDraft,
		Currency:       in.Currency,
		TotalAmount:    total,
	}
	pb := &pgx.Batch{}
	for _, l := range in.Lines {
		line := services.PaymentBatchLine{
			ID:           uuid.New(),
			SourceLineID: l.SourceLineID,
			PayeeType:    l.PayeeType,
			PayeeRef:     l.PayeeRef,
			Amount:       l.Amount,
			Status:       domain.BatchStatusDraft,
		}
		pb.Queue(`
			INSERT INTO payment_batch_lines (id, tenant_id, batch_id, source_line_id, payee_type, payee_ref, amount, description, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`,
			pgUUID(line.ID), pgUUID(in.TenantID), pgUUID(batchID), pgUUID(line.SourceLineID),
			line.PayeeType, line.PayeeRef, line.Amount, l.Description, line.Status,
		)
		batch.Lines = append(batch.Lines, line)
	}
	br := tx.SendBatch(ctx, pb)
	defer br.Close()
	for range in.Lines {
		if _, err := br.Exec(); err != nil {
			return services.PaymentBatch{}, gerrors.Wrap(err, "insert payment batch line")
		}
	}
	return batch, nil
}

func (s *PaymentBatchStore) FindPaymentBatchByKey(ctx context.Context, tenantID uuid.UUID, idempotencyKey string) (*services.PaymentBatch, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	b, err := scanBatch(tx.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM payment_batches b
		WHERE b.tenant_id = $1 AND b.idempotency_key = $2
		`, pgUUID(tenantID), idempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select payment batch by key")
	}
	lines, err := s.loadLines(ctx, tenantID, []uuid.UUID{b.ID})
	if err != nil {
		return nil, err
	}
	b.Lines = lines[b.ID]
	return &b, nil
}

func (s *PaymentBatchStore) LoadPaymentBatches(ctx context.Context, tenantID uuid.UUID, batchIDs []uuid.UUID) (map[uuid.UUID]services.PaymentBatch, error) {
	out := make(map[uuid.UUID]services.PaymentBatch, len(batchIDs))
	if len(batchIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+batchColumns+`
		FROM payment_batches b
		WHERE b.tenant_id = $1 AND b.id = ANY($2)
		`, pgUUID(tenantID), pgUUIDArray(batchIDs))
	if err != nil {
		return nil, gerrors.Wrap(err, "select payment batches")
	}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, gerrors.Wrap(err, "scan payment batch")
		}
		out[b.ID] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, tenantID, batchIDs)
	if err != nil {
		return nil, err
	}
	for id, b := range out {
		b.Lines = lines[id]
		out[id] = b
	}
	return out, nil
}

func (s *PaymentBatchStore) loadLines(ctx context.Context, tenantID uuid.UUID, batchIDs []uuid.UUID) (map[uuid.UUID][]services.PaymentBatchLine, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT batch_id, id, source_line_id, payee_type, payee_ref, amount, status
		FROM payment_batch_lines
		WHERE tenant_id = $1 AND batch_id = ANY($2)
		ORDER BY batch_id, payee_type, payee_ref, id
		`, pgUUID(tenantID), pgUUIDArray(batchIDs))
	if err != nil {
		return nil, gerrors.Wrap(err, "select payment batch lines")
	}
	defer rows.Close()
	out := map[uuid.UUID][]services.PaymentBatchLine{}
	for rows.Next() {
		var (
			batchID, id, sourceID pgtype.UUID
			l                     services.PaymentBatchLine
		)
		if err := rows.Scan(&batchID, &id, &sourceID, &l.PayeeType, &l.PayeeRef, &l.Amount, &l.Status); err != nil {
			return nil, gerrors.Wrap(err, "scan payment batch line")
		}
		l.ID, l.SourceLineID = asUUID(id), asUUID(sourceID)
		key := asUUID(batchID)
		out[key] = append(out[key], l)
	}
	return out, rows.Err()
}

// SetBatchStatus moves a batch and every line still in the old status; used
// by the payments side and the CLI to cancel or mark a batch paid.
func (s *PaymentBatchStore) SetBatchStatus(ctx context.Context, tenantID, batchID uuid.UUID, status string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE payment_batches SET status = $3 WHERE tenant_id = $1 AND id = $2`, pgUUID(tenantID), pgUUID(batchID), status)
	if err != nil {
		return gerrors.Wrap(err, "update payment batch status")
	}
	if tag.RowsAffected() == 0 {
		return notFound("payment batch", batchID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payment_batch_lines SET status = $3
		WHERE tenant_id = $1 AND batch_id = $2 AND status NOT IN ('PAID', 'CANCELLED', 'FAILED')
		`, pgUUID(tenantID), pgUUID(batchID), status); err != nil {
		return gerrors.Wrap(err, "update payment batch line status")
	}
	return nil
}
