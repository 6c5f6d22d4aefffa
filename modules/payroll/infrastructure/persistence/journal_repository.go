package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

func (r *PayrollRepository) ResolveBook(ctx context.Context, tenantID, legalEntityID uuid.UUID, bookType string) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM gl_books WHERE tenant_id = $1 AND legal_entity_id = $2 AND book_type = $3
		`, pgUUID(tenantID), pgUUID(legalEntityID), bookType).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, notFound("gl book", legalEntityID)
	}
	if err != nil {
		return uuid.Nil, gerrors.Wrap(err, "select gl book")
	}
	return asUUID(id), nil
}

// FindFiscalPeriod returns the period containing day, or nil.
func (r *PayrollRepository) FindFiscalPeriod(ctx context.Context, tenantID, bookID uuid.UUID, day time.Time) (*domain.FiscalPeriod, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var (
		id, bID    pgtype.UUID
		start, end pgtype.Date
		p          domain.FiscalPeriod
	)
	err = tx.QueryRow(ctx, `
		SELECT id, book_id, code, start_date, end_date, status
		FROM gl_fiscal_periods
		WHERE tenant_id = $1 AND book_id = $2 AND start_date <= $3 AND end_date >= $3
		ORDER BY start_date DESC
		LIMIT 1
		`, pgUUID(tenantID), pgUUID(bookID), pgDate(day)).Scan(&id, &bID, &p.Code, &start, &end, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select fiscal period")
	}
	p.ID, p.BookID = asUUID(id), asUUID(bID)
	p.StartDate, p.EndDate = asDate(start), asDate(end)
	return &p, nil
}

func (r *PayrollRepository) FindJournalByNumber(ctx context.Context, tenantID, bookID uuid.UUID, number string) (*uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM gl_journal_entries WHERE tenant_id = $1 AND book_id = $2 AND journal_number = $3
		`, pgUUID(tenantID), pgUUID(bookID), number).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "select journal by number")
	}
	return nullableUUID(id), nil
}

func (r *PayrollRepository) InsertJournal(ctx context.Context, j domain.JournalEntry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO gl_journal_entries (
			id, tenant_id, legal_entity_id, book_id, fiscal_period_id, journal_number, entry_date, currency,
			source_type, source_id, reverses_journal_id, description, status, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`,
		pgUUID(j.ID), pgUUID(j.TenantID), pgUUID(j.LegalEntityID), pgUUID(j.BookID), pgUUID(j.FiscalPeriodID),
		j.JournalNumber, pgDate(j.EntryDate), j.Currency, j.SourceType, pgUUID(j.SourceID),
		pgNullableUUID(j.ReversesJournalID), j.Description, j.Status, pgUUID(j.CreatedBy), j.CreatedAt.UTC(),
	); err != nil {
		return gerrors.Wrap(err, "insert journal entry")
	}

	rows := make([][]any, 0, len(j.Lines))
	for _, l := range j.Lines {
		rows = append(rows, []any{pgUUID(j.ID), l.LineNo, pgUUID(l.GLAccountID), l.ComponentCode, l.Debit, l.Credit, l.Description})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"gl_journal_lines"},
		[]string{"journal_id", "line_no", "gl_account_id", "component_code", "debit", "credit", "description"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return gerrors.Wrap(err, "copy journal lines")
	}
	return nil
}

func (r *PayrollRepository) GetJournal(ctx context.Context, tenantID, journalID uuid.UUID) (domain.JournalEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	var (
		id, tID, leID, bookID, periodID, sourceID, reverses, createdBy pgtype.UUID
		entryDate                                                      pgtype.Date
		createdAt                                                      pgtype.Timestamptz
		currency                                                       string
		j                                                              domain.JournalEntry
	)
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, book_id, fiscal_period_id, journal_number, entry_date, currency,
			source_type, source_id, reverses_journal_id, description, status, created_by, created_at
		FROM gl_journal_entries
		WHERE tenant_id = $1 AND id = $2
		`, pgUUID(tenantID), pgUUID(journalID),
	).Scan(&id, &tID, &leID, &bookID, &periodID, &j.JournalNumber, &entryDate, &currency,
		&j.SourceType, &sourceID, &reverses, &j.Description, &j.Status, &createdBy, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JournalEntry{}, notFound("journal entry", journalID)
	}
	if err != nil {
		return domain.JournalEntry{}, gerrors.Wrap(err, "select journal entry")
	}
	j.ID, j.TenantID, j.LegalEntityID = asUUID(id), asUUID(tID), asUUID(leID)
	j.BookID, j.FiscalPeriodID, j.SourceID = asUUID(bookID), asUUID(periodID), asUUID(sourceID)
	j.ReversesJournalID, j.CreatedBy = nullableUUID(reverses), asUUID(createdBy)
	j.EntryDate, j.CreatedAt = asDate(entryDate), asTime(createdAt)
	j.Currency = strings.TrimSpace(currency)

	rows, err := tx.Query(ctx, `
		SELECT line_no, gl_account_id, component_code, debit, credit, description
		FROM gl_journal_lines
		WHERE journal_id = $1
		ORDER BY line_no
		`, pgUUID(journalID))
	if err != nil {
		return domain.JournalEntry{}, gerrors.Wrap(err, "select journal lines")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l       domain.JournalLine
			account pgtype.UUID
			debit   money.Amount
			credit  money.Amount
		)
		if err := rows.Scan(&l.LineNo, &account, &l.ComponentCode, &debit, &credit, &l.Description); err != nil {
			return domain.JournalEntry{}, gerrors.Wrap(err, "scan journal line")
		}
		l.GLAccountID, l.Debit, l.Credit = asUUID(account), debit, credit
		j.Lines = append(j.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.JournalEntry{}, err
	}
	return j, nil
}
