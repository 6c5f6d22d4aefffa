package persistence

import (
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
)

// Migrations holds the goose migrations for every table this module reads
// or writes.
//
//go:embed schema/*.sql
var Migrations embed.FS

const MigrationsDir = "schema"

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDArray(ids []uuid.UUID) pgtype.FlatArray[uuid.UUID] {
	return pgtype.FlatArray[uuid.UUID](ids)
}

func pgNullableUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func pgNullableText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}

func pgNullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func pgDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: domain.Day(t), Valid: true}
}

func pgNullableDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgDate(*t)
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func nullableUUID(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	u := uuid.UUID(v.Bytes)
	return &u
}

func nullableText(v pgtype.Text) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func asTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func nullableTime(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func asDate(v pgtype.Date) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return domain.Day(v.Time)
}

func nullableDate(v pgtype.Date) *time.Time {
	if !v.Valid {
		return nil
	}
	t := domain.Day(v.Time)
	return &t
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
}

func marshalComponents(c domain.Components) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalComponents(raw []byte) (domain.Components, error) {
	var c domain.Components
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, err
	}
	return c, nil
}

// args collects positional parameters. Scope predicate arguments are added
// first so the clause a ScopeGate rendered keeps its placeholder numbers.
type args struct {
	values []any
}

func newArgs(scope []any) *args {
	a := &args{values: make([]any, 0, len(scope)+8)}
	a.values = append(a.values, scope...)
	return a
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}
