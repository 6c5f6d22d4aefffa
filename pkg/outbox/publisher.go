package outbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-ledger/pkg/repo"
)

type Publisher interface {
	Enqueue(ctx context.Context, tx repo.Tx, msg Message) (sequence int64, err error)
}

type publisher struct {
	table pgx.Identifier
	m     *metrics
}

// NewPublisher enqueues into table inside the caller's transaction, so the
// message commits or rolls back together with the state change it describes.
func NewPublisher(table pgx.Identifier) Publisher {
	return &publisher{table: table, m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, msg Message) (int64, error) {
	if msg.TenantID == uuid.Nil {
		return 0, invalidConfig("tenant_id is required")
	}
	if msg.EventID == uuid.Nil {
		return 0, invalidConfig("event_id is required")
	}
	if msg.Topic == "" {
		return 0, invalidConfig("topic is required")
	}
	if len(p.table) == 0 {
		return 0, invalidConfig("table is required")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (tenant_id, topic, payload, event_id, available_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		p.table.Sanitize(),
	)

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.TenantID, msg.Topic, msg.Payload, msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(TableLabel(p.table), msg.Topic).Inc()
	return sequence, nil
}

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}
