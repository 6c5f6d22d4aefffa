package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-ledger/modules/payroll/services"
	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/outbox"
)

// OutboxTable receives payroll lifecycle events.
var OutboxTable = pgx.Identifier{"payroll_outbox"}

// OutboxEventSink writes lifecycle events into the outbox on the transaction
// bound to ctx.
type OutboxEventSink struct {
	publisher outbox.Publisher
}

func NewOutboxEventSink(p outbox.Publisher) *OutboxEventSink {
	if p == nil {
		p = outbox.NewPublisher(OutboxTable)
	}
	return &OutboxEventSink{publisher: p}
}

var _ services.EventSink = (*OutboxEventSink)(nil)

type eventEnvelope struct {
	EventID     uuid.UUID `json:"event_id"`
	Topic       string    `json:"topic"`
	TenantID    uuid.UUID `json:"tenant_id"`
	AggregateID uuid.UUID `json:"aggregate_id"`
	Data        any       `json:"data"`
}

func (s *OutboxEventSink) Enqueue(ctx context.Context, ev services.LifecycleEvent) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	eventID := uuid.New()
	payload, err := json.Marshal(eventEnvelope{
		EventID:     eventID,
		Topic:       ev.Topic,
		TenantID:    ev.TenantID,
		AggregateID: ev.AggregateID,
		Data:        ev.Payload,
	})
	if err != nil {
		return gerrors.Wrap(err, "encode lifecycle event")
	}
	if _, err := s.publisher.Enqueue(ctx, tx, outbox.Message{
		TenantID: ev.TenantID,
		Topic:    ev.Topic,
		EventID:  eventID,
		Payload:  payload,
	}); err != nil {
		return err
	}
	return nil
}
