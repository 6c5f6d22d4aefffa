package outbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/eventbus"
)

type RelayOptions struct {
	PollInterval    time.Duration
	BatchSize       int
	LockTTL         time.Duration
	MaxAttempts     int
	MaxBackoff      time.Duration
	LastErrorMaxLen int

	Logger *logrus.Entry
}

func (o *RelayOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.LockTTL <= 0 {
		o.LockTTL = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 25
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.LastErrorMaxLen <= 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(l)
	}
}

// Relay polls the outbox table and hands committed messages to the bus.
type Relay struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
	bus   eventbus.EventBus
	opts  RelayOptions
	m     *metrics
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, bus eventbus.EventBus, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if bus == nil {
		return nil, invalidConfig("bus is required")
	}
	opts.setDefaults()
	return &Relay{pool: pool, table: table, bus: bus, opts: opts, m: getMetrics()}, nil
}

// Run blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

type claimed struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Topic    string
	Payload  []byte
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

// ProcessOnce claims one batch and dispatches it.
func (r *Relay) ProcessOnce(ctx context.Context) error {
	items, err := r.claim(ctx, time.Now())
	if err != nil {
		return err
	}
	table := TableLabel(r.table)
	for _, c := range items {
		start := time.Now()
		err := r.bus.Publish(ctx, eventbus.Event{
			EventID:  c.EventID,
			TenantID: c.TenantID,
			Topic:    c.Topic,
			Sequence: c.Sequence,
			Attempts: c.Attempts,
			Payload:  c.Payload,
		})
		if errors.Is(err, eventbus.ErrNoSubscribers) {
			err = nil
		}
		result := "success"
		if err != nil {
			result = "failure"
		}
		r.m.dispatchTotal.WithLabelValues(table, c.Topic, result).Inc()
		r.m.dispatchLatency.WithLabelValues(table, c.Topic, result).Observe(time.Since(start).Seconds())

		fields := logrus.Fields{"table": table, "topic": c.Topic, "event_id": c.EventID.String(), "attempts": c.Attempts}
		if err == nil {
			if ackErr := r.exec(ctx, `UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL WHERE id = $1`, c.ID); ackErr != nil {
				r.opts.Logger.WithError(ackErr).WithFields(fields).Warn("outbox: ack failed")
			}
			continue
		}

		lastErr := truncate(err.Error(), r.opts.LastErrorMaxLen)
		next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff))
		if c.Attempts >= r.opts.MaxAttempts {
			r.m.deadTotal.WithLabelValues(table, c.Topic).Inc()
			next = time.Now()
		}
		if nackErr := r.exec(ctx, `UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3 WHERE id = $1`, c.ID, lastErr, next); nackErr != nil {
			r.opts.Logger.WithError(nackErr).WithFields(fields).Warn("outbox: nack failed")
		}
	}
	return nil
}

func (r *Relay) claim(ctx context.Context, now time.Time) ([]claimed, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tableName := r.table.Sanitize()
	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT id, tenant_id, topic, payload, event_id, sequence, attempts
FROM %s
WHERE published_at IS NULL
  AND available_at <= $1
  AND attempts < $2
  AND (locked_at IS NULL OR locked_at < $3)
ORDER BY available_at, sequence
LIMIT $4
FOR UPDATE SKIP LOCKED`, tableName), now, r.opts.MaxAttempts, now.Add(-r.opts.LockTTL), r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}
	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}
	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, tableName), now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return nil, fmt.Errorf("outbox claim update: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Relay) exec(ctx context.Context, q string, args ...any) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(q, r.table.Sanitize()), args...)
	return err
}

// backoff is 1s * 2^(attempts-1), capped.
func backoff(attempts int, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Duration(math.Pow(2, float64(attempts-1)) * float64(time.Second))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s[:maxBytes])
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}
