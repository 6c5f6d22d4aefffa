package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	require.Equal(t, time.Duration(0), backoff(0, time.Minute))
	require.Equal(t, time.Second, backoff(1, time.Minute))
	require.Equal(t, 4*time.Second, backoff(3, time.Minute))
	require.Equal(t, time.Minute, backoff(30, time.Minute))
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 10))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "a", truncate("aé", 2))
}

func TestNewRelay_ValidatesConfig(t *testing.T) {
	_, err := NewRelay(nil, pgx.Identifier{"payroll_outbox"}, nil, RelayOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPublisher_ValidatesMessage(t *testing.T) {
	p := NewPublisher(pgx.Identifier{"payroll_outbox"})
	_, err := p.Enqueue(context.Background(), nil, Message{Topic: "x", EventID: uuid.New()})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = p.Enqueue(context.Background(), nil, Message{TenantID: uuid.New(), EventID: uuid.New()})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, "public.payroll_outbox", TableLabel(pgx.Identifier{"public", "payroll_outbox"}))
}
