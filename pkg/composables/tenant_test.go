package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseTenantID_MissingAndPresent(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenantIDFound)

	_, err = UseTenantID(WithTenantID(context.Background(), uuid.Nil))
	require.ErrorIs(t, err, ErrNoTenantIDFound)

	id := uuid.New()
	got, err := UseTenantID(WithTenantID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestUseTx_NoPoolNoTx(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	_, err = MustUseTx(context.Background())
	require.ErrorIs(t, err, ErrNoTx)
}

func TestUseLogger(t *testing.T) {
	require.Nil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New()).WithField("k", "v")
	got := UseLogger(WithLogger(context.Background(), entry))
	require.Same(t, entry, got)
}

func TestRequestID_RoundTrip(t *testing.T) {
	require.Empty(t, UseRequestID(context.Background()))
	require.Equal(t, "req-1", UseRequestID(WithRequestID(context.Background(), "req-1")))
}

func TestUserID_RoundTrip(t *testing.T) {
	_, err := UseUserID(context.Background())
	require.ErrorIs(t, err, ErrNoUserIDFound)

	id := uuid.New()
	got, err := UseUserID(WithUserID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}
