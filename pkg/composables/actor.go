package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/pkg/constants"
)

var ErrNoUserIDFound = errors.New("user id not found in context")

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.ActorKey, userID)
}

func UseUserID(ctx context.Context) (uuid.UUID, error) {
	userID, ok := ctx.Value(constants.ActorKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, ErrNoUserIDFound
	}
	return userID, nil
}
