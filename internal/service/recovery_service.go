package service

import (
	"context"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"

	"github.com/google/uuid"
)

type RecoveryService interface {
	// Request never reveals whether the recovery email is known.
	Request(ctx context.Context, recoveryEmail string) error
	Confirm(ctx context.Context, r dto.RecoveryConfirmRequest) (*dto.RecoveryConfirmResponse, error)
	// UpdateRecoveryEmail sets the account's recovery address; an empty
	// address clears it.
	UpdateRecoveryEmail(ctx context.Context, userID uuid.UUID, recoveryEmail string) error
}
