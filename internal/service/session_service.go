package service

import (
	"context"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
)

type SessionService interface {
	List(ctx context.Context, userID domain.UserID) (*dto.SessionListResponse, error)
	Revoke(ctx context.Context, userID domain.UserID, sessionID domain.SessionID) error
	RevokeAll(ctx context.Context, userID domain.UserID) (int64, error)

	// Validate runs the cache-first session check for an authenticated
	// request. The soft-fail policy applies: a missing record logs and
	// returns nil rather than rejecting the request.
	Validate(ctx context.Context, userID domain.UserID, familyID domain.FamilyID) error
}
