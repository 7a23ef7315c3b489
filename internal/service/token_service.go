package service

import (
	"context"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
)

// AccessIdentity is the decoded, verified content of an access token.
type AccessIdentity struct {
	UserID   domain.UserID
	Roles    []string
	Verified bool
	// FamilyID references the refresh-token family backing this access token.
	// Nil for legacy tokens minted without session tracking; validation is
	// skipped entirely for those.
	FamilyID *domain.FamilyID
}

type TokenService interface {
	Issue(ctx context.Context, user *domain.User, ip, ua string) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	VerifyAccess(ctx context.Context, accessToken string) (*AccessIdentity, error)
	RevokeFamily(ctx context.Context, userID domain.UserID, familyID domain.FamilyID) error
	RevokeAllForUser(ctx context.Context, userID domain.UserID) (int64, error)
}
