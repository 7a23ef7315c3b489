package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type SessionID = uuid.UUID
type TokenID = uuid.UUID
type FamilyID = uuid.UUID
type CredentialID = uuid.UUID
