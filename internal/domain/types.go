package domain

import "github.com/google/uuid"

type IdentityID = uuid.UUID
type ProfileID = uuid.UUID
type EmailID = uuid.UUID
type InstitutionID = uuid.UUID
type AccountID = uuid.UUID
type GroupID = uuid.UUID
type AuditID = uuid.UUID
