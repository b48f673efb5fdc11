package dto

import (
	"uniauth/internal/domain"

	"github.com/google/uuid"
)

type MergeResult struct {
	Primary *domain.Identity    `json:"primary"`
	Deleted []domain.IdentityID `json:"deleted"`

	// Nodes lists every object the merge removed, aliases and the related
	// objects fused or discarded on the way.
	Nodes []DeletedNode `json:"nodes"`

	// Moved counts rows migrated per relation name.
	Moved map[string]int64 `json:"moved"`
}

type DeletedNode struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}
