package dto

import "uniauth/internal/domain"

type VerificationResult struct {
	Email    *domain.LinkedEmail `json:"email"`
	Identity *domain.Identity    `json:"identity"`

	// Renamed is set when verification turned a temporary identity into a
	// standard one; PreviousHandle holds the handle it had before.
	Renamed        bool   `json:"renamed"`
	PreviousHandle string `json:"previousHandle,omitempty"`

	// Account is the institution account created from an unlinked handle.
	Account *domain.InstitutionAccount `json:"account,omitempty"`

	PendingDeleted int64 `json:"pendingDeleted"`
}
