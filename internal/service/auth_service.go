package service

import (
	"context"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
)

// Resolver turns credentials into an identity. A nil identity with a nil
// error means the credentials did not authenticate; errors are reserved for
// store and collaborator failures.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, creds any) (*domain.Identity, error)
}

// AccountService runs the signup and account linking flows.
type AccountService interface {
	Signup(ctx context.Context, current *domain.Identity, email, password string) (*domain.Identity, *domain.LinkedEmail, error)
	LinkToProfile(ctx context.Context, unlinked, target *domain.Identity) (*dto.MergeResult, error)
	LinkFromProfile(ctx context.Context, current *domain.Identity, creds dto.SSOCredentials) (*dto.MergeResult, error)
	SetPassword(ctx context.Context, id domain.IdentityID, password string) error
}
