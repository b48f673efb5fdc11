package service

import (
	"context"

	"uniauth/internal/dto"
)

// AdminService backs the operator CLI.
type AdminService interface {
	AddInstitution(ctx context.Context, name, serverURL string) (*dto.InstitutionResult, error)
	RemoveInstitution(ctx context.Context, slug string) (int64, error)
	MigrateSSO(ctx context.Context, slug string) (*dto.MigrationReport, error)
	MigrateCredentials(ctx context.Context) (*dto.MigrationReport, error)
	SweepPlaceholders(ctx context.Context, days int) (*dto.SweepResult, error)
}
