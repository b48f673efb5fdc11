package service

import (
	"context"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
)

// Mailer delivers mail. Callers log send failures and carry on.
type Mailer interface {
	Send(ctx context.Context, to, subject, body, from string) error
}

// EmailLinkService manages linked emails and their verification.
type EmailLinkService interface {
	AddEmail(ctx context.Context, id domain.IdentityID, address string) (*domain.LinkedEmail, error)
	ResendVerification(ctx context.Context, id domain.IdentityID, emailID domain.EmailID) error
	RemoveEmail(ctx context.Context, id domain.IdentityID, emailID domain.EmailID) error
	ChangePrimaryEmail(ctx context.Context, id domain.IdentityID, address string) error
	Verify(ctx context.Context, emailID domain.EmailID, token string) (*dto.VerificationResult, error)
	CheckPasswordReuse(ctx context.Context, addresses []string, password string) error
}
