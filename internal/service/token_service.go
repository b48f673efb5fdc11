package service

import "uniauth/internal/token"

// TokenIssuer mints verification tokens bound to a subject's state.
type TokenIssuer interface {
	Issue(s token.Subject) (string, error)
	Check(s token.Subject, tok string) bool
}
