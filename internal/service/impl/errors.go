package impl

import (
	"errors"
	"net/mail"
	"strings"

	"uniauth/internal/domain"
)

var ErrUnsupportedCredentials = errors.New("unsupported credentials")

// passthrough are the errors callers are expected to branch on; they are
// returned unwrapped.
var passthrough = []error{
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrFormat,
	domain.ErrStore,
	domain.ErrInvalidToken,
	domain.ErrNotOwner,
	domain.ErrPrimaryEmail,
	domain.ErrNotTemporary,
	domain.ErrNotVerified,
	domain.ErrMergeSelf,
	domain.ErrEmptyPassword,
	domain.ErrAlreadyPresent,
	domain.ErrAlreadyVerified,
	domain.ErrEmailNotVerified,
	domain.ErrTicketRejected,
}

// storeErr wraps failures outside the domain taxonomy in a StoreError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	return &domain.StoreError{Op: op, Err: err}
}

// normalizeAddress trims and checks an email address. Only a bare address is
// accepted, not a display-name form.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return "", &domain.FormatError{Value: address, Reason: "not an email address"}
	}
	return address, nil
}
