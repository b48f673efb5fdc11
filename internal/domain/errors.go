package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrFormat          = errors.New("malformed value")
	ErrValidation      = errors.New("validation failed")
	ErrStore           = errors.New("store failure")
	ErrUniqueViolation = errors.New("unique constraint violated")

	ErrAlreadyLinked  = errors.New("email already linked")
	ErrQuotaExceeded  = errors.New("linked email quota exceeded")
	ErrEmailTaken     = errors.New("email taken")
	ErrPasswordReused = errors.New("password reused")

	ErrPrimaryEmail   = errors.New("primary email cannot be removed")
	ErrNotOwner       = errors.New("email belongs to another identity")
	ErrNotTemporary   = errors.New("identity is not temporary")
	ErrNotVerified    = errors.New("identity is not verified")
	ErrMergeSelf      = errors.New("cannot merge an identity into itself")
	ErrEmptyPassword  = errors.New("empty password")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrAlreadyPresent = errors.New("already exists")

	ErrAlreadyVerified  = errors.New("email already verified")
	ErrEmailNotVerified = errors.New("address is not a verified email of this identity")
	ErrTicketRejected   = errors.New("sso ticket rejected")
)

// FormatError reports a malformed handle or administrative input.
type FormatError struct {
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed value %q: %s", e.Value, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Validation codes, one per cause.
const (
	CodeAlreadyLinked  = "already_linked"
	CodeQuotaExceeded  = "max_emails"
	CodeEmailTaken     = "email_taken"
	CodePasswordReused = "password_taken"
)

var codeSentinels = map[string]error{
	CodeAlreadyLinked:  ErrAlreadyLinked,
	CodeQuotaExceeded:  ErrQuotaExceeded,
	CodeEmailTaken:     ErrEmailTaken,
	CodePasswordReused: ErrPasswordReused,
}

// ValidationError is a recoverable, per-field input problem raised before
// any write.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// ValidationErrors collects every failed check of a form-like operation so
// callers can report them all at once.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Add appends a failure.
func (v *ValidationErrors) Add(field, code, message string) {
	*v = append(*v, &ValidationError{Field: field, Code: code, Message: message})
}

// Err returns nil when nothing failed.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Has reports whether a failure with code was collected.
func (v ValidationErrors) Has(code string) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

// StoreError wraps a transaction or integrity failure. All writes of the
// failed operation have been rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
