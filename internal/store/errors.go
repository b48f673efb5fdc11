package store

import (
	"errors"
	"strings"

	"uniauth/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrRecordNotFound = domain.ErrNotFound

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err came from a unique index. gorm
// translates driver errors when TranslateError is on; the pgconn and message
// checks cover connections opened without it.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, domain.ErrUniqueViolation) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
