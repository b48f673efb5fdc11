package store

import (
	"context"

	"gorm.io/gorm"
)

const DefaultHandleRetries = 5

type Store struct {
	DB *gorm.DB

	// HandleRetries bounds how many times a handle write is retried after
	// losing a uniqueness race.
	HandleRetries int
}

func New(db *gorm.DB) *Store { return &Store{DB: db, HandleRetries: DefaultHandleRetries} }

// WithTx runs fn in a transaction. Called on a Store that is already inside a
// transaction it opens a savepoint, so a failed fn only undoes its own writes.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, HandleRetries: s.HandleRetries})
	})
}

func (s *Store) retries() int {
	if s.HandleRetries <= 0 {
		return DefaultHandleRetries
	}
	return s.HandleRetries
}
