// Package storetest opens throwaway sqlite-backed stores for tests.
package storetest

import (
	"testing"

	"uniauth/internal/store"
	"uniauth/pkg/db"

	"github.com/google/uuid"
)

// Open returns a migrated store on a private in-memory sqlite database that is
// closed when the test ends. The pool holds one connection so the in-memory
// database lives as long as the test.
func Open(t testing.TB) *store.Store {
	t.Helper()

	gdb, err := db.OpenGorm(db.Config{
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.AutoMigrate(gdb); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return store.New(gdb)
}
