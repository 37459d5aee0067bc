package registry

import (
	"database/sql"
	"strings"
)

// DB exposes the internal *sql.DB for test helpers in registry_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailExecContaining makes every statement whose SQL contains substr
// fail with err, for transaction rollback tests.
func (s *Store) FailExecContaining(substr string, err error) {
	base := defaultStoreHooks()
	s.hooks.exec = func(db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, substr) {
			return nil, err
		}
		return base.exec(db, query, args...)
	}
}

// ResetHooks restores the default statement behavior.
func (s *Store) ResetHooks() {
	s.hooks = defaultStoreHooks()
}
