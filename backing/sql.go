package backing

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// SQL is a Source over database/sql.
type SQL struct {
	DB      *sql.DB
	dialect string
}

// NewSQL wraps db. dialect selects placeholder rebinding.
func NewSQL(db *sql.DB, dialect string) *SQL {
	return &SQL{DB: db, dialect: dialect}
}

// OpenSQLite opens a modernc.org/sqlite database. An in-memory DSN
// (":memory:") is limited to one connection so every query sees the same
// database.
func OpenSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("backing: open sqlite: %w", err)
	}
	if dsn == ":memory:" || dsn == "" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backing: ping sqlite: %w", err)
	}
	return NewSQL(db, DialectSQLite), nil
}

func (s *SQL) Dialect() string { return s.dialect }

func (s *SQL) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.DB.QueryContext(ctx, Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec runs a statement (schema setup, fixtures).
func (s *SQL) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.DB.ExecContext(ctx, Rebind(s.dialect, query), args...)
	return err
}

func (s *SQL) Close() error { return s.DB.Close() }

var _ Source = (*SQL)(nil)
