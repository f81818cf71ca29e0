package backing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pgx is a Source over a PostgreSQL connection pool.
type Pgx struct {
	Pool *pgxpool.Pool
}

// OpenPgx parses dsn, applies maxConns (when > 0), connects and pings.
func OpenPgx(ctx context.Context, dsn string, maxConns int32) (*Pgx, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("backing: parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("backing: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("backing: ping postgres: %w", err)
	}
	return &Pgx{Pool: pool}, nil
}

func (p *Pgx) Dialect() string { return DialectPostgres }

func (p *Pgx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.Pool.Query(ctx, Rebind(DialectPostgres, query), args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (p *Pgx) Close() error {
	p.Pool.Close()
	return nil
}

// pgxRows adapts pgx.Rows to Rows.
type pgxRows struct{ pgx.Rows }

func (r pgxRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

var _ Source = (*Pgx)(nil)
