// Package backing adapts relational backing stores to record store loaders.
//
// A Source runs a query and yields rows; a Scanner turns one row into a
// record. KeyLoader builds a cache.Loader from a per-key query, and Stream
// walks a whole table in key order for warm loads. Both discard everything
// already scanned when a row or the cursor fails, so a failed load never
// leaks a partial result.
package backing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/IvanBrykalov/farecache/cache"
)

// Row is the scanning surface shared by database/sql and pgx rows.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a forward-only cursor.
type Rows interface {
	Row
	Next() bool
	Err() error
	Close() error
}

// Source executes read queries against one backing store. Queries are
// written with '?' placeholders and rebound to the source's dialect.
type Source interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// Dialect names the placeholder style ("sqlite", "postgres").
	Dialect() string
}

// Scanner decodes the current row into a record.
type Scanner[R any] func(Row) (R, error)

// KeyQuery describes how one record type is fetched by key.
type KeyQuery[K comparable] struct {
	// SQL selects every record of one key, '?' placeholders.
	SQL string
	// Args returns the placeholder values for k.
	Args func(k K) []any
}

// ErrNoArgs is returned when a KeyQuery has no Args function.
var ErrNoArgs = errors.New("backing: key query without Args")

// KeyLoader returns a cache.Loader running q for each miss.
func KeyLoader[K comparable, R any](src Source, q KeyQuery[K], scan Scanner[R]) cache.Loader[K, R] {
	return func(ctx context.Context, k K) ([]R, error) {
		if q.Args == nil {
			return nil, ErrNoArgs
		}
		var out []R
		_, err := Stream(ctx, src, q.SQL, q.Args(k), scan, func(r R) error {
			out = append(out, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Stream runs query and calls fn for every scanned row, in order. It stops
// at the first error from the cursor, the scanner, or fn and returns it with
// the number of rows handed to fn so far.
func Stream[R any](ctx context.Context, src Source, query string, args []any, scan Scanner[R], fn func(R) error) (n int, err error) {
	rows, err := src.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("backing: query: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("backing: close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return n, fmt.Errorf("backing: scan row %d: %w", n, err)
		}
		if err := fn(r); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("backing: rows: %w", err)
	}
	return n, nil
}

// Rebind rewrites '?' placeholders for dialect. Postgres uses $1..$n;
// everything else is returned unchanged. Quoted literals are not inspected.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)
