package fares

import (
	"context"
	"fmt"
	"strings"
)

// Execer runs a statement; backing.SQL implements it.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Schema creates the tables the record types read. Dates are stored as
// "YYYY-MM-DD HH:MM:SS" text; NULL disc/expire means open-ended.
const Schema = `
CREATE TABLE IF NOT EXISTS tax_rule (
	nation        TEXT    NOT NULL,
	tax_point_tag TEXT    NOT NULL,
	seq_no        INTEGER NOT NULL,
	tax_code      TEXT    NOT NULL,
	amount        TEXT    NOT NULL,
	currency      TEXT    NOT NULL,
	create_date   TEXT    NOT NULL,
	eff_date      TEXT    NOT NULL,
	disc_date     TEXT,
	expire_date   TEXT
);
CREATE INDEX IF NOT EXISTS tax_rule_key ON tax_rule (nation, tax_point_tag);

CREATE TABLE IF NOT EXISTS multi_transport (
	loc         TEXT NOT NULL,
	city        TEXT NOT NULL,
	carrier     TEXT NOT NULL DEFAULT '',
	travel_type TEXT NOT NULL DEFAULT '',
	create_date TEXT NOT NULL,
	eff_date    TEXT NOT NULL,
	disc_date   TEXT,
	expire_date TEXT
);
CREATE INDEX IF NOT EXISTS multi_transport_loc ON multi_transport (loc);
`

// CreateSchema runs Schema one statement at a time.
func CreateSchema(ctx context.Context, db Execer) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("fares: create schema: %w", err)
		}
	}
	return nil
}
