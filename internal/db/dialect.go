//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"strings"
	"time"
)

// Dialect captures the few places where PostgreSQL and SQLite differ.
// Both engines accept $n placeholders, ON CONFLICT and RETURNING, so the
// warehouse SQL is otherwise shared.
type Dialect struct {
	Name string

	// IdentityColumn declares an auto-assigned integer primary key.
	IdentityColumn string

	// DateType and TimestampType are the column types for calendar
	// dates and points in time.
	DateType      string
	TimestampType string

	tableExistsSQL string
	dateAsText     bool
}

// sqliteTimeLayout is fixed width so that stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Postgres is the PostgreSQL dialect.
var Postgres = Dialect{
	Name:           "postgres",
	IdentityColumn: "BIGSERIAL PRIMARY KEY",
	DateType:       "DATE",
	TimestampType:  "TIMESTAMPTZ",
	tableExistsSQL: `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_schema = current_schema() AND table_name = $1
        )`,
}

// SQLite is the SQLite dialect. Dates and timestamps are stored as ISO
// 8601 text.
var SQLite = Dialect{
	Name:           "sqlite",
	IdentityColumn: "INTEGER PRIMARY KEY AUTOINCREMENT",
	DateType:       "TEXT",
	TimestampType:  "TEXT",
	tableExistsSQL: `
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type = 'table' AND name = $1
        )`,
	dateAsText: true,
}

// Render substitutes the {{identity}}, {{date}} and {{timestamp}}
// markers in a DDL template.
func (d Dialect) Render(ddl string) string {
	return strings.NewReplacer(
		"{{identity}}", d.IdentityColumn,
		"{{date}}", d.DateType,
		"{{timestamp}}", d.TimestampType,
	).Replace(ddl)
}

// DateValue converts a calendar date into a query argument.
func (d Dialect) DateValue(t time.Time) any {
	if d.dateAsText {
		return t.Format(time.DateOnly)
	}
	return t
}

// TimeValue converts a timestamp into a query argument.
func (d Dialect) TimeValue(t time.Time) any {
	if d.dateAsText {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t
}

// TableExists reports whether the named table exists.
func (d Dialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, d.tableExistsSQL, table).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ExecScript runs a multi-statement script one statement at a time.
// Statements are separated by semicolons; the script must not contain
// semicolons inside literals.
func ExecScript(ctx context.Context, q Querier, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ParseTime parses a timestamp scanned into a string. PostgreSQL values
// arrive in RFC 3339 form through database/sql and SQLite values are
// stored that way.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
