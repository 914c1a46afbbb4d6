//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunCounts are the per-run totals recorded in the run log.
type RunCounts struct {
	StoresExtracted   int64
	SalesExtracted    int64
	StoresReconciled  int64
	SalesReconciled   int64
	DimensionsCreated int64
	FactsInserted     int64
	SalesSkipped      int64
	ScreenFindings    int64
}

// RunRecord is one etl_run_log row.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Counts     RunCounts
	Error      string
}

// Duration returns how long the run took, or zero while it is running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunLog records ETL runs in etl_run_log.
type RunLog struct {
	dialect db.Dialect
	now     func() time.Time
}

// NewRunLog returns a RunLog for the given dialect.
func NewRunLog(d db.Dialect) *RunLog {
	return &RunLog{dialect: d, now: time.Now}
}

// Start inserts a running entry and returns its run id.
func (l *RunLog) Start(ctx context.Context, q db.Querier) (string, error) {
	runID := uuid.NewString()
	_, err := q.ExecContext(ctx, `
        INSERT INTO etl_run_log (run_id, started_at, status)
        VALUES ($1, $2, $3)`,
		runID, l.dialect.TimeValue(l.now()), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to create run log entry: %w", err)
	}
	return runID, nil
}

// Finish marks a run as succeeded.
func (l *RunLog) Finish(ctx context.Context, q db.Querier, runID string, c RunCounts) error {
	return l.finish(ctx, q, runID, StatusSucceeded, c, sql.NullString{})
}

// Fail marks a run as failed with the error that stopped it.
func (l *RunLog) Fail(ctx context.Context, q db.Querier, runID string, c RunCounts, cause error) error {
	msg := sql.NullString{}
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	return l.finish(ctx, q, runID, StatusFailed, c, msg)
}

func (l *RunLog) finish(ctx context.Context, q db.Querier, runID, status string, c RunCounts, msg sql.NullString) error {
	res, err := q.ExecContext(ctx, `
        UPDATE etl_run_log SET
            finished_at = $2,
            status = $3,
            stores_extracted = $4,
            sales_extracted = $5,
            stores_reconciled = $6,
            sales_reconciled = $7,
            dimensions_created = $8,
            facts_inserted = $9,
            sales_skipped = $10,
            screen_findings = $11,
            error = $12
        WHERE run_id = $1`,
		runID, l.dialect.TimeValue(l.now()), status,
		c.StoresExtracted, c.SalesExtracted, c.StoresReconciled, c.SalesReconciled,
		c.DimensionsCreated, c.FactsInserted, c.SalesSkipped, c.ScreenFindings, msg)
	if err != nil {
		return fmt.Errorf("failed to update run log entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found in run log", runID)
	}
	return nil
}

// History returns the most recent runs, newest first.
func (l *RunLog) History(ctx context.Context, q db.Querier, limit int) ([]RunRecord, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT run_id, started_at, finished_at, status,
               stores_extracted, sales_extracted, stores_reconciled, sales_reconciled,
               dimensions_created, facts_inserted, sales_skipped, screen_findings,
               error
        FROM etl_run_log
        ORDER BY started_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			r                   RunRecord
			started             string
			finished, errorText sql.NullString
		)
		c := &r.Counts
		err := rows.Scan(&r.RunID, &started, &finished, &r.Status,
			&c.StoresExtracted, &c.SalesExtracted, &c.StoresReconciled, &c.SalesReconciled,
			&c.DimensionsCreated, &c.FactsInserted, &c.SalesSkipped, &c.ScreenFindings,
			&errorText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log entry: %w", err)
		}

		if r.StartedAt, err = db.ParseTime(started); err != nil {
			return nil, fmt.Errorf("run %s has invalid start time: %w", r.RunID, err)
		}
		if finished.Valid {
			if r.FinishedAt, err = db.ParseTime(finished.String); err != nil {
				return nil, fmt.Errorf("run %s has invalid finish time: %w", r.RunID, err)
			}
		}
		r.Error = errorText.String
		records = append(records, r)
	}

	return records, rows.Err()
}
