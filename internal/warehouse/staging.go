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
	"fmt"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Source describes the staging tables of one extract.
type Source struct {
	Name    string
	Live    string
	Columns []string
}

// The two staged sources.
var (
	StoreSource = Source{Name: model.SourceStore, Live: "sta_store", Columns: model.StoreColumns}
	SalesSource = Source{Name: model.SourceSales, Live: "sta_train", Columns: model.SaleColumns}
)

// SlotTable returns the physical snapshot table for a slot (0 or 1).
func (s Source) SlotTable(slot int) string {
	return fmt.Sprintf("%s_snap_%d", s.Live, slot)
}

func (s Source) columnList() string {
	return strings.Join(s.Columns, ", ")
}

// Slots identifies the snapshot slots of a source for the current run.
type Slots struct {
	Current    int
	Previous   int
	Generation int64
}

// Staging manages the staging tables. Each source has a reconciled (live)
// table and two snapshot slot tables; a pointer row records which slot
// holds the previous snapshot, and the other slot is current.
type Staging struct {
	dialect db.Dialect
}

// NewStaging returns a Staging for the given dialect.
func NewStaging(d db.Dialect) *Staging {
	return &Staging{dialect: d}
}

// Slots returns the slot assignment of a source, creating the pointer row
// on first use. A new pointer marks slot 1 as previous, so the first run
// extracts into slot 0.
func (s *Staging) Slots(ctx context.Context, q db.Querier, src Source) (Slots, error) {
	_, err := q.ExecContext(ctx, `
        INSERT INTO sta_snapshot_pointer (source, previous_slot, generation)
        VALUES ($1, 1, 0)
        ON CONFLICT (source) DO NOTHING`, src.Name)
	if err != nil {
		return Slots{}, fmt.Errorf("failed to initialize snapshot pointer for %s: %w", src.Name, err)
	}

	var slots Slots
	err = q.QueryRowContext(ctx, `
        SELECT previous_slot, generation FROM sta_snapshot_pointer WHERE source = $1
    `, src.Name).Scan(&slots.Previous, &slots.Generation)
	if err != nil {
		return Slots{}, fmt.Errorf("failed to read snapshot pointer for %s: %w", src.Name, err)
	}
	slots.Current = 1 - slots.Previous

	return slots, nil
}

// Clear empties the reconciled table and the current snapshot slot.
func (s *Staging) Clear(ctx context.Context, q db.Querier, src Source) error {
	slots, err := s.Slots(ctx, q, src)
	if err != nil {
		return err
	}

	for _, table := range []string{src.Live, src.SlotTable(slots.Current)} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	logging.Debug().
		Str("source", src.Name).
		Int("current_slot", slots.Current).
		Msg("Cleared staging tables")

	return nil
}

// SnapshotWriter inserts raw rows into the current snapshot slot.
type SnapshotWriter struct {
	q      db.Querier
	src    Source
	insert string
	rows   int64
}

// CurrentWriter returns a writer for the current snapshot slot of src.
func (s *Staging) CurrentWriter(ctx context.Context, q db.Querier, src Source) (*SnapshotWriter, error) {
	slots, err := s.Slots(ctx, q, src)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{
		q:   q,
		src: src,
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			src.SlotTable(slots.Current), src.columnList(), placeholders(1, len(src.Columns))),
	}, nil
}

// Write inserts one raw row. values must follow the source column order.
func (w *SnapshotWriter) Write(ctx context.Context, values []any) error {
	if len(values) != len(w.src.Columns) {
		return fmt.Errorf("%s row has %d values, want %d", w.src.Name, len(values), len(w.src.Columns))
	}
	if _, err := w.q.ExecContext(ctx, w.insert, values...); err != nil {
		return fmt.Errorf("failed to stage %s row: %w", w.src.Name, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written.
func (w *SnapshotWriter) Rows() int64 {
	return w.rows
}

// Reconcile replaces the reconciled table of src with the rows of the
// current snapshot that do not appear in the previous snapshot, comparing
// every raw column. A missing previous table counts as empty. It returns
// the number of reconciled rows.
func (s *Staging) Reconcile(ctx context.Context, q db.Querier, src Source) (int64, error) {
	slots, err := s.Slots(ctx, q, src)
	if err != nil {
		return 0, err
	}

	current := src.SlotTable(slots.Current)
	previous := src.SlotTable(slots.Previous)
	cols := src.columnList()

	if _, err := q.ExecContext(ctx, "DELETE FROM "+src.Live); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", src.Live, err)
	}

	exists, err := s.dialect.TableExists(ctx, q, previous)
	if err != nil {
		return 0, fmt.Errorf("failed to check for %s: %w", previous, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", src.Live, cols, cols, current)
	if exists {
		query += fmt.Sprintf(" EXCEPT SELECT %s FROM %s", cols, previous)
	} else {
		logging.Debug().
			Str("source", src.Name).
			Str("table", previous).
			Msg("Previous snapshot missing, treating as empty")
	}

	res, err := q.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile %s: %w", src.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reconciled %s rows: %w", src.Name, err)
	}

	logging.Debug().
		Str("source", src.Name).
		Str("current", current).
		Str("previous", previous).
		Int64("rows", n).
		Msg("Reconciled snapshot")

	return n, nil
}

// Rotate makes the current snapshot the previous one by flipping the
// pointer. It returns the new generation.
func (s *Staging) Rotate(ctx context.Context, q db.Querier, src Source) (int64, error) {
	var generation int64
	err := q.QueryRowContext(ctx, `
        UPDATE sta_snapshot_pointer
        SET previous_slot = 1 - previous_slot,
            generation = generation + 1,
            rotated_at = $2
        WHERE source = $1
        RETURNING generation`,
		src.Name, s.dialect.TimeValue(time.Now())).Scan(&generation)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate %s snapshot: %w", src.Name, err)
	}

	logging.Debug().
		Str("source", src.Name).
		Int64("generation", generation).
		Msg("Rotated snapshot")

	return generation, nil
}

// CountRows returns the number of rows in a staging table.
func CountRows(ctx context.Context, q db.Querier, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// placeholders returns "$from, ..., $from+n-1".
func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}
