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
	"errors"
	"fmt"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
)

// Fact is one f_store_sales row.
type Fact struct {
	StoreID         int64
	DateID          int64
	OpenID          int64
	PromotionID     int64
	SchoolHolidayID int64
	Sales           int64
	Customers       int64
	RunID           string
}

// LookupStoreID returns the store dimension id for a store number. If
// several rows match, the most recently created one wins. ok is false
// when the store is unknown.
func LookupStoreID(ctx context.Context, q db.Querier, storeNr int64) (id int64, ok bool, err error) {
	err = q.QueryRowContext(ctx, `
        SELECT store_id FROM d_store
        WHERE store_nr = $1
        ORDER BY store_id DESC
        LIMIT 1
    `, storeNr).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up store %d: %w", storeNr, err)
	}
	return id, true, nil
}

// InsertFact appends a fact row. Facts are never deduplicated.
func InsertFact(ctx context.Context, q db.Querier, f Fact) error {
	_, err := q.ExecContext(ctx, `
        INSERT INTO f_store_sales (
            store_id, date_id, open_id, promotion_id, school_holiday_id,
            sales, customers, run_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.StoreID, f.DateID, f.OpenID, f.PromotionID, f.SchoolHolidayID,
		f.Sales, f.Customers, f.RunID)
	if err != nil {
		return fmt.Errorf("failed to insert fact for store %d: %w", f.StoreID, err)
	}
	return nil
}
