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

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Reconciled rows are read a page at a time with keyset pagination on
// row_id. Each page is fully read and closed before the caller issues
// further statements on the same transaction.

// RawStoreRow is a reconciled store row as extracted.
type RawStoreRow struct {
	RowID int64
	model.RawStore
}

// StoreRow is a reconciled store row after transformation.
type StoreRow struct {
	RowID int64
	model.Store
}

// RawSaleRow is a reconciled sales row as extracted.
type RawSaleRow struct {
	RowID int64
	model.RawSale
}

// SaleRow is a reconciled sales row after transformation.
type SaleRow struct {
	RowID int64
	model.Sale
}

// RawStores returns up to limit reconciled store rows with row_id > after.
func RawStores(ctx context.Context, q db.Querier, after int64, limit int) ([]RawStoreRow, error) {
	query := fmt.Sprintf(
		"SELECT row_id, %s FROM sta_store WHERE row_id > $1 ORDER BY row_id LIMIT $2",
		StoreSource.columnList())

	return page(ctx, q, query, after, limit, func(rows *sql.Rows) (RawStoreRow, error) {
		var r RawStoreRow
		err := rows.Scan(append([]any{&r.RowID}, r.RawStore.Pointers()...)...)
		return r, err
	})
}

// RawSales returns up to limit reconciled sales rows with row_id > after.
func RawSales(ctx context.Context, q db.Querier, after int64, limit int) ([]RawSaleRow, error) {
	query := fmt.Sprintf(
		"SELECT row_id, %s FROM sta_train WHERE row_id > $1 ORDER BY row_id LIMIT $2",
		SalesSource.columnList())

	return page(ctx, q, query, after, limit, func(rows *sql.Rows) (RawSaleRow, error) {
		var r RawSaleRow
		err := rows.Scan(append([]any{&r.RowID}, r.RawSale.Pointers()...)...)
		return r, err
	})
}

// UpdateStore stores the normalized fields of a reconciled store row.
func UpdateStore(ctx context.Context, q db.Querier, rowID int64, s model.Store) error {
	_, err := q.ExecContext(ctx, `
        UPDATE sta_store SET
            nrm_store_nr = $2,
            nrm_store_type = $3,
            nrm_assortment = $4,
            nrm_competition_distance = $5,
            nrm_competition_open_since = $6,
            nrm_is_promotion2 = $7,
            nrm_promo2_since = $8,
            nrm_promo_interval = $9
        WHERE row_id = $1`,
		rowID, s.StoreNr, s.StoreType, s.Assortment, s.CompetitionDistance,
		s.CompetitionOpenSinceMonthYear, s.IsPromotion2, s.Promo2SinceWeekYear,
		s.PromoInterval)
	if err != nil {
		return fmt.Errorf("failed to update store row %d: %w", rowID, err)
	}
	return nil
}

// UpdateSale stores the normalized fields of a reconciled sales row.
func UpdateSale(ctx context.Context, q db.Querier, rowID int64, s model.Sale) error {
	c := s.Calendar
	_, err := q.ExecContext(ctx, `
        UPDATE sta_train SET
            nrm_store_nr = $2,
            nrm_source_day_of_week = $3,
            nrm_date = $4,
            nrm_day = $5,
            nrm_month = $6,
            nrm_year = $7,
            nrm_iso_week = $8,
            nrm_quarter = $9,
            nrm_day_of_week = $10,
            nrm_sales = $11,
            nrm_customers = $12,
            nrm_is_open = $13,
            nrm_is_promotion = $14,
            nrm_is_state_holiday = $15,
            nrm_is_school_holiday = $16
        WHERE row_id = $1`,
		rowID, s.StoreNr, s.SourceDayOfWeek, c.Date.Format(time.DateOnly),
		c.Day, c.Month, c.Year, c.ISOWeek, c.Quarter, c.DayOfWeek,
		s.Sales, s.Customers, s.IsOpen, s.IsPromotion, s.IsStateHoliday, s.IsSchoolHoliday)
	if err != nil {
		return fmt.Errorf("failed to update sales row %d: %w", rowID, err)
	}
	return nil
}

// Stores returns up to limit transformed store rows with row_id > after.
func Stores(ctx context.Context, q db.Querier, after int64, limit int) ([]StoreRow, error) {
	const query = `
        SELECT row_id, nrm_store_nr, nrm_store_type, nrm_assortment,
               nrm_competition_distance, nrm_competition_open_since,
               nrm_is_promotion2, nrm_promo2_since, nrm_promo_interval
        FROM sta_store
        WHERE row_id > $1
        ORDER BY row_id
        LIMIT $2`

	return page(ctx, q, query, after, limit, func(rows *sql.Rows) (StoreRow, error) {
		var r StoreRow
		err := rows.Scan(&r.RowID, &r.StoreNr, &r.StoreType, &r.Assortment,
			&r.CompetitionDistance, &r.CompetitionOpenSinceMonthYear,
			&r.IsPromotion2, &r.Promo2SinceWeekYear, &r.PromoInterval)
		return r, err
	})
}

// Sales returns up to limit transformed sales rows with row_id > after.
func Sales(ctx context.Context, q db.Querier, after int64, limit int) ([]SaleRow, error) {
	const query = `
        SELECT row_id, nrm_store_nr, nrm_source_day_of_week, nrm_date,
               nrm_day, nrm_month, nrm_year, nrm_iso_week, nrm_quarter,
               nrm_day_of_week, nrm_sales, nrm_customers, nrm_is_open,
               nrm_is_promotion, nrm_is_state_holiday, nrm_is_school_holiday
        FROM sta_train
        WHERE row_id > $1
        ORDER BY row_id
        LIMIT $2`

	return page(ctx, q, query, after, limit, func(rows *sql.Rows) (SaleRow, error) {
		var (
			r    SaleRow
			date string
		)
		c := &r.Calendar
		err := rows.Scan(&r.RowID, &r.StoreNr, &r.SourceDayOfWeek, &date,
			&c.Day, &c.Month, &c.Year, &c.ISOWeek, &c.Quarter, &c.DayOfWeek,
			&r.Sales, &r.Customers, &r.IsOpen, &r.IsPromotion,
			&r.IsStateHoliday, &r.IsSchoolHoliday)
		if err != nil {
			return r, err
		}
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return r, fmt.Errorf("row %d has invalid date %q: %w", r.RowID, date, err)
		}
		c.Date = parsed
		return r, nil
	})
}

func page[T any](ctx context.Context, q db.Querier, query string, after int64, limit int, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// EachStore calls fn for every reconciled store row in row_id order.
func EachStore(ctx context.Context, q db.Querier, batch int, fn func(StoreRow) error) error {
	return each(ctx, q, batch, Stores, func(r StoreRow) int64 { return r.RowID }, fn)
}

// EachSale calls fn for every reconciled sales row in row_id order.
func EachSale(ctx context.Context, q db.Querier, batch int, fn func(SaleRow) error) error {
	return each(ctx, q, batch, Sales, func(r SaleRow) int64 { return r.RowID }, fn)
}

// EachRawStore calls fn for every reconciled raw store row in row_id order.
func EachRawStore(ctx context.Context, q db.Querier, batch int, fn func(RawStoreRow) error) error {
	return each(ctx, q, batch, RawStores, func(r RawStoreRow) int64 { return r.RowID }, fn)
}

// EachRawSale calls fn for every reconciled raw sales row in row_id order.
func EachRawSale(ctx context.Context, q db.Querier, batch int, fn func(RawSaleRow) error) error {
	return each(ctx, q, batch, RawSales, func(r RawSaleRow) int64 { return r.RowID }, fn)
}

func each[T any](
	ctx context.Context,
	q db.Querier,
	batch int,
	fetch func(context.Context, db.Querier, int64, int) ([]T, error),
	key func(T) int64,
	fn func(T) error,
) error {
	var after int64
	for {
		items, err := fetch(ctx, q, after, batch)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
			after = key(item)
		}
		if len(items) < batch {
			return nil
		}
	}
}
