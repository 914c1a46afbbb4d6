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
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Dimension names.
const (
	DimCompetition   = "competition"
	DimPromotion2    = "promotion2"
	DimStore         = "store"
	DimDate          = "date"
	DimSchoolHoliday = "school_holiday"
	DimPromotion     = "promotion"
	DimOpen          = "open"
)

// Dimensions lists the dimensions in resolution order.
var Dimensions = []string{
	DimCompetition, DimPromotion2, DimStore,
	DimDate, DimSchoolHoliday, DimPromotion, DimOpen,
}

// dimension describes how a dimension table is keyed.
type dimension struct {
	name      string
	table     string
	idColumn  string
	keyColumn string
	columns   []string
}

var (
	competitionDim = dimension{
		name: DimCompetition, table: "d_competition", idColumn: "competition_id",
		keyColumn: "natural_key", columns: []string{"distance", "open_since_month_year", "natural_key"},
	}
	promotion2Dim = dimension{
		name: DimPromotion2, table: "d_promotion2", idColumn: "promotion2_id",
		keyColumn: "natural_key", columns: []string{"is_promotion", "since_week_year", "promo_interval", "natural_key"},
	}
	storeDim = dimension{
		name: DimStore, table: "d_store", idColumn: "store_id",
		keyColumn: "store_nr", columns: []string{"store_nr", "store_type", "assortment", "competition_id", "promotion2_id"},
	}
	dateDim = dimension{
		name: DimDate, table: "d_date", idColumn: "date_id",
		keyColumn: "natural_key",
		columns:   []string{"calendar_date", "day", "month", "year", "iso_week", "quarter", "day_of_week", "natural_key"},
	}
	schoolHolidayDim = dimension{
		name: DimSchoolHoliday, table: "d_school_holiday", idColumn: "school_holiday_id",
		keyColumn: "is_school_holiday", columns: []string{"is_school_holiday"},
	}
	promotionDim = dimension{
		name: DimPromotion, table: "d_promotion", idColumn: "promotion_id",
		keyColumn: "is_promotion", columns: []string{"is_promotion"},
	}
	openDim = dimension{
		name: DimOpen, table: "d_open", idColumn: "open_id",
		keyColumn: "is_open", columns: []string{"is_open"},
	}
)

func (d dimension) insertSQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING %s",
		d.table, strings.Join(d.columns, ", "), placeholders(1, len(d.columns)),
		d.keyColumn, d.idColumn)
}

func (d dimension) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", d.idColumn, d.table, d.keyColumn)
}

// Stats counts resolutions of one dimension.
type Stats struct {
	Created int64
	Reused  int64
}

type cacheKey struct {
	dim string
	key string
}

// Resolver finds or creates dimension rows by natural key. Creation is an
// insert that does nothing on a unique-key conflict, followed by a lookup
// when the row already existed, so concurrent writers cannot create
// duplicates. Resolved ids are cached for the lifetime of the Resolver,
// which should be one run.
type Resolver struct {
	dialect db.Dialect
	cache   *lru.Cache[cacheKey, int64]
	stats   map[string]*Stats
}

// NewResolver returns a Resolver caching up to cacheSize ids.
func NewResolver(d db.Dialect, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[cacheKey, int64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}

	stats := make(map[string]*Stats, len(Dimensions))
	for _, name := range Dimensions {
		stats[name] = &Stats{}
	}

	return &Resolver{dialect: d, cache: cache, stats: stats}, nil
}

// Stats returns the created and reused counts per dimension.
func (r *Resolver) Stats() map[string]Stats {
	out := make(map[string]Stats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}

// Created returns the total number of dimension rows created.
func (r *Resolver) Created() int64 {
	var n int64
	for _, s := range r.stats {
		n += s.Created
	}
	return n
}

// findOrCreate returns the id of the row whose key column equals key,
// inserting values when no such row exists.
func (r *Resolver) findOrCreate(ctx context.Context, q db.Querier, dim dimension, key any, values ...any) (id int64, created bool, err error) {
	ck := cacheKey{dim: dim.name, key: fmt.Sprint(key)}
	if id, ok := r.cache.Get(ck); ok {
		r.stats[dim.name].Reused++
		return id, false, nil
	}

	err = q.QueryRowContext(ctx, dim.insertSQL(), values...).Scan(&id)
	switch {
	case err == nil:
		created = true
		r.stats[dim.name].Created++
	case errors.Is(err, sql.ErrNoRows):
		if err := q.QueryRowContext(ctx, dim.selectSQL(), key).Scan(&id); err != nil {
			return 0, false, fmt.Errorf("failed to find %s dimension row: %w", dim.name, err)
		}
		r.stats[dim.name].Reused++
	default:
		return 0, false, fmt.Errorf("failed to insert %s dimension row: %w", dim.name, err)
	}

	r.cache.Add(ck, id)
	return id, created, nil
}

// ResolveCompetition returns the competition row for the pair.
func (r *Resolver) ResolveCompetition(ctx context.Context, q db.Querier, distance sql.NullInt64, openSince sql.NullString) (int64, error) {
	key := NaturalKey(distance, openSince)
	id, _, err := r.findOrCreate(ctx, q, competitionDim, key, distance, openSince, key)
	return id, err
}

// ResolvePromotion2 returns the continuous promotion row for the triple.
func (r *Resolver) ResolvePromotion2(ctx context.Context, q db.Querier, isPromotion bool, sinceWeekYear, interval sql.NullString) (int64, error) {
	key := NaturalKey(isPromotion, sinceWeekYear, interval)
	id, _, err := r.findOrCreate(ctx, q, promotion2Dim, key, isPromotion, sinceWeekYear, interval, key)
	return id, err
}

// ResolveStore returns the store row for s.StoreNr, creating it with the
// given links when the store is new. An existing store keeps the
// attributes and links it was created with.
func (r *Resolver) ResolveStore(ctx context.Context, q db.Querier, s model.Store, competitionID, promotion2ID int64) (int64, error) {
	id, created, err := r.findOrCreate(ctx, q, storeDim, s.StoreNr,
		s.StoreNr, s.StoreType, s.Assortment, competitionID, promotion2ID)
	if err != nil {
		return 0, err
	}
	if !created {
		if err := r.reportStoreDrift(ctx, q, id, s, competitionID, promotion2ID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *Resolver) reportStoreDrift(ctx context.Context, q db.Querier, id int64, s model.Store, competitionID, promotion2ID int64) error {
	var (
		storeType, assortment string
		compID, promoID       int64
	)
	err := q.QueryRowContext(ctx, `
        SELECT store_type, assortment, competition_id, promotion2_id
        FROM d_store WHERE store_id = $1
    `, id).Scan(&storeType, &assortment, &compID, &promoID)
	if err != nil {
		return fmt.Errorf("failed to read store %d: %w", s.StoreNr, err)
	}

	if storeType != s.StoreType || assortment != s.Assortment ||
		compID != competitionID || promoID != promotion2ID {
		logging.Debug().
			Int64("store", s.StoreNr).
			Str("store_type", storeType).
			Str("new_store_type", s.StoreType).
			Str("assortment", assortment).
			Str("new_assortment", s.Assortment).
			Int64("competition_id", compID).
			Int64("new_competition_id", competitionID).
			Int64("promotion2_id", promoID).
			Int64("new_promotion2_id", promotion2ID).
			Msg("Store already known, keeping existing attributes")
	}
	return nil
}

// ResolveDate returns the calendar row for c.
func (r *Resolver) ResolveDate(ctx context.Context, q db.Querier, c model.Calendar) (int64, error) {
	key := NaturalKey(c.Date, c.Day, c.Month, c.Year, c.ISOWeek, c.Quarter, c.DayOfWeek)
	id, _, err := r.findOrCreate(ctx, q, dateDim, key,
		r.dialect.DateValue(c.Date), c.Day, c.Month, c.Year, c.ISOWeek, c.Quarter, c.DayOfWeek, key)
	return id, err
}

// ResolveSchoolHoliday returns the school holiday flag row.
func (r *Resolver) ResolveSchoolHoliday(ctx context.Context, q db.Querier, flag bool) (int64, error) {
	id, _, err := r.findOrCreate(ctx, q, schoolHolidayDim, flag, flag)
	return id, err
}

// ResolvePromotion returns the promotion flag row.
func (r *Resolver) ResolvePromotion(ctx context.Context, q db.Querier, flag bool) (int64, error) {
	id, _, err := r.findOrCreate(ctx, q, promotionDim, flag, flag)
	return id, err
}

// ResolveOpen returns the open flag row.
func (r *Resolver) ResolveOpen(ctx context.Context, q db.Querier, flag bool) (int64, error) {
	id, _, err := r.findOrCreate(ctx, q, openDim, flag, flag)
	return id, err
}

// NaturalKey encodes a tuple as canonical text: components joined by "|",
// absent values written as \N, and backslashes and bars escaped.
func NaturalKey(parts ...any) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case sql.NullString:
			if !v.Valid {
				out[i] = `\N`
				continue
			}
			out[i] = escapeKey(v.String)
		case sql.NullInt64:
			if !v.Valid {
				out[i] = `\N`
				continue
			}
			out[i] = strconv.FormatInt(v.Int64, 10)
		case string:
			out[i] = escapeKey(v)
		case bool:
			out[i] = strconv.FormatBool(v)
		case int:
			out[i] = strconv.Itoa(v)
		case int64:
			out[i] = strconv.FormatInt(v, 10)
		case time.Time:
			out[i] = v.Format(time.DateOnly)
		default:
			out[i] = escapeKey(fmt.Sprint(v))
		}
	}
	return strings.Join(out, "|")
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

func escapeKey(s string) string {
	return keyEscaper.Replace(s)
}
