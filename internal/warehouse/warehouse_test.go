package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/testutil"
	"github.com/pgEdge/pgedge-salesdw/internal/transform"
)

func setupWarehouse(t *testing.T) *db.Conn {
	t.Helper()
	conn := testutil.OpenSQLite(t)
	require.NoError(t, CreateSchema(context.Background(), conn.DB, conn.Dialect))
	return conn
}

func rawStore(nr, storeType string) model.RawStore {
	return model.RawStore{
		Store: nr, StoreType: storeType, Assortment: "a", CompetitionDistance: "1270",
		CompetitionOpenSinceMonth: "9", CompetitionOpenSinceYear: "2008", Promo2: "0",
	}
}

func insertInto(t *testing.T, q db.Querier, table string, src Source, values []any) {
	t.Helper()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, src.columnList(), placeholders(1, len(src.Columns)))
	_, err := q.ExecContext(context.Background(), query, values...)
	require.NoError(t, err)
}

func stageCurrent(t *testing.T, conn *db.Conn, stores ...model.RawStore) {
	t.Helper()
	ctx := context.Background()
	w, err := NewStaging(conn.Dialect).CurrentWriter(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	for _, s := range stores {
		require.NoError(t, w.Write(ctx, s.Values()))
	}
	assert.Equal(t, int64(len(stores)), w.Rows())
}

func liveStoreNumbers(t *testing.T, q db.Querier) []string {
	t.Helper()
	rows, err := q.QueryContext(context.Background(), "SELECT store FROM sta_store ORDER BY store")
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func count(t *testing.T, q db.Querier, table string) int64 {
	t.Helper()
	n, err := CountRows(context.Background(), q, table)
	require.NoError(t, err)
	return n
}

func TestCreateSchemaIsRepeatable(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	require.NoError(t, CreateSchema(ctx, conn.DB, conn.Dialect))

	for _, table := range []string{
		"sta_snapshot_pointer", "sta_store", "sta_store_snap_0", "sta_store_snap_1",
		"sta_train", "sta_train_snap_0", "sta_train_snap_1",
		"d_competition", "d_promotion2", "d_store", "d_date",
		"d_school_holiday", "d_promotion", "d_open", "f_store_sales",
		"etl_run_log", "salesdw_metadata",
	} {
		exists, err := conn.Dialect.TableExists(ctx, conn.DB, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestSlotsAndRotate(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()
	staging := NewStaging(conn.Dialect)

	slots, err := staging.Slots(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, Slots{Current: 0, Previous: 1, Generation: 0}, slots)

	gen, err := staging.Rotate(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	slots, err = staging.Slots(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, Slots{Current: 1, Previous: 0, Generation: 1}, slots)

	gen, err = staging.Rotate(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	slots, err = staging.Slots(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, 0, slots.Current)

	// The sales pointer is independent.
	slots, err = staging.Slots(ctx, conn.DB, SalesSource)
	require.NoError(t, err)
	assert.Equal(t, Slots{Current: 0, Previous: 1, Generation: 0}, slots)
}

func TestRotateUnknownSource(t *testing.T) {
	conn := setupWarehouse(t)
	_, err := NewStaging(conn.Dialect).Rotate(context.Background(), conn.DB, StoreSource)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestClear(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()
	staging := NewStaging(conn.Dialect)

	stageCurrent(t, conn, rawStore("1", "a"))
	insertInto(t, conn.DB, "sta_store_snap_1", StoreSource, rawStore("2", "a").Values())
	insertInto(t, conn.DB, "sta_store", StoreSource, rawStore("3", "a").Values())

	require.NoError(t, staging.Clear(ctx, conn.DB, StoreSource))

	assert.Equal(t, int64(0), count(t, conn.DB, "sta_store"))
	assert.Equal(t, int64(0), count(t, conn.DB, "sta_store_snap_0"))
	assert.Equal(t, int64(1), count(t, conn.DB, "sta_store_snap_1"), "previous slot must survive")
}

func TestSnapshotWriterRejectsShortRows(t *testing.T) {
	conn := setupWarehouse(t)
	w, err := NewStaging(conn.Dialect).CurrentWriter(context.Background(), conn.DB, StoreSource)
	require.NoError(t, err)

	err = w.Write(context.Background(), []any{"1", "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 10")
}

func TestReconcile(t *testing.T) {
	r1, r2, r3 := rawStore("1", "a"), rawStore("2", "b"), rawStore("3", "c")
	r2Changed := rawStore("2", "d")

	tests := []struct {
		name     string
		current  []model.RawStore
		previous []model.RawStore
		want     []string
	}{
		{
			name:     "difference",
			current:  []model.RawStore{r1, r2, r3},
			previous: []model.RawStore{r2},
			want:     []string{"1", "3"},
		},
		{
			name:    "empty previous",
			current: []model.RawStore{r1, r2},
			want:    []string{"1", "2"},
		},
		{
			name:     "current subset of previous",
			current:  []model.RawStore{r1, r2},
			previous: []model.RawStore{r1, r2, r3},
			want:     nil,
		},
		{
			name:     "full row comparison",
			current:  []model.RawStore{r1, r2Changed},
			previous: []model.RawStore{r1, r2},
			want:     []string{"2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := setupWarehouse(t)
			ctx := context.Background()

			stageCurrent(t, conn, tt.current...)
			for _, p := range tt.previous {
				insertInto(t, conn.DB, "sta_store_snap_1", StoreSource, p.Values())
			}

			n, err := NewStaging(conn.Dialect).Reconcile(ctx, conn.DB, StoreSource)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)
			assert.Equal(t, tt.want, liveStoreNumbers(t, conn.DB))
		})
	}
}

func TestReconcileMissingPreviousTable(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	stageCurrent(t, conn, rawStore("1", "a"), rawStore("2", "a"))
	_, err := conn.DB.ExecContext(ctx, "DROP TABLE sta_store_snap_1")
	require.NoError(t, err)

	n, err := NewStaging(conn.Dialect).Reconcile(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"1", "2"}, liveStoreNumbers(t, conn.DB))
}

func TestReconcileReplacesLiveRows(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	insertInto(t, conn.DB, "sta_store", StoreSource, rawStore("9", "z").Values())
	stageCurrent(t, conn, rawStore("1", "a"))

	_, err := NewStaging(conn.Dialect).Reconcile(ctx, conn.DB, StoreSource)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, liveStoreNumbers(t, conn.DB))
}

func TestTransformedRowsRoundTrip(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		sale := model.RawSale{
			Store: fmt.Sprint(i), DayOfWeek: "1", Date: "2023-01-02", Sales: fmt.Sprint(i * 100),
			Customers: "10", Open: "1", Promo: "0", StateHoliday: "a", SchoolHoliday: "1",
		}
		insertInto(t, conn.DB, "sta_train", SalesSource, sale.Values())
	}

	var seen []int64
	err := EachRawSale(ctx, conn.DB, 2, func(r RawSaleRow) error {
		seen = append(seen, r.RowID)
		sale, err := transform.NormalizeSale(r.RawSale)
		if err != nil {
			return err
		}
		return UpdateSale(ctx, conn.DB, r.RowID, sale)
	})
	require.NoError(t, err)
	assert.Len(t, seen, 5)

	var got []SaleRow
	require.NoError(t, EachSale(ctx, conn.DB, 3, func(r SaleRow) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 5)

	first := got[0]
	assert.Equal(t, int64(1), first.StoreNr)
	assert.Equal(t, int64(100), first.Sales)
	assert.Equal(t, int64(10), first.Customers)
	assert.Equal(t, 1, first.SourceDayOfWeek)
	assert.True(t, first.IsOpen)
	assert.False(t, first.IsPromotion)
	assert.True(t, first.IsStateHoliday)
	assert.True(t, first.IsSchoolHoliday)
	assert.Equal(t, transform.Decompose(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)), first.Calendar)
	assert.Equal(t, int64(500), got[4].Sales)
}

func TestStoreRowsRoundTrip(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	raw := model.RawStore{
		Store: "2", StoreType: "a", Assortment: "a", CompetitionDistance: "570",
		CompetitionOpenSinceMonth: "11", CompetitionOpenSinceYear: "2007",
		Promo2: "1", Promo2SinceWeek: "13", Promo2SinceYear: "2010", PromoInterval: "Jan,Apr,Jul,Oct",
	}
	insertInto(t, conn.DB, "sta_store", StoreSource, raw.Values())
	insertInto(t, conn.DB, "sta_store", StoreSource, rawStore("3", "c").Values())

	require.NoError(t, EachRawStore(ctx, conn.DB, 10, func(r RawStoreRow) error {
		store, err := transform.NormalizeStore(r.RawStore)
		if err != nil {
			return err
		}
		return UpdateStore(ctx, conn.DB, r.RowID, store)
	}))

	var got []StoreRow
	require.NoError(t, EachStore(ctx, conn.DB, 1, func(r StoreRow) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)

	want, err := transform.NormalizeStore(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got[0].Store)
	assert.False(t, got[1].Promo2SinceWeekYear.Valid)
}

func TestEachStopsOnCallbackError(t *testing.T) {
	conn := setupWarehouse(t)
	for i := 0; i < 3; i++ {
		insertInto(t, conn.DB, "sta_store", StoreSource, rawStore(fmt.Sprint(i), "a").Values())
	}

	boom := errors.New("boom")
	calls := 0
	err := EachRawStore(context.Background(), conn.DB, 10, func(RawStoreRow) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestResolverIdempotent(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	resolver, err := NewResolver(conn.Dialect, 16)
	require.NoError(t, err)

	distance := sql.NullInt64{Int64: 570, Valid: true}
	since := sql.NullString{String: "2007-11", Valid: true}

	first, err := resolver.ResolveCompetition(ctx, conn.DB, distance, since)
	require.NoError(t, err)
	second, err := resolver.ResolveCompetition(ctx, conn.DB, distance, since)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Absent components must still deduplicate.
	absent1, err := resolver.ResolveCompetition(ctx, conn.DB, sql.NullInt64{}, sql.NullString{})
	require.NoError(t, err)
	absent2, err := resolver.ResolveCompetition(ctx, conn.DB, sql.NullInt64{}, sql.NullString{})
	require.NoError(t, err)
	assert.Equal(t, absent1, absent2)
	assert.NotEqual(t, first, absent1)

	assert.Equal(t, int64(2), count(t, conn.DB, "d_competition"))
	assert.Equal(t, Stats{Created: 2, Reused: 2}, resolver.Stats()[DimCompetition])

	// A fresh resolver has an empty cache and must find the existing row.
	fresh, err := NewResolver(conn.Dialect, 16)
	require.NoError(t, err)
	again, err := fresh.ResolveCompetition(ctx, conn.DB, distance, since)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, Stats{Created: 0, Reused: 1}, fresh.Stats()[DimCompetition])
	assert.Equal(t, int64(0), fresh.Created())
}

func TestResolverFlagsAndCalendar(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	resolver, err := NewResolver(conn.Dialect, 2)
	require.NoError(t, err)

	for _, flag := range []bool{true, false, true, false, true} {
		_, err := resolver.ResolveOpen(ctx, conn.DB, flag)
		require.NoError(t, err)
		_, err = resolver.ResolvePromotion(ctx, conn.DB, flag)
		require.NoError(t, err)
		_, err = resolver.ResolveSchoolHoliday(ctx, conn.DB, flag)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), count(t, conn.DB, "d_open"))
	assert.Equal(t, int64(2), count(t, conn.DB, "d_promotion"))
	assert.Equal(t, int64(2), count(t, conn.DB, "d_school_holiday"))

	cal := transform.Decompose(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))
	d1, err := resolver.ResolveDate(ctx, conn.DB, cal)
	require.NoError(t, err)
	d2, err := resolver.ResolveDate(ctx, conn.DB, cal)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	var day, dow int
	var stored string
	require.NoError(t, conn.DB.QueryRowContext(ctx,
		"SELECT calendar_date, day, day_of_week FROM d_date WHERE date_id = $1", d1).
		Scan(&stored, &day, &dow))
	assert.Equal(t, "2023-01-02", stored)
	assert.Equal(t, 2, day)
	assert.Equal(t, 0, dow)

	p1, err := resolver.ResolvePromotion2(ctx, conn.DB, false, sql.NullString{}, sql.NullString{})
	require.NoError(t, err)
	p2, err := resolver.ResolvePromotion2(ctx, conn.DB, true, sql.NullString{}, sql.NullString{})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestResolveStoreKeepsFirstDefinition(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	resolver, err := NewResolver(conn.Dialect, 16)
	require.NoError(t, err)

	compA, err := resolver.ResolveCompetition(ctx, conn.DB, sql.NullInt64{Int64: 100, Valid: true}, sql.NullString{})
	require.NoError(t, err)
	compB, err := resolver.ResolveCompetition(ctx, conn.DB, sql.NullInt64{Int64: 200, Valid: true}, sql.NullString{})
	require.NoError(t, err)
	promo, err := resolver.ResolvePromotion2(ctx, conn.DB, false, sql.NullString{}, sql.NullString{})
	require.NoError(t, err)

	id, err := resolver.ResolveStore(ctx, conn.DB,
		model.Store{StoreNr: 1, StoreType: "X", Assortment: "Y"}, compA, promo)
	require.NoError(t, err)

	// A later run sees different attributes for the same store number.
	later, err := NewResolver(conn.Dialect, 16)
	require.NoError(t, err)
	id2, err := later.ResolveStore(ctx, conn.DB,
		model.Store{StoreNr: 1, StoreType: "Z", Assortment: "W"}, compB, promo)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	var storeType, assortment string
	var compID int64
	require.NoError(t, conn.DB.QueryRowContext(ctx,
		"SELECT store_type, assortment, competition_id FROM d_store WHERE store_nr = $1", 1).
		Scan(&storeType, &assortment, &compID))
	assert.Equal(t, "X", storeType)
	assert.Equal(t, "Y", assortment)
	assert.Equal(t, compA, compID)
	assert.Equal(t, int64(1), count(t, conn.DB, "d_store"))
	assert.Equal(t, Stats{Reused: 1}, later.Stats()[DimStore])
}

func TestFacts(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	_, ok, err := LookupStoreID(ctx, conn.DB, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	resolver, err := NewResolver(conn.Dialect, 16)
	require.NoError(t, err)
	comp, err := resolver.ResolveCompetition(ctx, conn.DB, sql.NullInt64{}, sql.NullString{})
	require.NoError(t, err)
	promo2, err := resolver.ResolvePromotion2(ctx, conn.DB, false, sql.NullString{}, sql.NullString{})
	require.NoError(t, err)
	storeID, err := resolver.ResolveStore(ctx, conn.DB, model.Store{StoreNr: 1, StoreType: "a", Assortment: "a"}, comp, promo2)
	require.NoError(t, err)

	found, ok, err := LookupStoreID(ctx, conn.DB, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storeID, found)

	dateID, err := resolver.ResolveDate(ctx, conn.DB, transform.Decompose(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	openID, err := resolver.ResolveOpen(ctx, conn.DB, true)
	require.NoError(t, err)
	promoID, err := resolver.ResolvePromotion(ctx, conn.DB, false)
	require.NoError(t, err)
	holidayID, err := resolver.ResolveSchoolHoliday(ctx, conn.DB, false)
	require.NoError(t, err)

	fact := Fact{
		StoreID: storeID, DateID: dateID, OpenID: openID, PromotionID: promoID,
		SchoolHolidayID: holidayID, Sales: 100, Customers: 10, RunID: "run-1",
	}
	require.NoError(t, InsertFact(ctx, conn.DB, fact))
	require.NoError(t, InsertFact(ctx, conn.DB, fact))
	assert.Equal(t, int64(2), count(t, conn.DB, "f_store_sales"), "facts are not deduplicated")

	fact.StoreID = storeID + 100
	err = InsertFact(ctx, conn.DB, fact)
	require.Error(t, err, "foreign keys are enforced")
}

func TestNaturalKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{"absent", []any{sql.NullInt64{}, sql.NullString{}}, `\N|\N`},
		{"present", []any{sql.NullInt64{Int64: 570, Valid: true}, sql.NullString{String: "2007-11", Valid: true}}, "570|2007-11"},
		{"literal backslash N", []any{sql.NullString{String: `\N`, Valid: true}}, `\\N`},
		{"bar escaped", []any{"Jan|Apr"}, `Jan\|Apr`},
		{"flags and ints", []any{true, 3, int64(4)}, "true|3|4"},
		{"date", []any{time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)}, "2023-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NaturalKey(tt.parts...))
		})
	}

	assert.NotEqual(t,
		NaturalKey(sql.NullString{String: "a|b", Valid: true}, sql.NullString{String: "c", Valid: true}),
		NaturalKey(sql.NullString{String: "a", Valid: true}, sql.NullString{String: "b|c", Valid: true}))
}

func TestRunLog(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	log := NewRunLog(conn.Dialect)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	log.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := log.Start(ctx, conn.DB)
	require.NoError(t, err)
	counts := RunCounts{StoresExtracted: 2, SalesExtracted: 3, FactsInserted: 3, DimensionsCreated: 7}
	require.NoError(t, log.Finish(ctx, conn.DB, first, counts))

	second, err := log.Start(ctx, conn.DB)
	require.NoError(t, err)
	require.NoError(t, log.Fail(ctx, conn.DB, second, RunCounts{}, errors.New("failed to open train.csv")))

	third, err := log.Start(ctx, conn.DB)
	require.NoError(t, err)

	history, err := log.History(ctx, conn.DB, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, third, history[0].RunID)
	assert.Equal(t, StatusRunning, history[0].Status)
	assert.True(t, history[0].FinishedAt.IsZero())
	assert.Equal(t, time.Duration(0), history[0].Duration())

	assert.Equal(t, second, history[1].RunID)
	assert.Equal(t, StatusFailed, history[1].Status)
	assert.Equal(t, "failed to open train.csv", history[1].Error)

	assert.Equal(t, first, history[2].RunID)
	assert.Equal(t, StatusSucceeded, history[2].Status)
	assert.Equal(t, counts, history[2].Counts)
	assert.Equal(t, time.Minute, history[2].Duration())
	assert.True(t, base.Add(time.Minute).Equal(history[2].StartedAt))

	limited, err := log.History(ctx, conn.DB, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	err = log.Finish(ctx, conn.DB, "no-such-run", RunCounts{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"))
}
