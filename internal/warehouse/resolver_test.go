package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
)

func newMockResolver(t *testing.T) (*Resolver, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	resolver, err := NewResolver(db.Postgres, 8)
	require.NoError(t, err)
	return resolver, sqlDB, mock
}

func TestFindOrCreateFallsBackToLookup(t *testing.T) {
	resolver, sqlDB, mock := newMockResolver(t)
	ctx := context.Background()
	key := `\N|\N`

	// The insert hits the unique key and returns nothing.
	mock.ExpectQuery(competitionDim.insertSQL()).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), key).
		WillReturnRows(sqlmock.NewRows([]string{"competition_id"}))
	mock.ExpectQuery(competitionDim.selectSQL()).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"competition_id"}).AddRow(42))

	id, err := resolver.ResolveCompetition(ctx, sqlDB, sql.NullInt64{}, sql.NullString{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	// Second resolution is served from the cache without touching the database.
	id, err = resolver.ResolveCompetition(ctx, sqlDB, sql.NullInt64{}, sql.NullString{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	assert.Equal(t, Stats{Reused: 2}, resolver.Stats()[DimCompetition])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateInsertError(t *testing.T) {
	resolver, sqlDB, mock := newMockResolver(t)

	mock.ExpectQuery(openDim.insertSQL()).
		WithArgs(true).
		WillReturnError(errors.New("connection reset"))

	_, err := resolver.ResolveOpen(context.Background(), sqlDB, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert open dimension row")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int64(0), resolver.Created())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateLookupError(t *testing.T) {
	resolver, sqlDB, mock := newMockResolver(t)

	mock.ExpectQuery(promotionDim.insertSQL()).
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"promotion_id"}))
	mock.ExpectQuery(promotionDim.selectSQL()).
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"promotion_id"}))

	_, err := resolver.ResolvePromotion(context.Background(), sqlDB, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO d_open (is_open) VALUES ($1) ON CONFLICT (is_open) DO NOTHING RETURNING open_id",
		openDim.insertSQL())
	assert.Equal(t, "SELECT store_id FROM d_store WHERE store_nr = $1", storeDim.selectSQL())
}
