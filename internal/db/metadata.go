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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

const metadataTable = "salesdw_metadata"

// Metadata keys.
const (
	KeySchemaVersion    = "schema_version"
	KeyAppVersion       = "version"
	KeyInitializedAt    = "initialized_at"
	KeyLastSuccessRunID = "last_success_run_id"
	KeyLastSuccessAt    = "last_success_at"
)

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS salesdw_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

const upsertMetadataSQL = `
INSERT INTO salesdw_metadata (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

// EnsureMetadata creates the metadata table and records the first
// initialization time. Later calls leave initialized_at untouched.
func EnsureMetadata(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err := q.ExecContext(ctx, `
        INSERT INTO salesdw_metadata (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO NOTHING`,
		KeyInitializedAt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save metadata %s: %w", KeyInitializedAt, err)
	}
	return nil
}

// SaveRunMetadata records the schema version, build version and the last
// successful run.
func SaveRunMetadata(ctx context.Context, q Querier, runID string) error {
	metadata := map[string]string{
		KeySchemaVersion:    version.SchemaVersion,
		KeyAppVersion:       version.Short(),
		KeyLastSuccessRunID: runID,
		KeyLastSuccessAt:    time.Now().UTC().Format(time.RFC3339),
	}

	for key, value := range metadata {
		if _, err := q.ExecContext(ctx, upsertMetadataSQL, key, value); err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().
		Str("run_id", runID).
		Str("schema_version", version.SchemaVersion).
		Msg("Saved metadata")

	return nil
}

// GetMetadataValue retrieves a single metadata value by key. A missing
// key yields an empty string and no error.
func GetMetadataValue(ctx context.Context, q Querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `
        SELECT value FROM salesdw_metadata WHERE key = $1
    `, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, q Querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM salesdw_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, q Querier, d Dialect) (bool, error) {
	return d.TableExists(ctx, q, metadataTable)
}
