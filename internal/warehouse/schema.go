//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse implements the staging area, the dimension resolver,
// the fact table and the run log of the sales warehouse.
package warehouse

import (
	"context"
	"fmt"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// Schema SQL for the staging area. Raw columns hold source text so that
// the delta compares source rows exactly. Columns prefixed nrm_ are
// written by the transform stage.
const stagingSchemaSQL = `
CREATE TABLE IF NOT EXISTS sta_snapshot_pointer (
    source        TEXT PRIMARY KEY,
    previous_slot INTEGER NOT NULL,
    generation    BIGINT NOT NULL DEFAULT 0,
    rotated_at    {{timestamp}}
);

CREATE TABLE IF NOT EXISTS sta_store (
    row_id                       {{identity}},
    store                        TEXT NOT NULL,
    store_type                   TEXT NOT NULL,
    assortment                   TEXT NOT NULL,
    competition_distance         TEXT NOT NULL,
    competition_open_since_month TEXT NOT NULL,
    competition_open_since_year  TEXT NOT NULL,
    promo2                       TEXT NOT NULL,
    promo2_since_week            TEXT NOT NULL,
    promo2_since_year            TEXT NOT NULL,
    promo_interval               TEXT NOT NULL,
    nrm_store_nr                 BIGINT,
    nrm_store_type               TEXT,
    nrm_assortment               TEXT,
    nrm_competition_distance     BIGINT,
    nrm_competition_open_since   TEXT,
    nrm_is_promotion2            BOOLEAN,
    nrm_promo2_since             TEXT,
    nrm_promo_interval           TEXT
);

CREATE TABLE IF NOT EXISTS sta_store_snap_0 (
    store                        TEXT NOT NULL,
    store_type                   TEXT NOT NULL,
    assortment                   TEXT NOT NULL,
    competition_distance         TEXT NOT NULL,
    competition_open_since_month TEXT NOT NULL,
    competition_open_since_year  TEXT NOT NULL,
    promo2                       TEXT NOT NULL,
    promo2_since_week            TEXT NOT NULL,
    promo2_since_year            TEXT NOT NULL,
    promo_interval               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sta_store_snap_1 (
    store                        TEXT NOT NULL,
    store_type                   TEXT NOT NULL,
    assortment                   TEXT NOT NULL,
    competition_distance         TEXT NOT NULL,
    competition_open_since_month TEXT NOT NULL,
    competition_open_since_year  TEXT NOT NULL,
    promo2                       TEXT NOT NULL,
    promo2_since_week            TEXT NOT NULL,
    promo2_since_year            TEXT NOT NULL,
    promo_interval               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sta_train (
    row_id                 {{identity}},
    store                  TEXT NOT NULL,
    day_of_week            TEXT NOT NULL,
    sale_date              TEXT NOT NULL,
    sales                  TEXT NOT NULL,
    customers              TEXT NOT NULL,
    open_flag              TEXT NOT NULL,
    promo_flag             TEXT NOT NULL,
    state_holiday          TEXT NOT NULL,
    school_holiday         TEXT NOT NULL,
    nrm_store_nr           BIGINT,
    nrm_source_day_of_week INTEGER,
    nrm_date               TEXT,
    nrm_day                INTEGER,
    nrm_month              INTEGER,
    nrm_year               INTEGER,
    nrm_iso_week           INTEGER,
    nrm_quarter            INTEGER,
    nrm_day_of_week        INTEGER,
    nrm_sales              BIGINT,
    nrm_customers          BIGINT,
    nrm_is_open            BOOLEAN,
    nrm_is_promotion       BOOLEAN,
    nrm_is_state_holiday   BOOLEAN,
    nrm_is_school_holiday  BOOLEAN
);

CREATE TABLE IF NOT EXISTS sta_train_snap_0 (
    store          TEXT NOT NULL,
    day_of_week    TEXT NOT NULL,
    sale_date      TEXT NOT NULL,
    sales          TEXT NOT NULL,
    customers      TEXT NOT NULL,
    open_flag      TEXT NOT NULL,
    promo_flag     TEXT NOT NULL,
    state_holiday  TEXT NOT NULL,
    school_holiday TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sta_train_snap_1 (
    store          TEXT NOT NULL,
    day_of_week    TEXT NOT NULL,
    sale_date      TEXT NOT NULL,
    sales          TEXT NOT NULL,
    customers      TEXT NOT NULL,
    open_flag      TEXT NOT NULL,
    promo_flag     TEXT NOT NULL,
    state_holiday  TEXT NOT NULL,
    school_holiday TEXT NOT NULL
)
`

// Schema SQL for the star schema. Composite natural keys live in a
// canonical text column so that absent components compare equal.
const warehouseSchemaSQL = `
CREATE TABLE IF NOT EXISTS d_competition (
    competition_id        {{identity}},
    distance              BIGINT,
    open_since_month_year TEXT,
    natural_key           TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_promotion2 (
    promotion2_id   {{identity}},
    is_promotion    BOOLEAN NOT NULL,
    since_week_year TEXT,
    promo_interval  TEXT,
    natural_key     TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_store (
    store_id       {{identity}},
    store_nr       BIGINT NOT NULL UNIQUE,
    store_type     TEXT NOT NULL,
    assortment     TEXT NOT NULL,
    competition_id BIGINT NOT NULL REFERENCES d_competition (competition_id),
    promotion2_id  BIGINT NOT NULL REFERENCES d_promotion2 (promotion2_id)
);

CREATE TABLE IF NOT EXISTS d_date (
    date_id       {{identity}},
    calendar_date {{date}} NOT NULL,
    day           INTEGER NOT NULL,
    month         INTEGER NOT NULL,
    year          INTEGER NOT NULL,
    iso_week      INTEGER NOT NULL,
    quarter       INTEGER NOT NULL,
    day_of_week   INTEGER NOT NULL,
    natural_key   TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_school_holiday (
    school_holiday_id {{identity}},
    is_school_holiday BOOLEAN NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_promotion (
    promotion_id {{identity}},
    is_promotion BOOLEAN NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_open (
    open_id {{identity}},
    is_open BOOLEAN NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS f_store_sales (
    sales_id          {{identity}},
    store_id          BIGINT NOT NULL REFERENCES d_store (store_id),
    date_id           BIGINT NOT NULL REFERENCES d_date (date_id),
    open_id           BIGINT NOT NULL REFERENCES d_open (open_id),
    promotion_id      BIGINT NOT NULL REFERENCES d_promotion (promotion_id),
    school_holiday_id BIGINT NOT NULL REFERENCES d_school_holiday (school_holiday_id),
    sales             BIGINT NOT NULL,
    customers         BIGINT NOT NULL,
    run_id            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_f_store_sales_store ON f_store_sales (store_id);
CREATE INDEX IF NOT EXISTS idx_f_store_sales_date ON f_store_sales (date_id)
`

// Schema SQL for the run log.
const runLogSchemaSQL = `
CREATE TABLE IF NOT EXISTS etl_run_log (
    run_id             TEXT PRIMARY KEY,
    started_at         {{timestamp}} NOT NULL,
    finished_at        {{timestamp}},
    status             TEXT NOT NULL,
    stores_extracted   BIGINT NOT NULL DEFAULT 0,
    sales_extracted    BIGINT NOT NULL DEFAULT 0,
    stores_reconciled  BIGINT NOT NULL DEFAULT 0,
    sales_reconciled   BIGINT NOT NULL DEFAULT 0,
    dimensions_created BIGINT NOT NULL DEFAULT 0,
    facts_inserted     BIGINT NOT NULL DEFAULT 0,
    sales_skipped      BIGINT NOT NULL DEFAULT 0,
    screen_findings    BIGINT NOT NULL DEFAULT 0,
    error              TEXT
)`

// CreateSchema creates every warehouse table that does not exist yet,
// along with the metadata table.
func CreateSchema(ctx context.Context, q db.Querier, d db.Dialect) error {
	logging.Debug().Str("dialect", d.Name).Msg("Creating warehouse schema")

	scripts := []struct {
		name string
		ddl  string
	}{
		{"staging", stagingSchemaSQL},
		{"warehouse", warehouseSchemaSQL},
		{"run log", runLogSchemaSQL},
	}
	for _, s := range scripts {
		if err := db.ExecScript(ctx, q, d.Render(s.ddl)); err != nil {
			return fmt.Errorf("failed to create %s schema: %w", s.name, err)
		}
	}

	if err := db.EnsureMetadata(ctx, q); err != nil {
		return err
	}

	return nil
}
