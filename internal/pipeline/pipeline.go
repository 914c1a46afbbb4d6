//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs one ETL batch: pre-process, extract, transform,
// load and post-process, in that order, each stage in its own
// transaction.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/extract"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/transform"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// Stage names.
const (
	StagePreProcess  = "pre-process"
	StageExtract     = "extract"
	StageTransform   = "transform"
	StageLoad        = "load"
	StagePostProcess = "post-process"
)

// SourceOpener opens an extract by location.
type SourceOpener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Config holds configuration for a pipeline run.
type Config struct {
	Sources   config.SourcesConfig
	Screens   config.ScreensConfig
	BatchSize int
	CacheSize int
	Metrics   config.MetricsConfig
}

// ConfigFrom builds a pipeline Config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Sources:   cfg.Sources,
		Screens:   cfg.Screens,
		BatchSize: cfg.Load.BatchSize,
		CacheSize: cfg.Load.CacheSize,
		Metrics:   cfg.Metrics,
	}
}

// StageResult records how long a stage took.
type StageResult struct {
	Name     string
	Duration time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Counts     warehouse.RunCounts
	Dimensions map[string]warehouse.Stats
	Screens    map[string]int64
	Stages     []StageResult
	Duration   time.Duration
}

// Pipeline executes ETL batches against one warehouse.
type Pipeline struct {
	conn      *db.Conn
	opener    SourceOpener
	sources   config.SourcesConfig
	screens   transform.Screens
	batchSize int
	cacheSize int

	staging *warehouse.Staging
	runLog  *warehouse.RunLog
	metrics *Metrics
	pusher  *Pusher
}

// New creates a pipeline. Metrics are recorded for every run and pushed
// when a Pushgateway URL is configured.
func New(conn *db.Conn, opener SourceOpener, cfg Config) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1000
	}
	cacheSize := cfg.CacheSize
	if cacheSize < 1 {
		cacheSize = 4096
	}

	return &Pipeline{
		conn:      conn,
		opener:    opener,
		sources:   cfg.Sources,
		screens:   transform.NewScreens(cfg.Screens),
		batchSize: batchSize,
		cacheSize: cacheSize,
		staging:   warehouse.NewStaging(conn.Dialect),
		runLog:    warehouse.NewRunLog(conn.Dialect),
		metrics:   NewMetrics(),
		pusher:    NewPusher(cfg.Metrics),
	}
}

// Metrics returns the metrics recorded by the last run.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// run carries the state of one batch between stages.
type run struct {
	id      string
	log     zerolog.Logger
	result  *Result
	dims    map[string]warehouse.Stats
	screens map[string]int64
}

// Run executes one batch. The returned Result is populated as far as the
// run got, even when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if err := warehouse.CreateSchema(ctx, p.conn.DB, p.conn.Dialect); err != nil {
		return nil, err
	}

	runID, err := p.runLog.Start(ctx, p.conn.DB)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:      runID,
		log:     logging.With(runID),
		result:  &Result{RunID: runID},
		screens: make(map[string]int64),
	}

	r.log.Info().
		Str("driver", p.conn.Dialect.Name).
		Str("store_source", p.sources.Store).
		Str("sales_source", p.sources.Sales).
		Msg("Starting ETL run")

	stages := []struct {
		name string
		fn   func(context.Context, *sql.Tx, *run) error
	}{
		{StagePreProcess, p.preProcess},
		{StageExtract, p.extract},
		{StageTransform, p.transform},
		{StageLoad, p.load},
		{StagePostProcess, p.postProcess},
	}

	for _, stage := range stages {
		stageStart := time.Now()
		err := db.InTx(ctx, p.conn.DB, func(tx *sql.Tx) error {
			return stage.fn(ctx, tx, r)
		})
		elapsed := time.Since(stageStart)
		r.result.Stages = append(r.result.Stages, StageResult{Name: stage.name, Duration: elapsed})

		if err != nil {
			err = fmt.Errorf("%s stage failed: %w", stage.name, err)
			p.finish(ctx, r, start, err)
			return r.result, err
		}

		r.log.Info().
			Str("stage", stage.name).
			Dur("duration", elapsed).
			Msg("Stage complete")
	}

	if err := db.SaveRunMetadata(ctx, p.conn.DB, runID); err != nil {
		p.finish(ctx, r, start, err)
		return r.result, err
	}

	if err := p.finish(ctx, r, start, nil); err != nil {
		return r.result, err
	}

	return r.result, nil
}

// finish records the outcome in the run log and the metrics. A failure
// to record a failed run is logged and does not mask the run error.
func (p *Pipeline) finish(ctx context.Context, r *run, start time.Time, runErr error) error {
	r.result.Duration = time.Since(start)
	r.result.Dimensions = r.dims
	r.result.Screens = r.screens

	var err error
	if runErr != nil {
		if logErr := p.runLog.Fail(ctx, p.conn.DB, r.id, r.result.Counts, runErr); logErr != nil {
			r.log.Error().Err(logErr).Msg("Failed to record run failure")
		}
		r.log.Error().Err(runErr).Dur("duration", r.result.Duration).Msg("ETL run failed")
	} else {
		err = p.runLog.Finish(ctx, p.conn.DB, r.id, r.result.Counts)
		if err == nil {
			c := r.result.Counts
			r.log.Info().
				Int64("stores_reconciled", c.StoresReconciled).
				Int64("sales_reconciled", c.SalesReconciled).
				Int64("dimensions_created", c.DimensionsCreated).
				Int64("facts_inserted", c.FactsInserted).
				Int64("sales_skipped", c.SalesSkipped).
				Int64("screen_findings", c.ScreenFindings).
				Dur("duration", r.result.Duration).
				Msg("ETL run complete")
		}
	}

	p.metrics.Record(r.result, runErr == nil && err == nil)
	if pushErr := p.pusher.Push(ctx, p.metrics.Registry()); pushErr != nil {
		r.log.Warn().Err(pushErr).Msg("Failed to push metrics")
	}

	return err
}

// preProcess empties the reconciled tables and the current snapshot slots.
func (p *Pipeline) preProcess(ctx context.Context, tx *sql.Tx, r *run) error {
	for _, src := range []warehouse.Source{warehouse.StoreSource, warehouse.SalesSource} {
		if err := p.staging.Clear(ctx, tx, src); err != nil {
			return err
		}
	}
	return nil
}

// extract stages both sources into their current slots and computes the
// delta against the previous snapshots.
func (p *Pipeline) extract(ctx context.Context, tx *sql.Tx, r *run) error {
	c := &r.result.Counts

	n, err := p.stageSource(ctx, tx, warehouse.StoreSource, p.sources.Store,
		func(rd io.Reader, w *warehouse.SnapshotWriter) (int, error) {
			return extract.ReadStores(rd, func(s model.RawStore) error {
				return w.Write(ctx, s.Values())
			})
		})
	if err != nil {
		return err
	}
	c.StoresExtracted = int64(n)

	n, err = p.stageSource(ctx, tx, warehouse.SalesSource, p.sources.Sales,
		func(rd io.Reader, w *warehouse.SnapshotWriter) (int, error) {
			return extract.ReadSales(rd, func(s model.RawSale) error {
				return w.Write(ctx, s.Values())
			})
		})
	if err != nil {
		return err
	}
	c.SalesExtracted = int64(n)

	if c.StoresReconciled, err = p.staging.Reconcile(ctx, tx, warehouse.StoreSource); err != nil {
		return err
	}
	if c.SalesReconciled, err = p.staging.Reconcile(ctx, tx, warehouse.SalesSource); err != nil {
		return err
	}

	r.log.Info().
		Int64("stores_extracted", c.StoresExtracted).
		Int64("stores_reconciled", c.StoresReconciled).
		Int64("sales_extracted", c.SalesExtracted).
		Int64("sales_reconciled", c.SalesReconciled).
		Msg("Extracted sources")

	return nil
}

func (p *Pipeline) stageSource(
	ctx context.Context,
	tx *sql.Tx,
	src warehouse.Source,
	location string,
	read func(io.Reader, *warehouse.SnapshotWriter) (int, error),
) (int, error) {
	rc, err := p.opener.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	w, err := p.staging.CurrentWriter(ctx, tx, src)
	if err != nil {
		return 0, err
	}

	n, err := read(rc, w)
	if err != nil {
		return 0, fmt.Errorf("failed to extract %s: %w", location, err)
	}
	return n, nil
}

// transform normalizes the reconciled rows and runs the data-quality
// screens on sales.
func (p *Pipeline) transform(ctx context.Context, tx *sql.Tx, r *run) error {
	err := warehouse.EachRawStore(ctx, tx, p.batchSize, func(row warehouse.RawStoreRow) error {
		store, err := transform.NormalizeStore(row.RawStore)
		if err != nil {
			return fmt.Errorf("store row %d: %w", row.RowID, err)
		}
		return warehouse.UpdateStore(ctx, tx, row.RowID, store)
	})
	if err != nil {
		return err
	}

	return warehouse.EachRawSale(ctx, tx, p.batchSize, func(row warehouse.RawSaleRow) error {
		sale, err := transform.NormalizeSale(row.RawSale)
		if err != nil {
			return fmt.Errorf("sales row %d: %w", row.RowID, err)
		}

		for _, screen := range p.screens.Check(sale) {
			r.screens[screen]++
			r.result.Counts.ScreenFindings++
			r.log.Error().
				Str("screen", screen).
				Int64("store", sale.StoreNr).
				Str("date", sale.Calendar.Date.Format(time.DateOnly)).
				Int("day_of_week", sale.SourceDayOfWeek).
				Int64("sales", sale.Sales).
				Msg("Data quality screen failed")
		}

		return warehouse.UpdateSale(ctx, tx, row.RowID, sale)
	})
}

// load resolves the dimensions of every reconciled row and appends one
// fact per sales row whose store is known.
func (p *Pipeline) load(ctx context.Context, tx *sql.Tx, r *run) error {
	resolver, err := warehouse.NewResolver(p.conn.Dialect, p.cacheSize)
	if err != nil {
		return err
	}
	c := &r.result.Counts

	// Stats are kept even when the stage fails part way.
	defer func() {
		r.dims = resolver.Stats()
		c.DimensionsCreated = resolver.Created()
	}()

	err = warehouse.EachStore(ctx, tx, p.batchSize, func(row warehouse.StoreRow) error {
		s := row.Store
		competitionID, err := resolver.ResolveCompetition(ctx, tx, s.CompetitionDistance, s.CompetitionOpenSinceMonthYear)
		if err != nil {
			return err
		}
		promotion2ID, err := resolver.ResolvePromotion2(ctx, tx, s.IsPromotion2, s.Promo2SinceWeekYear, s.PromoInterval)
		if err != nil {
			return err
		}
		_, err = resolver.ResolveStore(ctx, tx, s, competitionID, promotion2ID)
		return err
	})
	if err != nil {
		return err
	}

	return warehouse.EachSale(ctx, tx, p.batchSize, func(row warehouse.SaleRow) error {
		s := row.Sale
		fact := warehouse.Fact{Sales: s.Sales, Customers: s.Customers, RunID: r.id}

		var err error
		if fact.DateID, err = resolver.ResolveDate(ctx, tx, s.Calendar); err != nil {
			return err
		}
		if fact.SchoolHolidayID, err = resolver.ResolveSchoolHoliday(ctx, tx, s.IsSchoolHoliday); err != nil {
			return err
		}
		if fact.PromotionID, err = resolver.ResolvePromotion(ctx, tx, s.IsPromotion); err != nil {
			return err
		}
		if fact.OpenID, err = resolver.ResolveOpen(ctx, tx, s.IsOpen); err != nil {
			return err
		}

		storeID, ok, err := warehouse.LookupStoreID(ctx, tx, s.StoreNr)
		if err != nil {
			return err
		}
		if !ok {
			c.SalesSkipped++
			r.log.Debug().
				Int64("store", s.StoreNr).
				Str("date", s.Calendar.Date.Format(time.DateOnly)).
				Msg("No store for sales row, skipping")
			return nil
		}
		fact.StoreID = storeID

		if err := warehouse.InsertFact(ctx, tx, fact); err != nil {
			return err
		}
		c.FactsInserted++
		return nil
	})
}

// postProcess makes this run's snapshots the baseline for the next run.
func (p *Pipeline) postProcess(ctx context.Context, tx *sql.Tx, r *run) error {
	for _, src := range []warehouse.Source{warehouse.StoreSource, warehouse.SalesSource} {
		generation, err := p.staging.Rotate(ctx, tx, src)
		if err != nil {
			return err
		}
		r.log.Debug().
			Str("source", src.Name).
			Int64("generation", generation).
			Msg("Snapshot rotated")
	}
	return nil
}
