//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/extract"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
)

var (
	runStoreSource string
	runSalesSource string
	runBatchSize   int
	runNoSummary   bool
)

func init() {
	rootCmd.Flags().StringVar(&runStoreSource, "store", "",
		"store extract: path or s3://bucket/key (default: store.csv)")
	rootCmd.Flags().StringVar(&runSalesSource, "sales", "",
		"sales extract: path or s3://bucket/key (default: train.csv)")
	rootCmd.Flags().IntVar(&runBatchSize, "batch-size", 0,
		"staging rows read per page")
	rootCmd.Flags().BoolVar(&runNoSummary, "no-summary", false,
		"do not print the run summary")
}

func runBatch(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runStoreSource != "" {
		cfg.Sources.Store = runStoreSource
	}
	if runSalesSource != "" {
		cfg.Sources.Sales = runSalesSource
	}
	if runBatchSize > 0 {
		cfg.Load.BatchSize = runBatchSize
	}

	// Validate configuration
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Driver, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer conn.Close()

	p := pipeline.New(conn, extract.NewOpener(cfg.S3), pipeline.ConfigFrom(cfg))
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if !runNoSummary {
		pipeline.WriteSummary(cmd.OutOrStdout(), res)
	}

	logging.Debug().Str("run_id", res.RunID).Msg("Batch finished")
	return nil
}
