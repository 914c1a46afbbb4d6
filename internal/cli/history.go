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
	"sort"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent ETL runs",
	Long: `Show the most recent ETL runs recorded in the warehouse run log,
newest first, with their status, duration and row counts.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show warehouse metadata",
	Long: `Show the warehouse metadata: schema version, the version of the
last build that loaded it, and the last successful run.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"number of runs to show")
}

func openWarehouse(ctx context.Context) (*db.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.Driver, cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return conn, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}

	ctx := context.Background()
	conn, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	exists, err := conn.Dialect.TableExists(ctx, conn.DB, "etl_run_log")
	if err != nil {
		return err
	}
	if !exists {
		cmd.Println("No runs recorded.")
		return nil
	}

	records, err := warehouse.NewRunLog(conn.Dialect).History(ctx, conn.DB, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	pipeline.WriteHistory(cmd.OutOrStdout(), records)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	conn, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	exists, err := db.MetadataExists(ctx, conn.DB, conn.Dialect)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("warehouse has not been loaded yet; run pgedge-salesdw first")
	}

	metadata, err := db.GetAllMetadata(ctx, conn.DB)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cmd.Printf("Warehouse (%s)\n", conn.Dialect.Name)
	for _, k := range keys {
		cmd.Printf("  %-20s %s\n", k+":", metadata[k])
	}
	return nil
}
