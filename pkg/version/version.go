//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package version provides build and version information for pgedge-salesdw.
package version

import (
	"fmt"
	"runtime"
)

// SchemaVersion identifies the warehouse layout written by this build.
// It is recorded in the warehouse metadata table on every successful run.
const SchemaVersion = "2"

// Build information set at compile time via ldflags.
var (
	Version   = "1.0.0-beta1"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns formatted version information.
func Info() string {
	return fmt.Sprintf(
		"pgedge-salesdw %s (commit: %s, built: %s, go: %s, schema: %s)",
		Version, Commit, BuildDate, runtime.Version(), SchemaVersion,
	)
}

// Short returns just the version string.
func Short() string {
	return Version
}
