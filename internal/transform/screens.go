//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package transform

import (
	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Screen names.
const (
	ScreenDayOfWeekMismatch = "day_of_week_mismatch"
	ScreenLowSales          = "low_sales"
	ScreenHighSales         = "high_sales"
)

// Screens holds the data-quality thresholds. Screens only report; they
// never reject a record.
type Screens struct {
	LowSales  int64
	HighSales int64
}

// NewScreens builds Screens from configuration.
func NewScreens(cfg config.ScreensConfig) Screens {
	return Screens{LowSales: int64(cfg.LowSales), HighSales: int64(cfg.HighSales)}
}

// Check returns the names of the screens the sale trips.
func (s Screens) Check(sale model.Sale) []string {
	var findings []string

	// The extract counts days from Monday=1.
	if sale.SourceDayOfWeek-1 != sale.Calendar.DayOfWeek {
		findings = append(findings, ScreenDayOfWeekMismatch)
	}
	if sale.Sales > 0 && sale.Sales < s.LowSales {
		findings = append(findings, ScreenLowSales)
	}
	if sale.Sales > s.HighSales {
		findings = append(findings, ScreenHighSales)
	}

	return findings
}
