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
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Decompose splits a date into its calendar attributes. The week is the
// ISO 8601 week number and the day of week runs from Monday=0.
func Decompose(date time.Time) model.Calendar {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	_, week := day.ISOWeek()
	month := int(day.Month())

	return model.Calendar{
		Date:      day,
		Day:       day.Day(),
		Month:     month,
		Year:      day.Year(),
		ISOWeek:   week,
		Quarter:   (month-1)/3 + 1,
		DayOfWeek: (int(day.Weekday()) + 6) % 7,
	}
}
