//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package transform turns raw extract records into normalized records.
// Everything here is a pure function of a single record.
package transform

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// FieldError reports a required field that could not be parsed.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ParseFlag coerces a raw flag to a boolean. Blank is false, numbers are
// true when non-zero, the strconv.ParseBool vocabulary maps to its value
// and any other text (such as the state holiday codes a, b, c) is true.
func ParseFlag(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return true
}

// NormalizeStore derives a normalized store from a raw store record.
func NormalizeStore(raw model.RawStore) (model.Store, error) {
	storeNr, err := requiredInt("store", raw.Store)
	if err != nil {
		return model.Store{}, err
	}

	store := model.Store{
		StoreNr:      storeNr,
		StoreType:    strings.TrimSpace(raw.StoreType),
		Assortment:   strings.TrimSpace(raw.Assortment),
		IsPromotion2: ParseFlag(raw.Promo2),
	}

	if d, ok := optionalInt(raw.CompetitionDistance); ok && d > 0 {
		store.CompetitionDistance = sql.NullInt64{Int64: d, Valid: true}
	}

	month, monthOK := optionalInt(raw.CompetitionOpenSinceMonth)
	year, yearOK := optionalInt(raw.CompetitionOpenSinceYear)
	if monthOK && yearOK && month != 0 && year != 0 {
		store.CompetitionOpenSinceMonthYear = validString(fmt.Sprintf("%d-%d", year, month))
	}

	week, weekOK := optionalInt(raw.Promo2SinceWeek)
	year, yearOK = optionalInt(raw.Promo2SinceYear)
	if weekOK && yearOK && week != 0 && year != 0 {
		store.Promo2SinceWeekYear = validString(fmt.Sprintf("%dW%d", year, week))
	}

	if interval := strings.TrimSpace(raw.PromoInterval); interval != "" {
		store.PromoInterval = validString(interval)
	}

	return store, nil
}

// NormalizeSale derives a normalized sale from a raw sales record.
func NormalizeSale(raw model.RawSale) (model.Sale, error) {
	storeNr, err := requiredInt("store", raw.Store)
	if err != nil {
		return model.Sale{}, err
	}

	date, err := time.Parse(time.DateOnly, strings.TrimSpace(raw.Date))
	if err != nil {
		return model.Sale{}, &FieldError{Field: "date", Value: raw.Date, Err: err}
	}

	sales, err := requiredInt("sales", raw.Sales)
	if err != nil {
		return model.Sale{}, err
	}

	customers, err := requiredInt("customers", raw.Customers)
	if err != nil {
		return model.Sale{}, err
	}

	sale := model.Sale{
		StoreNr:         storeNr,
		Calendar:        Decompose(date),
		Sales:           sales,
		Customers:       customers,
		IsOpen:          ParseFlag(raw.Open),
		IsPromotion:     ParseFlag(raw.Promo),
		IsStateHoliday:  ParseFlag(raw.StateHoliday),
		IsSchoolHoliday: ParseFlag(raw.SchoolHoliday),
	}
	if dow, ok := optionalInt(raw.DayOfWeek); ok {
		sale.SourceDayOfWeek = int(dow)
	}

	return sale, nil
}

func requiredInt(field, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Value: raw, Err: err}
	}
	return v, nil
}

// optionalInt parses an integer, accepting integral decimals such as
// "1270.0". ok is false for blank or unparsable input.
func optionalInt(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func validString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
