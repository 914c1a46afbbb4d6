//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package model defines the record types that flow between the extract,
// transform and load stages.
package model

import (
	"database/sql"
	"time"
)

// Sources handled by the pipeline.
const (
	SourceStore = "store"
	SourceSales = "train"
)

// RawStore is one line of the store extract, kept as source text.
type RawStore struct {
	Store                     string
	StoreType                 string
	Assortment                string
	CompetitionDistance       string
	CompetitionOpenSinceMonth string
	CompetitionOpenSinceYear  string
	Promo2                    string
	Promo2SinceWeek           string
	Promo2SinceYear           string
	PromoInterval             string
}

// StoreColumns lists the staging columns of a RawStore in file order.
var StoreColumns = []string{
	"store", "store_type", "assortment", "competition_distance",
	"competition_open_since_month", "competition_open_since_year",
	"promo2", "promo2_since_week", "promo2_since_year", "promo_interval",
}

// StoreFromFields builds a RawStore from an extract line.
func StoreFromFields(f []string) RawStore {
	return RawStore{
		Store:                     f[0],
		StoreType:                 f[1],
		Assortment:                f[2],
		CompetitionDistance:       f[3],
		CompetitionOpenSinceMonth: f[4],
		CompetitionOpenSinceYear:  f[5],
		Promo2:                    f[6],
		Promo2SinceWeek:           f[7],
		Promo2SinceYear:           f[8],
		PromoInterval:             f[9],
	}
}

// Values returns the fields in StoreColumns order.
func (r RawStore) Values() []any {
	return []any{
		r.Store, r.StoreType, r.Assortment, r.CompetitionDistance,
		r.CompetitionOpenSinceMonth, r.CompetitionOpenSinceYear,
		r.Promo2, r.Promo2SinceWeek, r.Promo2SinceYear, r.PromoInterval,
	}
}

// Fields returns the fields as an extract line.
func (r RawStore) Fields() []string {
	return []string{
		r.Store, r.StoreType, r.Assortment, r.CompetitionDistance,
		r.CompetitionOpenSinceMonth, r.CompetitionOpenSinceYear,
		r.Promo2, r.Promo2SinceWeek, r.Promo2SinceYear, r.PromoInterval,
	}
}

// Pointers returns scan destinations in StoreColumns order.
func (r *RawStore) Pointers() []any {
	return []any{
		&r.Store, &r.StoreType, &r.Assortment, &r.CompetitionDistance,
		&r.CompetitionOpenSinceMonth, &r.CompetitionOpenSinceYear,
		&r.Promo2, &r.Promo2SinceWeek, &r.Promo2SinceYear, &r.PromoInterval,
	}
}

// RawSale is one line of the sales extract, kept as source text.
type RawSale struct {
	Store         string
	DayOfWeek     string
	Date          string
	Sales         string
	Customers     string
	Open          string
	Promo         string
	StateHoliday  string
	SchoolHoliday string
}

// SaleColumns lists the staging columns of a RawSale in file order.
var SaleColumns = []string{
	"store", "day_of_week", "sale_date", "sales", "customers",
	"open_flag", "promo_flag", "state_holiday", "school_holiday",
}

// SaleFromFields builds a RawSale from an extract line.
func SaleFromFields(f []string) RawSale {
	return RawSale{
		Store:         f[0],
		DayOfWeek:     f[1],
		Date:          f[2],
		Sales:         f[3],
		Customers:     f[4],
		Open:          f[5],
		Promo:         f[6],
		StateHoliday:  f[7],
		SchoolHoliday: f[8],
	}
}

// Values returns the fields in SaleColumns order.
func (r RawSale) Values() []any {
	return []any{
		r.Store, r.DayOfWeek, r.Date, r.Sales, r.Customers,
		r.Open, r.Promo, r.StateHoliday, r.SchoolHoliday,
	}
}

// Fields returns the fields as an extract line.
func (r RawSale) Fields() []string {
	return []string{
		r.Store, r.DayOfWeek, r.Date, r.Sales, r.Customers,
		r.Open, r.Promo, r.StateHoliday, r.SchoolHoliday,
	}
}

// Pointers returns scan destinations in SaleColumns order.
func (r *RawSale) Pointers() []any {
	return []any{
		&r.Store, &r.DayOfWeek, &r.Date, &r.Sales, &r.Customers,
		&r.Open, &r.Promo, &r.StateHoliday, &r.SchoolHoliday,
	}
}

// Store is a normalized store record.
type Store struct {
	StoreNr    int64
	StoreType  string
	Assortment string

	// CompetitionDistance is set only for positive distances.
	CompetitionDistance sql.NullInt64

	// CompetitionOpenSinceMonthYear is "{year}-{month}".
	CompetitionOpenSinceMonthYear sql.NullString

	IsPromotion2 bool

	// Promo2SinceWeekYear is "{year}W{week}".
	Promo2SinceWeekYear sql.NullString
	PromoInterval       sql.NullString
}

// Calendar is the decomposition of a calendar date.
type Calendar struct {
	Date    time.Time
	Day     int
	Month   int
	Year    int
	ISOWeek int
	Quarter int

	// DayOfWeek runs from Monday=0 to Sunday=6.
	DayOfWeek int
}

// Sale is a normalized sales record.
type Sale struct {
	StoreNr int64

	// SourceDayOfWeek is the extract's 1-based day of week, 0 when absent.
	SourceDayOfWeek int

	Calendar  Calendar
	Sales     int64
	Customers int64

	IsOpen          bool
	IsPromotion     bool
	IsStateHoliday  bool
	IsSchoolHoliday bool
}
