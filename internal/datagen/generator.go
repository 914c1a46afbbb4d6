//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Extract headers. The ETL skips the first line without checking it.
var (
	StoreHeader = []string{
		"Store", "StoreType", "Assortment", "CompetitionDistance",
		"CompetitionOpenSinceMonth", "CompetitionOpenSinceYear",
		"Promo2", "Promo2SinceWeek", "Promo2SinceYear", "PromoInterval",
	}
	SalesHeader = []string{
		"Store", "DayOfWeek", "Date", "Sales", "Customers",
		"Open", "Promo", "StateHoliday", "SchoolHoliday",
	}
)

// GeneratorConfig configures extract generation.
type GeneratorConfig struct {
	// Stores is the number of stores, numbered from 1.
	Stores int

	// Start is the first sales day; Days is the number of days.
	Start time.Time
	Days  int

	// Seed makes the output reproducible. Zero picks a random seed.
	Seed uint64

	// AnomalyRate is the probability that an open day gets sales outside
	// the plausible range, so that the data-quality screens have work.
	AnomalyRate float64

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int64
}

// DefaultGeneratorConfig returns default generation settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Stores:           10,
		Start:            time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:             31,
		AnomalyRate:      0.01,
		ProgressInterval: 100000,
	}
}

// Generator produces store and sales extracts.
type Generator struct {
	cfg   GeneratorConfig
	faker *Faker
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	faker := NewFaker()
	if cfg.Seed != 0 {
		faker = NewFakerWithSeed(cfg.Seed)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultGeneratorConfig().ProgressInterval
	}
	return &Generator{cfg: cfg, faker: faker}
}

// Stores returns the store records.
func (g *Generator) Stores() []model.RawStore {
	stores := make([]model.RawStore, 0, g.cfg.Stores)
	for i := 1; i <= g.cfg.Stores; i++ {
		stores = append(stores, g.store(i))
	}
	return stores
}

func (g *Generator) store(nr int) model.RawStore {
	f := g.faker
	s := model.RawStore{
		Store:               strconv.Itoa(nr),
		StoreType:           f.StoreType(),
		Assortment:          f.Assortment(),
		CompetitionDistance: f.NullableString(strconv.Itoa(f.Int(20, 75860)), 0.003),
		Promo2:              "0",
	}

	if !f.Chance(0.32) {
		s.CompetitionOpenSinceMonth = strconv.Itoa(f.Int(1, 12))
		s.CompetitionOpenSinceYear = strconv.Itoa(f.Int(1990, 2015))
	}

	if f.Bool() {
		s.Promo2 = "1"
		s.Promo2SinceWeek = strconv.Itoa(f.Int(1, 50))
		s.Promo2SinceYear = strconv.Itoa(f.Int(2009, 2015))
		s.PromoInterval = f.PromoInterval()
	}

	return s
}

// Sale returns the sales record of a store for one day.
func (g *Generator) Sale(store model.RawStore, day time.Time) model.RawSale {
	f := g.faker

	// The extract counts days from Monday=1 to Sunday=7.
	dow := int(day.Weekday())
	if dow == 0 {
		dow = 7
	}

	s := model.RawSale{
		Store:         store.Store,
		DayOfWeek:     strconv.Itoa(dow),
		Date:          day.Format(time.DateOnly),
		Promo:         "0",
		StateHoliday:  "0",
		SchoolHoliday: "0",
	}

	var open bool
	switch {
	case dow == 7:
		open = f.Chance(0.03)
	case f.Chance(0.02):
		s.StateHoliday = f.StateHoliday()
		open = false
	default:
		open = f.Chance(0.98)
	}
	if dow < 6 && f.Chance(0.4) {
		s.Promo = "1"
	}
	if f.Chance(0.18) {
		s.SchoolHoliday = "1"
	}

	if !open {
		s.Open, s.Sales, s.Customers = "0", "0", "0"
		return s
	}

	customers := f.Int(300, 1500)
	sales := customers * f.Int(6, 12)
	if f.Chance(g.cfg.AnomalyRate) {
		if f.Bool() {
			sales = f.Int(1, 49)
		} else {
			sales = f.Int(40001, 45000)
		}
	}

	s.Open = "1"
	s.Sales = strconv.Itoa(sales)
	s.Customers = strconv.Itoa(customers)
	return s
}

// WriteStores writes the store extract.
func (g *Generator) WriteStores(w io.Writer, stores []model.RawStore) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StoreHeader); err != nil {
		return fmt.Errorf("failed to write store header: %w", err)
	}
	for _, s := range stores {
		if err := cw.Write(s.Fields()); err != nil {
			return fmt.Errorf("failed to write store %s: %w", s.Store, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSales writes the sales extract, one row per store and day, and
// returns the number of rows written.
func (g *Generator) WriteSales(w io.Writer, stores []model.RawStore) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(SalesHeader); err != nil {
		return 0, fmt.Errorf("failed to write sales header: %w", err)
	}

	total := int64(len(stores)) * int64(g.cfg.Days)
	progress := NewProgressReporter("sales", total, g.cfg.ProgressInterval)

	var rows int64
	for d := 0; d < g.cfg.Days; d++ {
		day := g.cfg.Start.AddDate(0, 0, d)
		for _, store := range stores {
			sale := g.Sale(store, day)
			if err := cw.Write(sale.Fields()); err != nil {
				return rows, fmt.Errorf("failed to write sales row: %w", err)
			}
			rows++
		}
		progress.Update(int64(len(stores)))
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, err
	}
	progress.Done()
	return rows, nil
}

// Files describes generated extract files.
type Files struct {
	Store     string
	Sales     string
	StoreRows int64
	SalesRows int64
}

// WriteFiles writes store.csv and train.csv into dir.
func (g *Generator) WriteFiles(dir string) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := Files{
		Store: filepath.Join(dir, "store.csv"),
		Sales: filepath.Join(dir, "train.csv"),
	}
	stores := g.Stores()

	err := writeFile(files.Store, func(w io.Writer) error {
		return g.WriteStores(w, stores)
	})
	if err != nil {
		return files, err
	}
	files.StoreRows = int64(len(stores))

	err = writeFile(files.Sales, func(w io.Writer) error {
		n, err := g.WriteSales(w, stores)
		files.SalesRows = n
		return err
	})
	return files, err
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ProgressReporter tracks and reports generation progress.
type ProgressReporter struct {
	name             string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(name string, totalRows int64, interval int64) *ProgressReporter {
	return &ProgressReporter{
		name:             name,
		totalRows:        totalRows,
		progressInterval: interval,
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rows int64) {
	oldRow := p.currentRow
	p.currentRow += rows

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := float64(p.currentRow) / float64(p.totalRows) * 100
		logging.Info().
			Str("extract", p.name).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating extract")
	}
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("extract", p.name).
		Int64("rows", p.currentRow).
		Msg("Extract complete")
}

// FormatSize formats a byte count as a human-readable string.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
