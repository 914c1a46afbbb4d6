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
	"bytes"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/extract"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/transform"
)

func testConfig() GeneratorConfig {
	cfg := DefaultGeneratorConfig()
	cfg.Stores = 5
	cfg.Days = 14
	cfg.Seed = 42
	return cfg
}

func TestGeneratorIsReproducible(t *testing.T) {
	var a, b bytes.Buffer

	g1 := NewGenerator(testConfig())
	if _, err := g1.WriteSales(&a, g1.Stores()); err != nil {
		t.Fatalf("WriteSales failed: %v", err)
	}
	g2 := NewGenerator(testConfig())
	if _, err := g2.WriteSales(&b, g2.Stores()); err != nil {
		t.Fatalf("WriteSales failed: %v", err)
	}

	if a.String() != b.String() {
		t.Error("Same seed produced different extracts")
	}
}

func TestGeneratedStoresNormalize(t *testing.T) {
	g := NewGenerator(testConfig())
	stores := g.Stores()
	if len(stores) != 5 {
		t.Fatalf("Expected 5 stores, got %d", len(stores))
	}

	for i, raw := range stores {
		s, err := transform.NormalizeStore(raw)
		if err != nil {
			t.Fatalf("Store %d does not normalize: %v", i+1, err)
		}
		if s.StoreNr != int64(i+1) {
			t.Errorf("Expected store number %d, got %d", i+1, s.StoreNr)
		}
		if s.IsPromotion2 != s.PromoInterval.Valid {
			t.Errorf("Store %d: promo interval must be set exactly when Promo2 is", s.StoreNr)
		}
		if s.IsPromotion2 != s.Promo2SinceWeekYear.Valid {
			t.Errorf("Store %d: since week must be set exactly when Promo2 is", s.StoreNr)
		}
	}
}

func TestGeneratedSalesAreConsistent(t *testing.T) {
	cfg := testConfig()
	cfg.AnomalyRate = 0
	g := NewGenerator(cfg)
	screens := transform.Screens{LowSales: 50, HighSales: 40000}

	store := g.Stores()[0]
	for d := 0; d < cfg.Days; d++ {
		day := cfg.Start.AddDate(0, 0, d)
		raw := g.Sale(store, day)

		sale, err := transform.NormalizeSale(raw)
		if err != nil {
			t.Fatalf("Sale on %s does not normalize: %v", raw.Date, err)
		}
		if findings := screens.Check(sale); len(findings) != 0 {
			t.Errorf("Sale on %s trips screens %v", raw.Date, findings)
		}
		if !sale.IsOpen && (sale.Sales != 0 || sale.Customers != 0) {
			t.Errorf("Closed day %s has sales %d", raw.Date, sale.Sales)
		}
		if raw.StateHoliday != "0" && sale.IsOpen {
			t.Errorf("State holiday %s is open", raw.Date)
		}
	}
}

func TestAnomaliesTripScreens(t *testing.T) {
	cfg := testConfig()
	cfg.AnomalyRate = 1
	g := NewGenerator(cfg)
	screens := transform.Screens{LowSales: 50, HighSales: 40000}

	// A Monday; only open days carry anomalies.
	day := time.Date(2015, 1, 5, 0, 0, 0, 0, time.UTC)
	tripped := 0
	for _, store := range g.Stores() {
		sale, err := transform.NormalizeSale(g.Sale(store, day))
		if err != nil {
			t.Fatalf("NormalizeSale failed: %v", err)
		}
		if sale.IsOpen && len(screens.Check(sale)) == 0 {
			t.Errorf("Anomalous sale %d on store %d trips no screen", sale.Sales, sale.StoreNr)
		}
		if sale.IsOpen {
			tripped++
		}
	}
	if tripped == 0 {
		t.Error("Expected at least one open store on a Monday")
	}
}

func TestWriteFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(testConfig())

	files, err := g.WriteFiles(dir)
	if err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}
	if files.StoreRows != 5 || files.SalesRows != 70 {
		t.Errorf("Expected 5 stores and 70 sales, got %d and %d", files.StoreRows, files.SalesRows)
	}

	f, err := os.Open(files.Store)
	if err != nil {
		t.Fatalf("Failed to open store extract: %v", err)
	}
	defer f.Close()

	var stores []model.RawStore
	n, err := extract.ReadStores(f, func(s model.RawStore) error {
		stores = append(stores, s)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadStores failed: %v", err)
	}
	if n != 5 || stores[4].Store != "5" {
		t.Errorf("Unexpected store extract: %d rows, last %+v", n, stores[len(stores)-1])
	}

	s, err := os.Open(files.Sales)
	if err != nil {
		t.Fatalf("Failed to open sales extract: %v", err)
	}
	defer s.Close()

	days := make(map[string]int)
	n, err = extract.ReadSales(s, func(r model.RawSale) error {
		days[r.Date]++
		if _, err := strconv.Atoi(r.DayOfWeek); err != nil {
			t.Errorf("Invalid day of week %q", r.DayOfWeek)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSales failed: %v", err)
	}
	if n != 70 || len(days) != 14 {
		t.Errorf("Expected 70 rows over 14 days, got %d over %d", n, len(days))
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
