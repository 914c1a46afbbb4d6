//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package extract reads the store and sales extracts.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Field counts of the two extracts.
const (
	StoreFields = 10
	SalesFields = 9
)

// ReadStores reads a store extract, skipping the header line, and calls fn
// for every record. It returns the number of records read.
func ReadStores(r io.Reader, fn func(model.RawStore) error) (int, error) {
	return readRecords(r, StoreFields, func(fields []string) error {
		return fn(model.StoreFromFields(fields))
	})
}

// ReadSales reads a sales extract, skipping the header line, and calls fn
// for every record. It returns the number of records read.
func ReadSales(r io.Reader, fn func(model.RawSale) error) (int, error) {
	return readRecords(r, SalesFields, func(fields []string) error {
		return fn(model.SaleFromFields(fields))
	})
}

func readRecords(r io.Reader, fields int, fn func([]string) error) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = fields
	reader.ReuseRecord = true

	// Header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	count := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read record: %w", err)
		}
		if err := fn(record); err != nil {
			line, _ := reader.FieldPos(0)
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		count++
	}
}
