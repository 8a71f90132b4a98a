// Package checkpoint tracks which identifiers are already harvested,
// accumulates results, and persists partial and committed CSV snapshots so
// an interrupted run can resume.
package checkpoint

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/jonathan/shop-harvester/internal/product"
)

// ReadRecords loads a CSV file written by WriteRecords (or a prior run) as a
// list of column→value mappings. The first row is the header.
func ReadRecords(path string) ([]product.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]product.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(product.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		if rec.Key() == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteRecords writes records as CSV under the canonical column order.
func WriteRecords(path string, records []product.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(product.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(product.Columns))
	for _, rec := range records {
		for i, col := range product.Columns {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}
