// Package input loads the product identifier list from the operator's CSV.
package input

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// skuPrefix tags rows belonging to this platform in the input CSV. The
// product number sits between the prefix and the next separator:
// TOR~100-2000~XYZ → 100-2000.
const skuPrefix = "TOR~"

// ExtractProductNumber pulls the product number out of a tagged SKU value.
// Returns false when the SKU does not follow the tagging convention.
func ExtractProductNumber(sku string) (string, bool) {
	if !strings.HasPrefix(sku, skuPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(sku, skuPrefix)
	if i := strings.Index(rest, "~"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}

// LoadProductNumbers reads the input CSV, extracts tagged product numbers
// from the SKU column, removes duplicates preserving first-seen order, and
// applies the row limit when limited is true.
func LoadProductNumbers(path string, maxRows int, limited bool, log *zap.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse input CSV %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("input file %s is empty", path)
	}

	skuCol := -1
	for i, col := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(col), "SKU") {
			skuCol = i
			break
		}
	}
	if skuCol < 0 {
		return nil, fmt.Errorf("input file %s has no SKU column", path)
	}

	seen := make(map[string]struct{})
	products := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if skuCol >= len(row) {
			continue
		}
		number, ok := ExtractProductNumber(strings.TrimSpace(row[skuCol]))
		if !ok {
			continue
		}
		if _, dup := seen[number]; dup {
			continue
		}
		seen[number] = struct{}{}
		products = append(products, number)
	}

	log.Info("input loaded",
		zap.String("path", path),
		zap.Int("rows", len(rows)-1),
		zap.Int("products", len(products)))

	if limited && maxRows < len(products) {
		products = products[:maxRows]
		log.Info("input limited", zap.Int("max_rows", maxRows))
	}

	return products, nil
}
