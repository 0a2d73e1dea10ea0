package mask

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/veildoc/veildoc/internal/vault"
)

// MaskCSVFile rewrites a CSV file cell by cell. Replacement is exact-match
// on the whole cell, not substring or regex: partial matches inside a cell
// would leak column context across the mapping.
func MaskCSVFile(inPath, outPath string, lookup map[string]*vault.Record) error {
	rows, err := readCSV(inPath)
	if err != nil {
		return err
	}

	// Longest-first for parity with the text core, though exact cell
	// matching makes order immaterial.
	values := make([]string, 0, len(lookup))
	for v := range lookup {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	for _, row := range rows {
		for i, cell := range row {
			for _, value := range values {
				if cell == value {
					row[i] = lookup[value].Masked
					break
				}
			}
		}
	}

	return writeCSV(outPath, rows)
}

// RestoreCSVFile reverses MaskCSVFile: any cell that exactly equals a
// masked tag becomes the original value again.
func RestoreCSVFile(inPath, outPath string, records []*vault.Record) error {
	rows, err := readCSV(inPath)
	if err != nil {
		return err
	}

	byTag := make(map[string]string, len(records))
	for _, r := range records {
		if r.Masked != "" && r.Original != "" {
			byTag[r.Masked] = r.Original
		}
	}

	for _, row := range rows {
		for i, cell := range row {
			if original, ok := byTag[cell]; ok {
				row[i] = original
			}
		}
	}

	return writeCSV(outPath, rows)
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // ragged rows are the input's business
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}
	return rows, nil
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	writer.Flush()
	return writer.Error()
}
