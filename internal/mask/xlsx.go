package mask

import (
	"fmt"
	"strings"

	"github.com/veildoc/veildoc/internal/vault"
	"github.com/xuri/excelize/v2"
)

// ReadXlsxText extracts all worksheet cell text for detection, one cell
// per line.
func ReadXlsxText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				if cell == "" {
					continue
				}
				b.WriteString(cell)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}

// MaskXlsxFile routes every string cell through the tag-aware substitution
// core and writes the workbook to outPath.
func MaskXlsxFile(inPath, outPath string, lookup map[string]*vault.Record) error {
	return rewriteXlsx(inPath, outPath, func(cell string) string {
		return ApplyTags(cell, lookup)
	})
}

// RestoreXlsxFile reverses MaskXlsxFile using the mapping records.
func RestoreXlsxFile(inPath, outPath string, records []*vault.Record) error {
	return rewriteXlsx(inPath, outPath, func(cell string) string {
		return RestoreText(cell, records)
	})
}

func rewriteXlsx(inPath, outPath string, transform func(string) string) error {
	f, err := excelize.OpenFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to open xlsx file: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		for ri, row := range rows {
			for ci, cell := range row {
				if cell == "" {
					continue
				}
				updated := transform(cell)
				if updated == cell {
					continue
				}
				name, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return fmt.Errorf("invalid cell coordinates: %w", err)
				}
				if err := f.SetCellStr(sheet, name, updated); err != nil {
					return fmt.Errorf("failed to update cell %s!%s: %w", sheet, name, err)
				}
			}
		}
	}

	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("failed to write xlsx file: %w", err)
	}
	return nil
}
