package mask

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/veildoc/veildoc/internal/vault"
)

// docxTextRun captures the text content of a single w:t run.
var docxTextRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// ReadDocxText extracts the plain paragraph text of a DOCX file for
// detection. Values split across styled runs are seen as separate
// fragments; that mirrors how the substitution below behaves too.
func ReadDocxText(path string) (string, error) {
	reader, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx file: %w", err)
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	matches := docxTextRun.FindAllStringSubmatch(content, -1)

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m[1])
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// MaskDocxFile applies the tag substitutions to every paragraph run,
// longest value first.
func MaskDocxFile(inPath, outPath string, lookup map[string]*vault.Record) error {
	reader, err := docx.ReadDocxFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to open docx file: %w", err)
	}
	defer reader.Close()

	doc := reader.Editable()

	values := make([]string, 0, len(lookup))
	for v := range lookup {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	for _, value := range values {
		if err := doc.Replace(value, lookup[value].Masked, -1); err != nil {
			return fmt.Errorf("failed to substitute docx value: %w", err)
		}
	}

	if err := doc.WriteToFile(outPath); err != nil {
		return fmt.Errorf("failed to write masked docx file: %w", err)
	}
	return nil
}

// RestoreDocxFile reverses MaskDocxFile using the mapping records.
func RestoreDocxFile(inPath, outPath string, records []*vault.Record) error {
	reader, err := docx.ReadDocxFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to open docx file: %w", err)
	}
	defer reader.Close()

	doc := reader.Editable()
	for _, r := range records {
		if r.Masked == "" || r.Original == "" {
			continue
		}
		if err := doc.Replace(r.Masked, r.Original, -1); err != nil {
			return fmt.Errorf("failed to restore docx value: %w", err)
		}
	}

	if err := doc.WriteToFile(outPath); err != nil {
		return fmt.Errorf("failed to write restored docx file: %w", err)
	}
	return nil
}
