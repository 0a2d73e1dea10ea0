package mask

import (
	"fmt"
	"os"

	"github.com/veildoc/veildoc/internal/vault"
)

// ReadTextFile reads a plain text or CSV file as one string for detection.
func ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

// MaskTextFile applies the tag substitutions to a plain text file.
func MaskTextFile(inPath, outPath string, lookup map[string]*vault.Record) error {
	content, err := ReadTextFile(inPath)
	if err != nil {
		return err
	}
	masked := ApplyTags(content, lookup)
	if err := os.WriteFile(outPath, []byte(masked), 0o644); err != nil {
		return fmt.Errorf("failed to write masked text file: %w", err)
	}
	return nil
}

// RestoreTextFile reverses MaskTextFile using the mapping records.
func RestoreTextFile(inPath, outPath string, records []*vault.Record) error {
	content, err := ReadTextFile(inPath)
	if err != nil {
		return err
	}
	restored := RestoreText(content, records)
	if err := os.WriteFile(outPath, []byte(restored), 0o644); err != nil {
		return fmt.Errorf("failed to write restored text file: %w", err)
	}
	return nil
}
