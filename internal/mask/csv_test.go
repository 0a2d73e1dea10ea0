package mask

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCSVMasking(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.csv")
	maskedPath := filepath.Join(dir, "masked.csv")
	restoredPath := filepath.Join(dir, "restored.csv")

	content := "name,ic,notes\nAhmad bin Ali,930101-14-5566,knows Ahmad bin Ali well\n"
	if err := os.WriteFile(inPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lookup := lookupFor(map[string]string{
		"Ahmad bin Ali":  "NAMES",
		"930101-14-5566": "IC",
	})

	if err := MaskCSVFile(inPath, maskedPath, lookup); err != nil {
		t.Fatalf("MaskCSVFile: %v", err)
	}
	masked, err := os.ReadFile(maskedPath)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("exact cell match replaces whole cell", func(t *testing.T) {
		if !strings.Contains(string(masked), lookup["Ahmad bin Ali"].Masked) {
			t.Errorf("name cell not masked: %s", masked)
		}
		if !strings.Contains(string(masked), lookup["930101-14-5566"].Masked) {
			t.Errorf("ic cell not masked: %s", masked)
		}
	})

	t.Run("partial cell match is left alone", func(t *testing.T) {
		// The notes cell contains the value as a substring only.
		if !strings.Contains(string(masked), "knows Ahmad bin Ali well") {
			t.Errorf("substring-containing cell was rewritten: %s", masked)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := RestoreCSVFile(maskedPath, restoredPath, recordsFor(lookup)); err != nil {
			t.Fatalf("RestoreCSVFile: %v", err)
		}
		restored, err := os.ReadFile(restoredPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(restored) != content {
			t.Errorf("round trip mismatch:\n got %q\nwant %q", restored, content)
		}
	})
}
