package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/dictionary"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dictDir := filepath.Join(t.TempDir(), "dicts")
	store := dictionary.NewStore()
	store.Add("NAMES", "Ahmad bin Ali")
	store.Add("ORG_NAMES", "Public Bank")
	if err := store.Save(dictDir); err != nil {
		t.Fatal(err)
	}

	cfg := config.GetDefaults()
	cfg.Detectors.Dictionary.Path = dictDir
	cfg.Detectors.NER.Enabled = false
	cfg.Detectors.LLM.Enabled = false
	cfg.Cache.Enabled = false
	cfg.Privacy.EnabledCategories = []string{"NAMES"}
	return cfg
}

func TestClassify(t *testing.T) {
	supported := []string{"a.txt", "b.csv", "c.docx", "d.xlsx", "e.png", "f.JPG", "g.pdf"}
	for _, name := range supported {
		if _, err := classify(name); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}

	_, err := classify("report.pptx")
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Errorf("got %v, want UnsupportedFormatError", err)
	}
}

func TestArtifactPaths(t *testing.T) {
	art := artifactPaths("/uploads/report.pdf", "/out")
	if art.MaskedPath != "/out/report.masked.pdf" {
		t.Errorf("masked: %s", art.MaskedPath)
	}
	if art.MappingPath != "/out/report.masked.json" {
		t.Errorf("mapping: %s", art.MappingPath)
	}
	if art.KeyPath != "/out/report.key" {
		t.Errorf("key: %s", art.KeyPath)
	}

	if got := restoredPath("/out/report.masked.pdf", "/restore"); got != "/restore/report.restored.pdf" {
		t.Errorf("restored: %s", got)
	}
}

func TestMaskTextDocument(t *testing.T) {
	pipe, err := New(testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pipe.Close()

	dir := t.TempDir()
	inPath := filepath.Join(dir, "statement.txt")
	original := "IC: 930101-14-5566, Name: Ahmad bin Ali, Bank: Public Bank"
	if err := os.WriteFile(inPath, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := pipe.Mask(context.Background(), inPath, dir, Options{TaskID: "t1"})
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}

	maskedBytes, err := os.ReadFile(result.Artifacts.MaskedPath)
	if err != nil {
		t.Fatal(err)
	}
	masked := string(maskedBytes)

	t.Run("always-on and enabled categories masked", func(t *testing.T) {
		if strings.Contains(masked, "930101-14-5566") || !strings.Contains(masked, "[ENC:IC_") {
			t.Errorf("IC not masked: %q", masked)
		}
		if strings.Contains(masked, "Ahmad bin Ali") || !strings.Contains(masked, "[ENC:NAMES_") {
			t.Errorf("name not masked: %q", masked)
		}
	})

	t.Run("disabled selectable category left alone", func(t *testing.T) {
		if !strings.Contains(masked, "Public Bank") {
			t.Errorf("ORG_NAMES masked despite not being enabled: %q", masked)
		}
	})

	t.Run("mapping holds no plaintext", func(t *testing.T) {
		mapping, err := os.ReadFile(result.Artifacts.MappingPath)
		if err != nil {
			t.Fatal(err)
		}
		for _, secret := range []string{"930101-14-5566", "Ahmad bin Ali"} {
			if strings.Contains(string(mapping), secret) {
				t.Errorf("mapping leaks %q", secret)
			}
		}
	})

	t.Run("masking is idempotent", func(t *testing.T) {
		again, err := pipe.Mask(context.Background(), result.Artifacts.MaskedPath, t.TempDir(), Options{})
		if err != nil {
			t.Fatalf("second Mask: %v", err)
		}
		remasked, err := os.ReadFile(again.Artifacts.MaskedPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(remasked) != masked {
			t.Errorf("second pass changed output:\n first: %q\nsecond: %q", masked, remasked)
		}
	})

	t.Run("restore round trip", func(t *testing.T) {
		outDir := t.TempDir()
		restored, err := pipe.Restore(context.Background(),
			result.Artifacts.MaskedPath, result.Artifacts.MappingPath, result.Artifacts.KeyPath,
			outDir, Options{})
		if err != nil {
			t.Fatalf("Restore: %v", err)
		}
		got, err := os.ReadFile(restored.OutputPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != original {
			t.Errorf("round trip mismatch:\n got %q\nwant %q", got, original)
		}
	})

	t.Run("restore refuses a wrong key", func(t *testing.T) {
		otherDir := t.TempDir()
		otherPath := filepath.Join(otherDir, "other.txt")
		if err := os.WriteFile(otherPath, []byte("IC: 880101-10-1234"), 0o644); err != nil {
			t.Fatal(err)
		}
		other, err := pipe.Mask(context.Background(), otherPath, otherDir, Options{})
		if err != nil {
			t.Fatal(err)
		}

		res, err := pipe.Restore(context.Background(),
			result.Artifacts.MaskedPath, result.Artifacts.MappingPath, other.Artifacts.KeyPath,
			t.TempDir(), Options{})
		if err != nil {
			return // acceptable: fail-closed surfaced as error
		}
		// Wrong key must never yield the plaintext.
		if res.Restored != 0 {
			t.Errorf("restored %d records with the wrong key", res.Restored)
		}
	})

	t.Run("unsupported format rejected", func(t *testing.T) {
		badPath := filepath.Join(dir, "deck.pptx")
		if err := os.WriteFile(badPath, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := pipe.Mask(context.Background(), badPath, dir, Options{})
		var unsupported *UnsupportedFormatError
		if !errors.As(err, &unsupported) {
			t.Errorf("got %v, want UnsupportedFormatError", err)
		}
	})
}

func TestMaskCSVDocument(t *testing.T) {
	pipe, err := New(testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pipe.Close()

	dir := t.TempDir()
	inPath := filepath.Join(dir, "people.csv")
	original := "name,ic\nAhmad bin Ali,930101-14-5566\n"
	if err := os.WriteFile(inPath, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := pipe.Mask(context.Background(), inPath, dir, Options{})
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if result.Masked != 2 {
		t.Errorf("got %d masked values, want 2", result.Masked)
	}

	outDir := t.TempDir()
	restored, err := pipe.Restore(context.Background(),
		result.Artifacts.MaskedPath, result.Artifacts.MappingPath, result.Artifacts.KeyPath,
		outDir, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := os.ReadFile(restored.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != original {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", got, original)
	}
}
