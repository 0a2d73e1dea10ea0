package dictionary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestStore(t *testing.T) {
	t.Run("add deduplicates case-insensitively", func(t *testing.T) {
		s := NewStore()
		s.Add("NAMES", "Ahmad", "ahmad", "AHMAD", "Siti")

		if got := s.Terms("NAMES"); len(got) != 2 {
			t.Errorf("got %v, want 2 distinct terms", got)
		}
		if s.Size() != 2 {
			t.Errorf("got size %d, want 2", s.Size())
		}
	})

	t.Run("blank terms skipped", func(t *testing.T) {
		s := NewStore()
		s.Add("NAMES", "", "  ", "Ahmad")
		if s.Size() != 1 {
			t.Errorf("got size %d, want 1", s.Size())
		}
	})

	t.Run("save and load round trip", func(t *testing.T) {
		dir := t.TempDir()
		s := NewStore()
		s.Add("NAMES", "Ahmad", "Siti")
		s.Add("ORG_NAMES", "Public Bank")

		if err := s.Save(dir); err != nil {
			t.Fatalf("Save: %v", err)
		}
		loaded, err := Load(dir, zap.NewNop())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if loaded.Size() != 3 {
			t.Errorf("got size %d, want 3", loaded.Size())
		}
		if got := loaded.Categories(); len(got) != 2 {
			t.Errorf("got categories %v, want 2", got)
		}
	})

	t.Run("missing directory is empty, not an error", func(t *testing.T) {
		s, err := Load(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if s.Size() != 0 {
			t.Errorf("got size %d, want 0", s.Size())
		}
	})
}

func TestIngestCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.csv")
	content := "term,category\nAhmad bin Ali,NAMES\nPublic Bank,org_names\nX,NAMES\n,NAMES\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	ingestor := NewIngestor(store, nil, zap.NewNop())

	result, err := ingestor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	// Single-character and blank rows are rejected by validation.
	if result.Loaded != 2 {
		t.Errorf("got %d loaded, want 2 (skipped=%d)", result.Loaded, result.Skipped)
	}
	if result.Skipped != 2 {
		t.Errorf("got %d skipped, want 2", result.Skipped)
	}

	// Categories are normalized to upper case on ingest.
	if got := store.Terms("ORG_NAMES"); len(got) != 1 || got[0] != "Public Bank" {
		t.Errorf("ORG_NAMES terms: %v", got)
	}
}

func TestIngestJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.json")
	content := `{"term":"Ahmad","category":"NAMES"}` + "\n" + `{"term":"Melayu","category":"RACES"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	result, err := NewIngestor(store, nil, zap.NewNop()).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.Loaded != 2 {
		t.Errorf("got %d loaded, want 2", result.Loaded)
	}
}

func TestDetectFileFormat(t *testing.T) {
	cases := map[string]FileFormat{
		"a.csv":     FormatCSV,
		"b.PARQUET": FormatParquet,
		"c.jsonl":   FormatJSON,
		"d.txt":     FormatUnknown,
	}
	for path, want := range cases {
		if got := DetectFileFormat(path); got != want {
			t.Errorf("%s: got %v, want %v", path, got, want)
		}
	}
}
