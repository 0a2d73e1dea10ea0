package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/veildoc/veildoc/internal/consensus"
	"go.uber.org/zap"
)

func testKey(t *testing.T) *fernet.Key {
	t.Helper()
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatal(err)
	}
	return &key
}

func TestTagAndEncrypt(t *testing.T) {
	engine := NewEngine(testKey(t), zap.NewNop())

	t.Run("deduplicates by exact plaintext", func(t *testing.T) {
		records, lookup := engine.TagAndEncrypt([]consensus.Entry{
			{Category: "IC", Value: "930101-14-5566"},
			{Category: "IC", Value: "930101-14-5566"},
			{Category: "EMAIL", Value: "a@b.com"},
		})

		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if len(lookup) != 2 {
			t.Fatalf("got %d lookup entries, want 2", len(lookup))
		}
	})

	t.Run("tags are deterministic, ciphertexts independent", func(t *testing.T) {
		a, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "IC", Value: "930101-14-5566"}})
		b, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "IC", Value: "930101-14-5566"}})

		if a[0].Masked != b[0].Masked {
			t.Errorf("same value yielded different tags: %q vs %q", a[0].Masked, b[0].Masked)
		}
		// Fernet tokens embed a random IV; equality would mean a broken run.
		if a[0].Encrypted == b[0].Encrypted {
			t.Error("two encryptions produced identical ciphertext")
		}
	})

	t.Run("ciphertext round trips", func(t *testing.T) {
		key := testKey(t)
		engine := NewEngine(key, zap.NewNop())
		records, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "NAMES", Value: "Ahmad bin Ali"}})

		plain, err := DecryptValue(records[0].Encrypted, key)
		if err != nil {
			t.Fatalf("DecryptValue: %v", err)
		}
		if plain != "Ahmad bin Ali" {
			t.Errorf("got %q, want original plaintext", plain)
		}
	})

	t.Run("wrong key fails closed", func(t *testing.T) {
		records, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "NAMES", Value: "secret"}})
		if _, err := DecryptValue(records[0].Encrypted, testKey(t)); err == nil {
			t.Error("decryption with the wrong key succeeded")
		}
	})
}

func TestKeyLifecycle(t *testing.T) {
	t.Run("generates and reloads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.key")

		first, err := LoadOrGenerateKey(path, zap.NewNop())
		if err != nil {
			t.Fatalf("LoadOrGenerateKey: %v", err)
		}
		second, err := LoadOrGenerateKey(path, zap.NewNop())
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if first.Encode() != second.Encode() {
			t.Error("reload produced a different key")
		}
	})

	t.Run("invalid key file regenerated on mask path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.key")
		if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadOrGenerateKey(path, zap.NewNop()); err != nil {
			t.Fatalf("expected regeneration, got error: %v", err)
		}
	})

	t.Run("invalid key file fatal on restore path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.key")
		if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadKey(path); err == nil {
			t.Error("LoadKey accepted an invalid key file")
		}
	})

	t.Run("missing key file fatal on restore path", func(t *testing.T) {
		if _, err := LoadKey(filepath.Join(t.TempDir(), "missing.key")); err == nil {
			t.Error("LoadKey accepted a missing key file")
		}
	})
}

func TestMapping(t *testing.T) {
	t.Run("plaintext never persisted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.masked.json")
		key := testKey(t)
		engine := NewEngine(key, zap.NewNop())
		records, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "IC", Value: "930101-14-5566"}})

		if err := WriteMapping(path, records); err != nil {
			t.Fatalf("WriteMapping: %v", err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(raw), "930101-14-5566") {
			t.Error("mapping file contains plaintext")
		}

		// In-memory records keep their plaintext for the maskers.
		if records[0].Original != "930101-14-5566" {
			t.Error("WriteMapping mutated the in-memory record")
		}
	})

	t.Run("decrypt records round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.masked.json")
		key := testKey(t)
		engine := NewEngine(key, zap.NewNop())
		records, _ := engine.TagAndEncrypt([]consensus.Entry{
			{Category: "IC", Value: "930101-14-5566"},
			{Category: "EMAIL", Value: "a@b.com"},
		})

		if err := WriteMapping(path, records); err != nil {
			t.Fatal(err)
		}
		loaded, err := ReadMapping(path)
		if err != nil {
			t.Fatalf("ReadMapping: %v", err)
		}
		n, unresolved := DecryptRecords(loaded, key, zap.NewNop())
		if n != 2 {
			t.Fatalf("got %d usable records, want 2", n)
		}
		if len(unresolved) != 0 {
			t.Errorf("unexpected unresolved records: %v", unresolved)
		}
		if loaded[0].Original != "930101-14-5566" || loaded[1].Original != "a@b.com" {
			t.Errorf("decrypted originals wrong: %q, %q", loaded[0].Original, loaded[1].Original)
		}
	})

	t.Run("undecryptable record skipped, rest usable", func(t *testing.T) {
		key := testKey(t)
		engine := NewEngine(key, zap.NewNop())
		records, _ := engine.TagAndEncrypt([]consensus.Entry{{Category: "IC", Value: "930101-14-5566"}})
		records = append(records, &Record{Encrypted: "garbage", Label: "EMAIL"})

		n, unresolved := DecryptRecords(records, key, zap.NewNop())
		if n != 1 {
			t.Errorf("got %d usable records, want 1", n)
		}
		if len(unresolved) != 1 || unresolved[0] != "EMAIL#2" {
			t.Errorf("unresolved listing wrong: %v", unresolved)
		}
	})

	t.Run("mapping is a json array", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.masked.json")
		if err := WriteMapping(path, nil); err != nil {
			t.Fatal(err)
		}
		raw, _ := os.ReadFile(path)
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			t.Errorf("mapping is not a JSON array: %v", err)
		}
	})
}

func TestSplitByPage(t *testing.T) {
	records := []*Record{
		{Label: "IC", PageNumber: 2},
		{Label: "NAMES", PageNumber: 1},
		{Label: "EMAIL"},
	}
	pages := SplitByPage(records)

	if len(pages[0]) != 1 || len(pages[1]) != 1 || len(pages[2]) != 1 {
		t.Errorf("unexpected split: %v", pages)
	}
}
