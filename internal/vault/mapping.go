package vault

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fernet/fernet-go"
	"go.uber.org/zap"
)

// WriteMapping persists a mapping file: a JSON array of records, one file
// per document. The layout is format-stable; restore compatibility depends
// on it. Plaintext originals are stripped before writing: the mapping
// carries ciphertext only, and restoration re-derives the plaintext with
// the document key.
func WriteMapping(path string, records []*Record) error {
	if records == nil {
		records = []*Record{}
	}
	sanitized := make([]*Record, len(records))
	for i, r := range records {
		c := *r
		c.Original = ""
		sanitized[i] = &c
	}
	data, err := json.MarshalIndent(sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}

// ReadMapping loads a mapping file.
func ReadMapping(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	return records, nil
}

// DecryptRecords fills each record's Original by decrypting its ciphertext.
// A record that fails to verify is logged and left blank; the others still
// restore. Returns the number of usable records and the identifiers of those
// that could not be resolved, so partial restoration is never silent.
func DecryptRecords(records []*Record, key *fernet.Key, logger *zap.Logger) (int, []string) {
	usable := 0
	var unresolved []string
	for i, r := range records {
		if r.Encrypted == "" {
			continue
		}
		plain, err := DecryptValue(r.Encrypted, key)
		if err != nil {
			logger.Warn("Record did not decrypt, skipping",
				zap.Int("record", i+1),
				zap.String("label", r.Label),
				zap.Error(err))
			unresolved = append(unresolved, recordID(r, i))
			continue
		}
		r.Original = plain
		usable++
	}
	return usable, unresolved
}

// recordID names a record in result payloads: the visible tag for text
// surfaces, the label plus position for image regions.
func recordID(r *Record, i int) string {
	if r.Masked != "" {
		return r.Masked
	}
	return fmt.Sprintf("%s#%d", r.Label, i+1)
}

// SplitByPage groups records by page number. Records without a page stamp
// (the legacy, single-page format) land under page 0.
func SplitByPage(records []*Record) map[int][]*Record {
	pages := make(map[int][]*Record)
	for _, r := range records {
		pages[r.PageNumber] = append(pages[r.PageNumber], r)
	}
	return pages
}
