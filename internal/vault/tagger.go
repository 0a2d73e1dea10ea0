package vault

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/veildoc/veildoc/internal/consensus"
	"go.uber.org/zap"
)

// Record is the persisted, reversible masking unit. Text-surface records
// carry the plaintext original; image-surface records carry the region
// geometry and the captured pixel patch instead.
type Record struct {
	Original  string `json:"original,omitempty"`
	Encrypted string `json:"encrypted"`
	Label     string `json:"label"`
	Masked    string `json:"masked,omitempty"`

	// Image-surface fields.
	BBox          [][2]int `json:"bbox,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	OriginalPatch string   `json:"original_patch,omitempty"`
	PageNumber    int      `json:"page_number,omitempty"`
}

// TagForValue derives the deterministic placeholder tag for a value. The
// hash covers the plaintext, not the position, so repeated values collapse
// to one tag and restoration can re-derive tags independent of ciphertext
// randomness.
func TagForValue(label, value string) string {
	sum := md5.Sum([]byte(value))
	return fmt.Sprintf("[ENC:%s_%s]", label, hex.EncodeToString(sum[:])[:8])
}

// Engine owns MaskingRecord creation: it encrypts each distinct value once
// per run and assigns its tag.
type Engine struct {
	key    *fernet.Key
	logger *zap.Logger
}

// NewEngine creates a tagging engine bound to a document key.
func NewEngine(key *fernet.Key, logger *zap.Logger) *Engine {
	return &Engine{key: key, logger: logger}
}

// TagAndEncrypt processes the filtered consensus set. Values are
// deduplicated across the whole list (by exact plaintext); each distinct
// value is encrypted exactly once. Encryption failure excludes the value
// from masking but never aborts the document.
//
// The returned slice preserves first-seen order; the map keys plaintext
// values to their records for the maskers.
func (e *Engine) TagAndEncrypt(entries []consensus.Entry) ([]*Record, map[string]*Record) {
	records := make([]*Record, 0, len(entries))
	lookup := make(map[string]*Record, len(entries))

	for _, entry := range entries {
		value := strings.TrimSpace(entry.Value)
		if value == "" {
			continue
		}
		if _, seen := lookup[value]; seen {
			continue
		}

		cipher, err := e.EncryptValue(value)
		if err != nil {
			e.logger.Error("Failed to encrypt value, excluding from mask set",
				zap.String("label", entry.Category),
				zap.Error(err))
			continue
		}

		record := &Record{
			Original:  value,
			Encrypted: cipher,
			Label:     entry.Category,
			Masked:    TagForValue(entry.Category, value),
		}
		records = append(records, record)
		lookup[value] = record
	}

	return records, lookup
}

// EncryptValue encrypts a single plaintext with the document key.
func (e *Engine) EncryptValue(value string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(value), e.key)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// DecryptValue reverses EncryptValue. Tokens never expire: the mapping
// file, not time, is the authority for restoration.
func DecryptValue(cipher string, key *fernet.Key) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(cipher), 0, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("ciphertext did not verify against key")
	}
	return string(msg), nil
}
