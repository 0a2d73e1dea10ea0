package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/fernet/fernet-go"
	"go.uber.org/zap"
)

// LoadOrGenerateKey returns the document key stored at path, generating
// and persisting a fresh one when the file is missing or does not decode.
// Masking may regenerate; restoration must not (see LoadKey).
func LoadOrGenerateKey(path string, logger *zap.Logger) (*fernet.Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, derr := fernet.DecodeKey(strings.TrimSpace(string(data)))
		if derr == nil {
			return key, nil
		}
		logger.Warn("Key file invalid, regenerating", zap.Error(derr))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var key fernet.Key
	if err := key.Generate(); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.WriteFile(path, []byte(key.Encode()), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return &key, nil
}

// LoadKey loads the key for restoration. A missing or invalid key is fatal
// here: a regenerated key cannot decrypt prior ciphertext.
func LoadKey(path string) (*fernet.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := fernet.DecodeKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid key file: %w", err)
	}
	return key, nil
}
