package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store holds lookup dictionaries keyed by PII category (NAMES, ORG_NAMES,
// RACES, STATUS, LOCATIONS, RELIGIONS, ...). Reads are concurrent; writes
// only happen during loading and ingestion.
type Store struct {
	mu    sync.RWMutex
	terms map[string][]string
}

// dictFile is the on-disk JSON layout, one file per category.
type dictFile struct {
	Category string   `json:"category"`
	Terms    []string `json:"terms"`
}

// NewStore creates an empty dictionary store.
func NewStore() *Store {
	return &Store{terms: make(map[string][]string)}
}

// Load reads every *.json dictionary file from dir. A missing directory is
// not an error: the dictionary detector simply has nothing to match.
func Load(dir string, logger *zap.Logger) (*Store, error) {
	store := NewStore()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Dictionary directory missing, dictionary detector will be empty",
				zap.String("dir", dir))
			return store, nil
		}
		return nil, fmt.Errorf("failed to read dictionary directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read dictionary file", zap.String("file", path), zap.Error(err))
			continue
		}

		var df dictFile
		if err := json.Unmarshal(data, &df); err != nil {
			logger.Warn("Failed to parse dictionary file", zap.String("file", path), zap.Error(err))
			continue
		}
		if df.Category == "" {
			df.Category = strings.ToUpper(strings.TrimSuffix(entry.Name(), ".json"))
		}

		store.Add(df.Category, df.Terms...)
		logger.Debug("Dictionary loaded",
			zap.String("category", df.Category),
			zap.Int("terms", len(df.Terms)))
	}

	logger.Info("Dictionary store loaded",
		zap.Int("categories", len(store.Categories())),
		zap.Int("total_terms", store.Size()))

	return store, nil
}

// Add appends terms to a category, skipping blanks and duplicates.
func (s *Store) Add(category string, terms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.terms[category]))
	for _, t := range s.terms[category] {
		existing[strings.ToLower(t)] = struct{}{}
	}

	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := existing[strings.ToLower(t)]; ok {
			continue
		}
		existing[strings.ToLower(t)] = struct{}{}
		s.terms[category] = append(s.terms[category], t)
	}
}

// Terms returns a copy of the term list for a category.
func (s *Store) Terms(category string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.terms[category]))
	copy(out, s.terms[category])
	return out
}

// Categories returns the sorted list of categories with at least one term.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cats := make([]string, 0, len(s.terms))
	for c, terms := range s.terms {
		if len(terms) > 0 {
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return cats
}

// Size returns the total number of terms across all categories.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, terms := range s.terms {
		n += len(terms)
	}
	return n
}

// Save writes every category back to dir as one JSON file per category.
func (s *Store) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dictionary directory: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for category, terms := range s.terms {
		df := dictFile{Category: category, Terms: terms}
		data, err := json.MarshalIndent(df, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal dictionary %s: %w", category, err)
		}

		path := filepath.Join(dir, strings.ToLower(category)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write dictionary %s: %w", category, err)
		}
	}

	return nil
}
