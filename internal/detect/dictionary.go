package detect

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/veildoc/veildoc/internal/dictionary"
)

// DictionaryDetector matches known terms (names, organisations, races,
// statuses, locations, religions) from the dictionary store. Matches are
// whole-word and case-insensitive, and the original casing found in the
// text is what gets reported.
type DictionaryDetector struct {
	store *dictionary.Store

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewDictionaryDetector creates a detector over the given store.
func NewDictionaryDetector(store *dictionary.Store) *DictionaryDetector {
	return &DictionaryDetector{
		store:    store,
		patterns: make(map[string]*regexp.Regexp),
	}
}

func (d *DictionaryDetector) Name() string { return "dictionary" }

func (d *DictionaryDetector) Source() Source { return SourceDictionary }

func (d *DictionaryDetector) IsAvailable() bool {
	return d.store != nil && d.store.Size() > 0
}

// Detect scans the text for every dictionary term. A cheap lowercase
// Contains check gates the regex so large dictionaries stay affordable.
func (d *DictionaryDetector) Detect(ctx context.Context, text string) ([]Candidate, error) {
	textLower := strings.ToLower(text)
	var out []Candidate

	for _, category := range d.store.Categories() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		for _, term := range d.store.Terms(category) {
			if !strings.Contains(textLower, strings.ToLower(term)) {
				continue
			}
			for _, match := range d.pattern(term).FindAllString(text, -1) {
				out = append(out, Candidate{
					Category:   category,
					Value:      match,
					Source:     SourceDictionary,
					Confidence: 0.9,
				})
			}
		}
	}

	return out, nil
}

// pattern returns the cached whole-word regexp for a term.
func (d *DictionaryDetector) pattern(term string) *regexp.Regexp {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.patterns[term]; ok {
		return p
	}
	p := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
	d.patterns[term] = p
	return p
}
