package consensus

import (
	"strings"

	"github.com/veildoc/veildoc/internal/detect"
	"go.uber.org/zap"
)

// alwaysOnCategories are structured identifiers masked unconditionally,
// regardless of the user's enabled-category selection.
var alwaysOnCategories = map[string]struct{}{
	detect.CategoryIC:          {},
	detect.CategoryPassport:    {},
	detect.CategoryEmail:       {},
	detect.CategoryPhone:       {},
	detect.CategoryDOB:         {},
	detect.CategoryBankAccount: {},
	detect.CategoryCreditCard:  {},
}

// IsAlwaysOn reports whether a category is masked unconditionally.
func IsAlwaysOn(category string) bool {
	_, ok := alwaysOnCategories[category]
	return ok
}

// Filter applies the enabled-category policy, the ignore list and the
// location allow-list to a consensus set.
type Filter struct {
	enabled     map[string]struct{}
	ignore      map[string]struct{}
	allowedLocs map[string]struct{}
	logger      *zap.Logger
}

// NewFilter builds a filter. enabledCategories is the user's selectable
// subset; ignoreWords are normalized phrases dropped on exact-word match;
// locationAllowList (optional) restricts LOCATIONS values to known places.
func NewFilter(enabledCategories, ignoreWords, locationAllowList []string, logger *zap.Logger) *Filter {
	f := &Filter{
		enabled:     make(map[string]struct{}, len(enabledCategories)),
		ignore:      make(map[string]struct{}, len(ignoreWords)),
		allowedLocs: make(map[string]struct{}, len(locationAllowList)),
		logger:      logger,
	}
	for _, c := range enabledCategories {
		f.enabled[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	for _, w := range ignoreWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			f.ignore[w] = struct{}{}
		}
	}
	for _, l := range locationAllowList {
		l = strings.ToUpper(strings.TrimSpace(l))
		if l != "" {
			f.allowedLocs[l] = struct{}{}
		}
	}
	return f
}

// Apply returns the entries that survive policy. Always-on categories are
// retained regardless of the enabled set; selectable categories require
// explicit enablement; ignore-list hits are dropped on whole-word match
// only, so substring containment never drops an entry.
func (f *Filter) Apply(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))

	for _, e := range entries {
		value := strings.TrimSpace(e.Value)
		if value == "" {
			continue
		}

		if f.isIgnored(value) {
			f.logger.Debug("Entry dropped by ignore list", zap.String("category", e.Category))
			continue
		}

		if !IsAlwaysOn(e.Category) {
			if _, ok := f.enabled[e.Category]; !ok {
				// User opted out of this category. Not an error.
				continue
			}
		}

		if e.Category == detect.CategoryLocations && len(f.allowedLocs) > 0 {
			out = append(out, f.filterLocation(e)...)
			continue
		}

		e.Value = value
		out = append(out, e)
	}

	return out
}

// isIgnored matches the whole normalized value, or the case where every
// whitespace token of the value is itself an ignore word. A naive substring
// check here caused false drops on short common fragments, so containment
// is deliberately not consulted.
func (f *Filter) isIgnored(value string) bool {
	norm := strings.ToLower(strings.TrimSpace(value))
	if _, ok := f.ignore[norm]; ok {
		return true
	}

	tokens := strings.Fields(norm)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if _, ok := f.ignore[tok]; !ok {
			return false
		}
	}
	return true
}

// filterLocation keeps only allow-listed place tokens from a LOCATIONS
// entry, one entry per matched place. An entry with no recognized place is
// dropped entirely.
func (f *Filter) filterLocation(e Entry) []Entry {
	upper := strings.ToUpper(strings.TrimSpace(e.Value))
	if _, ok := f.allowedLocs[upper]; ok {
		e.Value = upper
		return []Entry{e}
	}

	var out []Entry
	for _, word := range strings.Fields(upper) {
		if _, ok := f.allowedLocs[word]; ok {
			loc := e
			loc.Value = word
			out = append(out, loc)
		}
	}
	return out
}
