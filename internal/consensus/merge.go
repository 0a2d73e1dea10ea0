package consensus

import (
	"sort"
	"strings"

	"github.com/veildoc/veildoc/internal/detect"
)

// Entry is one merged, labeled PII value. The grouping key is the
// case-normalized value; the emitted value keeps the casing of the first
// candidate seen for the group.
type Entry struct {
	Category string          `json:"category"`
	Value    string          `json:"value"`
	Votes    int             `json:"votes"`
	Sources  []detect.Source `json:"sources"`
}

// group accumulates all candidates sharing a normalized value.
type group struct {
	firstSeen int
	value     string // original casing of the first candidate
	members   []detect.Candidate
}

// Merge combines the candidate lists of all detectors into one deduplicated
// consensus set: at most one entry per distinct normalized value. Category
// disagreement is resolved by vote count, then by the highest fixed source
// priority among the category's voters, then lexicographically, never by
// map iteration order.
func Merge(lists [][]detect.Candidate) []Entry {
	groups := make(map[string]*group)
	order := 0

	for _, list := range lists {
		for _, cand := range list {
			key := strings.ToLower(strings.TrimSpace(cand.Value))
			if key == "" {
				continue
			}
			g, ok := groups[key]
			if !ok {
				g = &group{firstSeen: order, value: strings.TrimSpace(cand.Value)}
				groups[key] = g
				order++
			}
			g.members = append(g.members, cand)
		}
	}

	entries := make([]Entry, 0, len(groups))
	for _, g := range groups {
		entries = append(entries, g.resolve())
	}

	// Stable output order: first appearance in the input multiset.
	sort.Slice(entries, func(i, j int) bool {
		return groups[strings.ToLower(entries[i].Value)].firstSeen <
			groups[strings.ToLower(entries[j].Value)].firstSeen
	})

	return entries
}

// resolve picks the winning category for a group.
func (g *group) resolve() Entry {
	if len(g.members) == 1 {
		m := g.members[0]
		return Entry{
			Category: m.Category,
			Value:    g.value,
			Votes:    1,
			Sources:  []detect.Source{m.Source},
		}
	}

	votes := make(map[string]int)
	bestPriority := make(map[string]int)
	sourceSet := make(map[detect.Source]struct{})

	for _, m := range g.members {
		votes[m.Category]++
		if p := m.Source.Priority(); p > bestPriority[m.Category] {
			bestPriority[m.Category] = p
		}
		sourceSet[m.Source] = struct{}{}
	}

	categories := make([]string, 0, len(votes))
	for c := range votes {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	winner := categories[0]
	for _, c := range categories[1:] {
		if votes[c] > votes[winner] {
			winner = c
			continue
		}
		if votes[c] == votes[winner] && bestPriority[c] > bestPriority[winner] {
			winner = c
		}
	}

	sources := make([]detect.Source, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	return Entry{
		Category: winner,
		Value:    g.value,
		Votes:    votes[winner],
		Sources:  sources,
	}
}
