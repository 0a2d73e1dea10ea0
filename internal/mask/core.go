package mask

import (
	"regexp"
	"sort"
	"strings"

	"github.com/veildoc/veildoc/internal/vault"
)

// tagPattern matches inserted placeholder tags. Substitution never touches
// text inside a tag span, which is what makes masking idempotent.
var tagPattern = regexp.MustCompile(`\[ENC:[^\]]+\]`)

// ApplyTags substitutes every tagged value in text with its placeholder.
// Values are applied longest-first so a short value that is a substring of
// a longer one cannot corrupt the longer value's tag, and each pass only
// rewrites the spans between existing tags.
func ApplyTags(text string, lookup map[string]*vault.Record) string {
	values := make([]string, 0, len(lookup))
	for v := range lookup {
		values = append(values, v)
	}
	// Longest first; ties broken lexicographically for determinism.
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	for _, value := range values {
		text = substituteOutsideTags(text, value, lookup[value].Masked, boundaryPattern(value))
	}
	return text
}

// boundaryPattern compiles the word-boundary matcher for single-digit
// values, once per value rather than per segment. A lone digit without
// boundaries would mangle every longer number containing it.
func boundaryPattern(value string) *regexp.Regexp {
	if len(value) == 1 && value >= "0" && value <= "9" {
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(value) + `\b`)
	}
	return nil
}

// substituteOutsideTags splits text on existing tag spans and substitutes
// only within the gaps.
func substituteOutsideTags(text, value, tag string, re *regexp.Regexp) string {
	if value == "" {
		return text
	}

	spans := tagPattern.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return replaceValue(text, value, tag, re)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, span := range spans {
		b.WriteString(replaceValue(text[prev:span[0]], value, tag, re))
		b.WriteString(text[span[0]:span[1]])
		prev = span[1]
	}
	b.WriteString(replaceValue(text[prev:], value, tag, re))
	return b.String()
}

// replaceValue swaps value for tag in a tag-free segment.
func replaceValue(segment, value, tag string, re *regexp.Regexp) string {
	if re != nil {
		return re.ReplaceAllLiteralString(segment, tag)
	}
	return strings.ReplaceAll(segment, value, tag)
}

// RestoreText reverses ApplyTags using the mapping records. Tags are
// fixed-format and non-overlapping by construction, so ordering does not
// matter, but replacement is exact-string, never regex-interpreted.
func RestoreText(text string, records []*vault.Record) string {
	for _, r := range records {
		if r.Masked == "" || r.Original == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.Masked, r.Original)
	}
	return text
}
