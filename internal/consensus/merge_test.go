package consensus

import (
	"reflect"
	"testing"

	"github.com/veildoc/veildoc/internal/detect"
)

func TestMerge(t *testing.T) {
	t.Run("groups case-insensitively and keeps first casing", func(t *testing.T) {
		entries := Merge([][]detect.Candidate{
			{{Category: "NAMES", Value: "Ahmad bin Ali", Source: detect.SourceDictionary}},
			{{Category: "NAMES", Value: "AHMAD BIN ALI", Source: detect.SourceNER}},
		})

		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if entries[0].Value != "Ahmad bin Ali" {
			t.Errorf("casing not preserved from first candidate: %q", entries[0].Value)
		}
		if entries[0].Votes != 2 {
			t.Errorf("got %d votes, want 2", entries[0].Votes)
		}
	})

	t.Run("category disagreement resolved by votes", func(t *testing.T) {
		entries := Merge([][]detect.Candidate{
			{{Category: "NAMES", Value: "Jordan", Source: detect.SourceNER}},
			{{Category: "LOCATIONS", Value: "Jordan", Source: detect.SourceDictionary}},
			{{Category: "LOCATIONS", Value: "jordan", Source: detect.SourceNER}},
		})

		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if entries[0].Category != "LOCATIONS" {
			t.Errorf("got category %q, want LOCATIONS (2 votes vs 1)", entries[0].Category)
		}
	})

	t.Run("vote tie broken by source priority", func(t *testing.T) {
		entries := Merge([][]detect.Candidate{
			{{Category: "NAMES", Value: "Putrajaya", Source: detect.SourceNER}},
			{{Category: "LOCATIONS", Value: "Putrajaya", Source: detect.SourceLLM}},
		})

		if entries[0].Category != "LOCATIONS" {
			t.Errorf("got category %q, want LOCATIONS (llm outranks ner)", entries[0].Category)
		}
	})

	t.Run("full tie broken lexicographically", func(t *testing.T) {
		// Same votes, same source priority: ALPHA beats BETA.
		entries := Merge([][]detect.Candidate{
			{{Category: "BETA", Value: "x1", Source: detect.SourceRule}},
			{{Category: "ALPHA", Value: "x1", Source: detect.SourceRule}},
		})

		if entries[0].Category != "ALPHA" {
			t.Errorf("got category %q, want ALPHA", entries[0].Category)
		}
	})

	t.Run("deterministic first-seen output order", func(t *testing.T) {
		input := [][]detect.Candidate{
			{
				{Category: "IC", Value: "930101-14-5566", Source: detect.SourceRule},
				{Category: "NAMES", Value: "Ahmad", Source: detect.SourceDictionary},
			},
			{{Category: "NAMES", Value: "ahmad", Source: detect.SourceNER}},
		}

		want := []string{"930101-14-5566", "Ahmad"}
		for i := 0; i < 20; i++ {
			entries := Merge(input)
			var got []string
			for _, e := range entries {
				got = append(got, e.Value)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("iteration %d: got order %v, want %v", i, got, want)
			}
		}
	})

	t.Run("blank values dropped", func(t *testing.T) {
		entries := Merge([][]detect.Candidate{
			{{Category: "NAMES", Value: "   ", Source: detect.SourceNER}},
		})
		if len(entries) != 0 {
			t.Errorf("blank value produced %d entries", len(entries))
		}
	})
}
