package detect

import (
	"context"
	"testing"
)

func candidatesByCategory(cands []Candidate) map[string][]string {
	out := make(map[string][]string)
	for _, c := range cands {
		out[c.Category] = append(out[c.Category], c.Value)
	}
	return out
}

func TestRuleDetector(t *testing.T) {
	d := NewRuleDetector()

	t.Run("extracts structured identifiers", func(t *testing.T) {
		text := "IC: 930101-14-5566, Email: ahmad@example.com, Phone: 012-3456789, DOB: 01/01/1993"
		cands, err := d.Detect(context.Background(), text)
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		got := candidatesByCategory(cands)

		if len(got[CategoryIC]) != 1 || got[CategoryIC][0] != "930101-14-5566" {
			t.Errorf("IC: got %v", got[CategoryIC])
		}
		if len(got[CategoryEmail]) != 1 || got[CategoryEmail][0] != "ahmad@example.com" {
			t.Errorf("EMAIL: got %v", got[CategoryEmail])
		}
		if len(got[CategoryPhone]) != 1 {
			t.Errorf("PHONE: got %v", got[CategoryPhone])
		}
		if len(got[CategoryDOB]) != 1 {
			t.Errorf("DOB: got %v", got[CategoryDOB])
		}
	})

	t.Run("plain words do not match", func(t *testing.T) {
		cands, err := d.Detect(context.Background(), "Bank: Public Bank, Name: Ahmad bin Ali")
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(cands) != 0 {
			t.Errorf("unexpected candidates: %v", cands)
		}
	})

	t.Run("money and gender terms", func(t *testing.T) {
		cands, err := d.Detect(context.Background(), "Salary RM 5,000.00 paid to LELAKI applicant")
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		got := candidatesByCategory(cands)
		if len(got[CategoryMoney]) != 1 {
			t.Errorf("MONEY: got %v", got[CategoryMoney])
		}
		if len(got[CategoryGender]) != 1 || got[CategoryGender][0] != "LELAKI" {
			t.Errorf("GENDER: got %v", got[CategoryGender])
		}
	})
}

func TestSourcePriority(t *testing.T) {
	order := []Source{SourceNER, SourceDictionary, SourceRule, SourceLLM}
	for i := 1; i < len(order); i++ {
		if order[i].Priority() <= order[i-1].Priority() {
			t.Errorf("%s (%d) should outrank %s (%d)",
				order[i], order[i].Priority(), order[i-1], order[i-1].Priority())
		}
	}
}
