package detect

import (
	"context"
	"regexp"
	"strings"
)

// Rule is a single regex extraction rule.
type Rule struct {
	Category   string
	Pattern    *regexp.Regexp
	Confidence float64
}

// DefaultRules returns the built-in structured-PII extraction rules.
func DefaultRules() []Rule {
	return []Rule{
		{CategoryIC, regexp.MustCompile(`\b\d{6}-\d{2}-\d{4}\b`), 0.99},
		{CategoryEmail, regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`), 0.97},
		{CategoryDOB, regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), 0.90},
		{CategoryBankAccount, regexp.MustCompile(`\b\d{10,16}\b`), 0.80},
		{CategoryPassport, regexp.MustCompile(`\b[A-Z]\d{7}\b`), 0.90},
		{CategoryPhone, regexp.MustCompile(`(\+60\d{1,2}[-\s]?\d{6,8}|\b01\d[-\s]?\d{7,8}\b)`), 0.92},
		{CategoryMoney, regexp.MustCompile(`\bRM\s?\d+(?:,\d{3})*(?:\.\d{2})?\b`), 0.85},
		{CategoryGender, regexp.MustCompile(`(?i)\b(LELAKI|PEREMPUAN|MALE|FEMALE)\b`), 0.85},
		{CategoryNationality, regexp.MustCompile(`(?i)\b(WARGANEGARA|WARGA ASING|CITIZEN|NON-CITIZEN)\b`), 0.85},
	}
}

// RuleDetector extracts structured PII with regular expressions.
type RuleDetector struct {
	rules []Rule
}

// NewRuleDetector creates a rule detector with the default rule set.
func NewRuleDetector() *RuleDetector {
	return &RuleDetector{rules: DefaultRules()}
}

// NewRuleDetectorWithRules creates a rule detector with a custom rule set.
func NewRuleDetectorWithRules(rules []Rule) *RuleDetector {
	return &RuleDetector{rules: rules}
}

func (d *RuleDetector) Name() string { return "rules" }

func (d *RuleDetector) Source() Source { return SourceRule }

func (d *RuleDetector) IsAvailable() bool { return true }

// Detect runs every rule over the text and returns one candidate per match.
func (d *RuleDetector) Detect(ctx context.Context, text string) ([]Candidate, error) {
	var out []Candidate
	for _, rule := range d.rules {
		for _, match := range rule.Pattern.FindAllString(text, -1) {
			value := strings.TrimSpace(match)
			if value == "" {
				continue
			}
			out = append(out, Candidate{
				Category:   rule.Category,
				Value:      value,
				Source:     SourceRule,
				Confidence: rule.Confidence,
			})
		}
	}
	return out, nil
}
