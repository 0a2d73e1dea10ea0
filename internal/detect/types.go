package detect

import "context"

// Source identifies which kind of detector produced a candidate.
type Source string

const (
	SourceRule       Source = "rule"
	SourceDictionary Source = "dictionary"
	SourceNER        Source = "ner"
	SourceLLM        Source = "llm"
)

// Priority returns the fixed source-priority bonus used by the consensus
// merger to break category votes. LLM detections carry the most context,
// regex rules are precise, NER is the noisiest.
func (s Source) Priority() int {
	switch s {
	case SourceLLM:
		return 3
	case SourceRule:
		return 2
	case SourceDictionary:
		return 1
	default:
		return 0
	}
}

// PII category labels. The always-on set (structured identifiers) is
// defined in the consensus package.
const (
	CategoryIC          = "IC"
	CategoryPassport    = "PASSPORT"
	CategoryEmail       = "EMAIL"
	CategoryPhone       = "PHONE"
	CategoryDOB         = "DOB"
	CategoryBankAccount = "BANK_ACCOUNT"
	CategoryCreditCard  = "CREDIT_CARD"
	CategoryMoney       = "MONEY"
	CategoryGender      = "GENDER"
	CategoryNationality = "NATIONALITY"
	CategoryNames       = "NAMES"
	CategoryOrgNames    = "ORG_NAMES"
	CategoryLocations   = "LOCATIONS"
	CategoryRaces       = "RACES"
	CategoryReligions   = "RELIGIONS"
	CategoryStatus      = "STATUS"
)

// Candidate is a single raw PII detection. Candidates are transient: they
// only exist between a detector call and the consensus merge.
type Candidate struct {
	Category   string  `json:"category"`
	Value      string  `json:"value"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Detector is the uniform contract every detection source implements.
// Detect must not panic on malformed input; returning an empty slice is
// the correct response to anything it cannot handle.
type Detector interface {
	Name() string
	Source() Source
	// IsAvailable reports whether the detector can run at all (model
	// loaded, API key present). Unavailable detectors are skipped.
	IsAvailable() bool
	Detect(ctx context.Context, text string) ([]Candidate, error)
}
