package types

// Evidence is a text snippet with its source that can back a claim. Evidence
// items are numbered from 1 when cited.
type Evidence struct {
	Snippet  string  `json:"snippet"`
	SourceID string  `json:"source_id"`
	Locator  string  `json:"locator,omitempty"`
	Weight   float64 `json:"weight"`
}

// CitationCheck is the verdict on one inline citation marker.
type CitationCheck struct {
	Index     int     `json:"index"`
	Sentence  int     `json:"sentence"`
	InRange   bool    `json:"in_range"`
	Supported bool    `json:"supported"`
	Overlap   float64 `json:"overlap"`
}

// Valid reports whether the citation points at evidence that backs its claim.
func (c CitationCheck) Valid() bool {
	return c.InRange && c.Supported
}

// ValidationResult is computed per answer and never stored.
type ValidationResult struct {
	Citations         []CitationCheck `json:"citations"`
	UnsupportedClaims []string        `json:"unsupported_claims,omitempty"`
	UncitedClaims     []string        `json:"uncited_claims,omitempty"`
	CitationAccuracy  float64         `json:"citation_accuracy"`
	ClaimSupportRatio float64         `json:"claim_support_ratio"`
	ConfidenceScore   float64         `json:"confidence_score"`
}

// InvalidCitations returns the checks that failed.
func (v *ValidationResult) InvalidCitations() []CitationCheck {
	var out []CitationCheck
	for _, c := range v.Citations {
		if !c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
