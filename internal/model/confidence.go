package model

// Confidence factor names used in the score breakdown. The breakdown is kept
// verbatim on queued review items so reviewers can see why an item landed in
// front of them.
const (
	FactorFamiliarity       = "counterparty_familiarity"
	FactorHistory           = "historical_similarity"
	FactorAmountConsistency = "amount_consistency"
	FactorPatternMatch      = "pattern_match"
	FactorReasonableness    = "amount_reasonableness"
)

// Escalation flags set by the scorer when a candidate cannot be trusted at all.
const (
	EscalationMissingVendor    = "missing_vendor"
	EscalationNegativeAmount   = "negative_amount"
	EscalationMissingAccount   = "missing_suggested_account"
	EscalationAmountMismatch   = "amount_mismatch"
	EscalationUnusualAmount    = "unusual_amount"
	EscalationUnknownVendor    = "unknown_vendor"
)

// ConfidenceResult is the scorer's verdict on a booking suggestion.
// It is embedded into a ReviewItem when the score falls below the auto-post
// threshold and discarded otherwise.
type ConfidenceResult struct {
	Factors     map[string]int `json:"factors"`
	Escalations []string       `json:"escalations,omitempty"`
	Score       int            `json:"score"`
}

// Escalated reports whether any escalation flag is set.
func (r *ConfidenceResult) Escalated() bool {
	return len(r.Escalations) > 0
}

// HasEscalation reports whether a specific flag is set.
func (r *ConfidenceResult) HasEscalation(flag string) bool {
	for _, e := range r.Escalations {
		if e == flag {
			return true
		}
	}
	return false
}
