package model

import "time"

// PatternOutcome describes how a booking for a (vendor, account) pair ended.
type PatternOutcome string

const (
	// OutcomeAutoPosted means the suggestion cleared the threshold and posted directly.
	OutcomeAutoPosted PatternOutcome = "AUTO_POSTED"
	// OutcomeApproved means a reviewer confirmed the suggestion unchanged.
	OutcomeApproved PatternOutcome = "APPROVED"
	// OutcomeCorrected means a reviewer replaced the suggested account.
	OutcomeCorrected PatternOutcome = "CORRECTED"
	// OutcomeRejected means a reviewer discarded the suggestion.
	OutcomeRejected PatternOutcome = "REJECTED"
)

// Pattern accumulates booking outcomes for a (client, vendor, account)
// combination. Patterns are never deleted, only accumulated.
type Pattern struct {
	LastUsed     time.Time
	ClientID     string
	VendorID     string
	Account      string
	TaxCode      string
	UseCount     int
	SuccessCount int
}

// SuccessRate returns the share of uses that were confirmed correct.
func (p *Pattern) SuccessRate() float64 {
	if p.UseCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.UseCount)
}

// VendorProfile aggregates a vendor's booking history for the scorer:
// how often we have seen them, which account dominates their bookings, and
// the statistical shape of their invoice totals.
type VendorProfile struct {
	DominantAccount string
	TotalBookings   int
	DominantShare   float64 // share of bookings going to the dominant account
	AmountMean      float64
	AmountStdDev    float64
}
