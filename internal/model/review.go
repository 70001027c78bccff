package model

import "time"

// ReviewItemStatus tracks the review state machine. PENDING transitions
// exactly once to a terminal state; terminal states are final.
type ReviewItemStatus string

const (
	// ReviewPending means the item is waiting for a human decision.
	ReviewPending ReviewItemStatus = "PENDING"
	// ReviewApproved means the original suggestion was posted as-is.
	ReviewApproved ReviewItemStatus = "APPROVED"
	// ReviewRejected means the item was discarded without posting.
	ReviewRejected ReviewItemStatus = "REJECTED"
	// ReviewCorrected means the item was posted with human-corrected lines.
	ReviewCorrected ReviewItemStatus = "CORRECTED"
)

// IsTerminal reports whether the status is final.
func (s ReviewItemStatus) IsTerminal() bool {
	switch s {
	case ReviewApproved, ReviewRejected, ReviewCorrected:
		return true
	case ReviewPending:
		return false
	}
	return false
}

// ReviewItemType distinguishes what kind of decision an item asks for.
type ReviewItemType string

const (
	// ReviewTypeBooking asks the reviewer to confirm or correct a booking suggestion.
	ReviewTypeBooking ReviewItemType = "booking"
	// ReviewTypeBankMatch asks the reviewer to pick among ambiguous match candidates.
	ReviewTypeBankMatch ReviewItemType = "bank_match"
)

// ReviewItem is an entry in the manual review queue. It carries a snapshot
// of the scorer's verdict (or the matcher's candidate set) taken at creation
// time, so the reviewer sees what the machine saw.
type ReviewItem struct {
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	Confidence      *ConfidenceResult
	ID              string
	ClientID        string
	SourceRef       string
	AssignedTo      string
	ResolvedBy      string
	Notes           string
	VoucherID       string // set once resolution produced a voucher
	Type            ReviewItemType
	Status          ReviewItemStatus
	Candidates      []MatchCandidate // populated for bank_match items
	Priority        int              // lower score -> higher priority (0 is highest)
	Candidate       *InvoiceCandidate
}

// PriorityFromScore derives queue priority from a confidence score: the less
// the machine trusts a suggestion, the sooner a human should look at it.
func PriorityFromScore(score int) int {
	switch {
	case score < 20:
		return 0
	case score < 40:
		return 1
	case score < 60:
		return 2
	default:
		return 3
	}
}
