package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransactionStatus tracks whether a bank movement has been reconciled.
type BankTransactionStatus string

const (
	// BankUnmatched means the transaction still needs a ledger counterpart.
	BankUnmatched BankTransactionStatus = "UNMATCHED"
	// BankMatched means the transaction is linked to exactly one voucher.
	BankMatched BankTransactionStatus = "MATCHED"
)

// BankTransaction is a single movement from a bank statement.
type BankTransaction struct {
	Date          time.Time
	ID            string
	ClientID      string
	AccountID     string
	Description   string
	StructuredRef string // payment reference from the statement, optional
	FiTID         string // bank-assigned id, used for import dedup
	Hash          string
	Status        BankTransactionStatus
	Amount        decimal.Decimal
}

// GenerateHash creates a unique hash for duplicate detection on import.
func (t *BankTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.AccountID,
		t.FiTID,
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// MatchStrategy names the heuristic that produced a candidate, in strictly
// decreasing trust order.
type MatchStrategy string

const (
	// StrategyStructuredRef is an exact structured payment reference match.
	StrategyStructuredRef MatchStrategy = "structured_ref"
	// StrategyInvoiceNumber found the voucher's invoice number verbatim in the description.
	StrategyInvoiceNumber MatchStrategy = "invoice_number"
	// StrategyAmountDate is an exact amount match within the date window.
	StrategyAmountDate MatchStrategy = "amount_date"
	// StrategyFuzzy combines text similarity with amount tolerance.
	StrategyFuzzy MatchStrategy = "fuzzy"
)

// Rank returns the strategy's priority; lower is stronger.
func (s MatchStrategy) Rank() int {
	switch s {
	case StrategyStructuredRef:
		return 0
	case StrategyInvoiceNumber:
		return 1
	case StrategyAmountDate:
		return 2
	case StrategyFuzzy:
		return 3
	}
	return 4
}

// MatchCandidate is a scored, provisional pairing between a bank transaction
// and a posted voucher.
type MatchCandidate struct {
	TransactionID string        `json:"transaction_id"`
	VoucherID     string        `json:"voucher_id"`
	Strategy      MatchStrategy `json:"strategy"`
	Confidence    int           `json:"confidence"`
	DayDistance   int           `json:"day_distance"`
	AmountExact   bool          `json:"amount_exact"`
}

// Match is an accepted (transaction, voucher) pairing. Pairs are unique:
// a voucher, once matched, is excluded from further candidate generation.
type Match struct {
	CreatedAt     time.Time
	ID            string
	TransactionID string
	VoucherID     string
	Strategy      MatchStrategy
	Confidence    int
}

// MatchStats summarizes one matcher run for callers.
type MatchStats struct {
	Fetched     int `json:"fetched"`
	AutoMatched int `json:"auto_matched"`
	Escalated   int `json:"escalated"`
}
