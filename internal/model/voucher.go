package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherStatus indicates the lifecycle state of a persisted voucher.
// Only POSTED vouchers exist in storage; failed attempts are never written.
type VoucherStatus string

const (
	// StatusPosted is the terminal (and only persisted) voucher state.
	StatusPosted VoucherStatus = "POSTED"
)

// Voucher is an immutable, balanced set of ledger lines representing one
// accounting transaction. Once posted it is never mutated; corrections are
// made by a new offsetting voucher referencing this one.
type Voucher struct {
	Date           time.Time     `json:"date"`
	CreatedAt      time.Time     `json:"created_at"`
	ID             string        `json:"id"`
	ClientID       string        `json:"client_id"`
	Series         string        `json:"series"`
	Description    string        `json:"description,omitempty"`
	SourceRef      string        `json:"source_ref"`
	StructuredRef  string        `json:"structured_ref,omitempty"`  // payment reference carried from the source invoice
	DocumentNumber string        `json:"document_number,omitempty"` // vendor invoice number carried from the source invoice
	CreatedBy      string        `json:"created_by,omitempty"`
	ReversesID     string        `json:"reverses_id,omitempty"` // set on reversal vouchers
	Status         VoucherStatus `json:"status"`
	Lines          []VoucherLine `json:"lines"`
	SequenceNumber int64         `json:"sequence_number"`
	FiscalYear     int           `json:"fiscal_year"`
	Locked         bool          `json:"locked"`
}

// VoucherLine is a single debit or credit posting within a voucher.
// Exactly one of Debit/Credit is positive, never both, never neither.
type VoucherLine struct {
	Account    string          `json:"account"`
	TaxCode    string          `json:"tax_code,omitempty"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	LineNumber int             `json:"line_number"`
}

// IsDebit reports whether the line posts on the debit side.
func (l *VoucherLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// Amount returns the posted amount regardless of side.
func (l *VoucherLine) Amount() decimal.Decimal {
	if l.IsDebit() {
		return l.Debit
	}
	return l.Credit
}

// TotalDebit sums the debit side of all lines.
func (v *Voucher) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range v.Lines {
		total = total.Add(line.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all lines.
func (v *Voucher) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range v.Lines {
		total = total.Add(line.Credit)
	}
	return total
}

// Imbalance returns TotalDebit - TotalCredit. Zero for a balanced voucher.
func (v *Voucher) Imbalance() decimal.Decimal {
	return v.TotalDebit().Sub(v.TotalCredit())
}

// Total returns the voucher's transaction amount (the debit side of a
// balanced voucher).
func (v *Voucher) Total() decimal.Decimal {
	return v.TotalDebit()
}

// IsReversal reports whether this voucher offsets another one.
func (v *Voucher) IsReversal() bool {
	return v.ReversesID != ""
}
