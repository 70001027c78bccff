// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateDirection indicates which way the money flows for a candidate.
type CandidateDirection string

const (
	// DirectionPayable represents a vendor invoice (we owe money).
	DirectionPayable CandidateDirection = "PAYABLE"
	// DirectionReceivable represents a credit note or customer invoice (we are owed money).
	DirectionReceivable CandidateDirection = "RECEIVABLE"
)

// InvoiceCandidate is a normalized intake record with an AI-derived booking
// suggestion attached. It is owned by the intake layer and read-only here.
type InvoiceCandidate struct {
	InvoiceDate      time.Time          `json:"invoice_date"`
	ID               string             `json:"id"`
	ClientID         string             `json:"client_id"`
	VendorID         string             `json:"vendor_id"`
	VendorName       string             `json:"vendor_name"`
	Currency         string             `json:"currency"`
	Description      string             `json:"description,omitempty"`
	InvoiceNumber    string             `json:"invoice_number"`
	StructuredRef    string             `json:"structured_ref,omitempty"` // machine-matchable payment reference
	SuggestedAccount string             `json:"suggested_account"`
	SuggestedTaxCode string             `json:"suggested_tax_code,omitempty"`
	ContraAccount    string             `json:"contra_account"` // payable/receivable account for the credit side
	TaxAccount       string             `json:"tax_account,omitempty"`
	Direction        CandidateDirection `json:"direction"`
	AmountExclTax    decimal.Decimal    `json:"amount_excl_tax"`
	TaxAmount        decimal.Decimal    `json:"tax_amount"`
	Total            decimal.Decimal    `json:"total"`
}

// SourceRef returns the stable reference that links this candidate to at
// most one posted voucher.
func (c *InvoiceCandidate) SourceRef() string {
	return c.ID
}

// GenerateHash creates a content hash for duplicate detection on intake.
func (c *InvoiceCandidate) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		c.ClientID,
		c.VendorID,
		c.InvoiceNumber,
		c.Total.StringFixed(2),
		c.InvoiceDate.Format("2006-01-02"))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
