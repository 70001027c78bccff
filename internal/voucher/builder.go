// Package voucher implements the double-entry voucher generator. Every
// voucher it produces is balanced, sequentially numbered, and immutable once
// posted.
package voucher

import (
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/model"
)

// BuildLines constructs the line set for a booking suggestion: one debit
// line for the expense/asset account, an optional debit line for input tax,
// and exactly one credit line for the contra account equal to the total.
// Receivable flows get the inverse polarity. Zero-tax sources produce two
// lines instead of three.
func BuildLines(candidate *model.InvoiceCandidate) []model.VoucherLine {
	return buildLines(
		candidate.Direction,
		candidate.SuggestedAccount,
		candidate.TaxAccount,
		candidate.ContraAccount,
		candidate.SuggestedTaxCode,
		candidate.AmountExclTax,
		candidate.TaxAmount,
		candidate.Total,
	)
}

// BuildCorrectedLines constructs the line set for a human-corrected booking,
// keeping the candidate's amounts but substituting the reviewer's account
// and tax code.
func BuildCorrectedLines(candidate *model.InvoiceCandidate, account, taxCode string) []model.VoucherLine {
	return buildLines(
		candidate.Direction,
		account,
		candidate.TaxAccount,
		candidate.ContraAccount,
		taxCode,
		candidate.AmountExclTax,
		candidate.TaxAmount,
		candidate.Total,
	)
}

func buildLines(direction model.CandidateDirection, account, taxAccount, contraAccount, taxCode string, exclTax, tax, total decimal.Decimal) []model.VoucherLine {
	debit := direction != model.DirectionReceivable

	lines := []model.VoucherLine{
		newLine(1, account, exclTax, debit, taxCode, tax),
	}
	if tax.IsPositive() {
		lines = append(lines, newLine(len(lines)+1, taxAccount, tax, debit, taxCode, decimal.Zero))
	}
	lines = append(lines, newLine(len(lines)+1, contraAccount, total, !debit, "", decimal.Zero))

	return lines
}

func newLine(number int, account string, amount decimal.Decimal, debit bool, taxCode string, taxAmount decimal.Decimal) model.VoucherLine {
	line := model.VoucherLine{
		LineNumber: number,
		Account:    account,
		TaxCode:    taxCode,
		TaxAmount:  taxAmount,
	}
	if debit {
		line.Debit = amount
	} else {
		line.Credit = amount
	}
	return line
}

// ReversalLines returns the offsetting line set for a posted voucher:
// every debit becomes a credit of the same amount and vice versa.
func ReversalLines(original *model.Voucher) []model.VoucherLine {
	lines := make([]model.VoucherLine, 0, len(original.Lines))
	for i, line := range original.Lines {
		lines = append(lines, model.VoucherLine{
			LineNumber: i + 1,
			Account:    line.Account,
			TaxCode:    line.TaxCode,
			TaxAmount:  line.TaxAmount,
			Debit:      line.Credit,
			Credit:     line.Debit,
		})
	}
	return lines
}
