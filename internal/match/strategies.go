package match

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/model"
)

// evaluate runs the ordered strategies for one (transaction, voucher) pair
// and returns the strongest candidate, or nil when nothing fits. Strategies
// are strictly ordered by trust: the first one that fires wins for the pair.
func (m *Matcher) evaluate(txn *model.BankTransaction, v *model.Voucher) *model.MatchCandidate {
	dayDistance := dayDistance(txn.Date, v.Date)
	amountExact := amountsEqual(txn.Amount, v.Total(), m.config.AmountTolerance)

	if c := m.structuredRefMatch(txn, v, dayDistance, amountExact); c != nil {
		return c
	}
	if c := m.invoiceNumberMatch(txn, v, dayDistance, amountExact); c != nil {
		return c
	}
	if c := m.amountDateMatch(txn, v, dayDistance, amountExact); c != nil {
		return c
	}
	return m.fuzzyMatch(txn, v, dayDistance, amountExact)
}

// structuredRefMatch: the payment reference embedded in both records agrees
// exactly. Confidence 100.
func (m *Matcher) structuredRefMatch(txn *model.BankTransaction, v *model.Voucher, dayDistance int, amountExact bool) *model.MatchCandidate {
	if txn.StructuredRef == "" || v.StructuredRef == "" {
		return nil
	}
	if normalizeRef(txn.StructuredRef) != normalizeRef(v.StructuredRef) {
		return nil
	}
	return &model.MatchCandidate{
		TransactionID: txn.ID,
		VoucherID:     v.ID,
		Strategy:      model.StrategyStructuredRef,
		Confidence:    100,
		DayDistance:   dayDistance,
		AmountExact:   amountExact,
	}
}

// invoiceNumberMatch: the voucher's invoice number appears verbatim in the
// transaction description. Confidence 95.
func (m *Matcher) invoiceNumberMatch(txn *model.BankTransaction, v *model.Voucher, dayDistance int, amountExact bool) *model.MatchCandidate {
	if v.DocumentNumber == "" {
		return nil
	}
	if !strings.Contains(strings.ToLower(txn.Description), strings.ToLower(v.DocumentNumber)) {
		return nil
	}
	return &model.MatchCandidate{
		TransactionID: txn.ID,
		VoucherID:     v.ID,
		Strategy:      model.StrategyInvoiceNumber,
		Confidence:    95,
		DayDistance:   dayDistance,
		AmountExact:   amountExact,
	}
}

// amountDateMatch: exact amount within the date window. Confidence scales
// from 90 at zero days down to 80 at the window edge.
func (m *Matcher) amountDateMatch(txn *model.BankTransaction, v *model.Voucher, dayDistance int, amountExact bool) *model.MatchCandidate {
	if !amountExact || dayDistance > m.config.DateWindowDays {
		return nil
	}
	confidence := 90 - int(math.Round(float64(10*dayDistance)/float64(m.config.DateWindowDays)))
	return &model.MatchCandidate{
		TransactionID: txn.ID,
		VoucherID:     v.ID,
		Strategy:      model.StrategyAmountDate,
		Confidence:    confidence,
		DayDistance:   dayDistance,
		AmountExact:   true,
	}
}

// fuzzyMatch: description similarity combined with amount tolerance.
// Confidence scales from 60 at the similarity floor to 80 at full overlap.
func (m *Matcher) fuzzyMatch(txn *model.BankTransaction, v *model.Voucher, dayDistance int, amountExact bool) *model.MatchCandidate {
	if !amountWithinTolerance(txn.Amount, v.Total(), m.config.AmountTolerancePercent) {
		return nil
	}
	similarity := textSimilarity(txn.Description, v.Description)
	if similarity < m.config.MinSimilarity {
		return nil
	}

	span := 1 - m.config.MinSimilarity
	fraction := (similarity - m.config.MinSimilarity) / span
	confidence := 60 + int(math.Round(20*fraction))

	return &model.MatchCandidate{
		TransactionID: txn.ID,
		VoucherID:     v.ID,
		Strategy:      model.StrategyFuzzy,
		Confidence:    confidence,
		DayDistance:   dayDistance,
		AmountExact:   amountExact,
	}
}

// better decides between two candidates deterministically: higher
// confidence, then stronger strategy, then exact amount, then closer date,
// then lower voucher identifier. Repeated runs over the same data must never
// pick differently among equals.
func better(a, b *model.MatchCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Strategy.Rank() != b.Strategy.Rank() {
		return a.Strategy.Rank() < b.Strategy.Rank()
	}
	if a.AmountExact != b.AmountExact {
		return a.AmountExact
	}
	if a.DayDistance != b.DayDistance {
		return a.DayDistance < b.DayDistance
	}
	return a.VoucherID < b.VoucherID
}

func dayDistance(a, b time.Time) int {
	days := int(a.Sub(b).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func amountsEqual(bankAmount, voucherTotal, tolerance decimal.Decimal) bool {
	return bankAmount.Abs().Sub(voucherTotal.Abs()).Abs().LessThanOrEqual(tolerance)
}

func amountWithinTolerance(bankAmount, voucherTotal decimal.Decimal, percent float64) bool {
	diff := bankAmount.Abs().Sub(voucherTotal.Abs()).Abs()
	limit := voucherTotal.Abs().Mul(decimal.NewFromFloat(percent / 100))
	return diff.LessThanOrEqual(limit)
}
