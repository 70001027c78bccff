package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/model"
)

func testMatcher() *Matcher {
	return NewMatcher(nil, DefaultConfig())
}

func testTransaction(amount string, date time.Time) *model.BankTransaction {
	return &model.BankTransaction{
		ID:          "txn-1",
		ClientID:    "client-1",
		AccountID:   "1930",
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: "ACME SUPPLIES LTD",
		Status:      model.BankUnmatched,
	}
}

func testVoucher(total string, date time.Time) *model.Voucher {
	amount := decimal.RequireFromString(total)
	return &model.Voucher{
		ID:          "voucher-1",
		ClientID:    "client-1",
		Date:        date,
		Description: "ACME Supplies Ltd",
		Status:      model.StatusPosted,
		Lines: []model.VoucherLine{
			{Account: "6100", Debit: amount},
			{Account: "2440", Credit: amount},
		},
	}
}

func TestEvaluateStructuredRef(t *testing.T) {
	m := testMatcher()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	txn := testTransaction("-12500.00", date)
	txn.StructuredRef = "RF18 5390 0754 7034"
	v := testVoucher("12500", date.AddDate(0, 0, 20))
	v.StructuredRef = "RF18539007547034"

	c := m.evaluate(txn, v)
	require.NotNil(t, c)
	assert.Equal(t, model.StrategyStructuredRef, c.Strategy)
	assert.Equal(t, 100, c.Confidence)
	assert.True(t, c.AmountExact)
}

func TestEvaluateInvoiceNumber(t *testing.T) {
	m := testMatcher()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	txn := testTransaction("-12500.00", date)
	txn.Description = "ACME SUPPLIES INV-2024-001"
	v := testVoucher("12500", date)
	v.DocumentNumber = "inv-2024-001"

	c := m.evaluate(txn, v)
	require.NotNil(t, c)
	assert.Equal(t, model.StrategyInvoiceNumber, c.Strategy)
	assert.Equal(t, 95, c.Confidence)
}

func TestEvaluateAmountDate(t *testing.T) {
	m := testMatcher()
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		amount         string
		daysApart      int
		wantConfidence int
		wantNil        bool
	}{
		{name: "same day", amount: "-12500.00", daysApart: 0, wantConfidence: 90},
		{name: "two days apart", amount: "-12500.00", daysApart: 2, wantConfidence: 86},
		{name: "window edge", amount: "-12500.00", daysApart: 5, wantConfidence: 80},
		{name: "outside window", amount: "-12500.00", daysApart: 6, wantNil: true},
		{name: "amount off by a cent", amount: "-12500.02", daysApart: 0, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testTransaction(tt.amount, base.AddDate(0, 0, tt.daysApart))
			// Distinct descriptions keep the fuzzy strategy out of the way.
			txn.Description = "CARD PURCHASE 4821"
			v := testVoucher("12500", base)
			v.Description = "Office equipment invoice"

			c := m.evaluate(txn, v)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, model.StrategyAmountDate, c.Strategy)
			assert.Equal(t, tt.wantConfidence, c.Confidence)
			assert.Equal(t, tt.daysApart, c.DayDistance)
		})
	}
}

func TestEvaluateFuzzy(t *testing.T) {
	m := testMatcher()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("full overlap", func(t *testing.T) {
		// A ten-cent discrepancy rules out the exact-amount strategy but
		// stays well inside the percentage tolerance.
		txn := testTransaction("-12510.00", date)
		v := testVoucher("12500", date)

		c := m.evaluate(txn, v)
		require.NotNil(t, c)
		assert.Equal(t, model.StrategyFuzzy, c.Strategy)
		assert.Equal(t, 80, c.Confidence)
		assert.False(t, c.AmountExact)
	})

	t.Run("half overlap", func(t *testing.T) {
		txn := testTransaction("-12510.00", date)
		txn.Description = "ACME INVOICE PAYMENT CARD"
		v := testVoucher("12500", date)
		v.Description = "ACME Invoice Services GmbH"

		c := m.evaluate(txn, v)
		require.NotNil(t, c)
		assert.Equal(t, model.StrategyFuzzy, c.Strategy)
		assert.Equal(t, 60, c.Confidence)
	})

	t.Run("below similarity floor", func(t *testing.T) {
		txn := testTransaction("-12510.00", date)
		txn.Description = "CARD PURCHASE 4821"
		v := testVoucher("12500", date)

		assert.Nil(t, m.evaluate(txn, v))
	})

	t.Run("amount outside tolerance", func(t *testing.T) {
		txn := testTransaction("-13000.00", date)
		v := testVoucher("12500", date)

		assert.Nil(t, m.evaluate(txn, v))
	})
}

func TestBetterIsDeterministic(t *testing.T) {
	tests := []struct {
		name string
		a, b model.MatchCandidate
		want bool
	}{
		{
			name: "higher confidence wins",
			a:    model.MatchCandidate{Confidence: 90, Strategy: model.StrategyAmountDate},
			b:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy},
			want: true,
		},
		{
			name: "stronger strategy breaks confidence ties",
			a:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyAmountDate},
			b:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy},
			want: true,
		},
		{
			name: "exact amount breaks strategy ties",
			a:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy, AmountExact: true},
			b:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy},
			want: true,
		},
		{
			name: "closer date breaks amount ties",
			a:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy, DayDistance: 1},
			b:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy, DayDistance: 4},
			want: true,
		},
		{
			name: "voucher id is the final tie-break",
			a:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy, VoucherID: "a"},
			b:    model.MatchCandidate{Confidence: 80, Strategy: model.StrategyFuzzy, VoucherID: "b"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, better(&tt.a, &tt.b))
			assert.False(t, better(&tt.b, &tt.a))
		})
	}
}

func TestTextSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "ACME Supplies Ltd", b: "acme supplies ltd", want: 1.0},
		{name: "noisy superset", a: "SEPA 2024-03-15 ACME SUPPLIES LTD REF 99", b: "ACME Supplies Ltd", want: 1.0},
		{name: "partial", a: "ACME INVOICE PAYMENT CARD", b: "ACME Invoice Services GmbH", want: 0.5},
		{name: "disjoint", a: "CARD PURCHASE 4821", b: "ACME Supplies Ltd", want: 0.0},
		{name: "empty", a: "", b: "ACME Supplies Ltd", want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, textSimilarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestNormalizeRef(t *testing.T) {
	assert.Equal(t, "RF18539007547034", normalizeRef("RF18 5390 0754 7034"))
	assert.Equal(t, "RF18539007547034", normalizeRef("rf18-5390-0754-7034"))
	assert.Equal(t, normalizeRef("RF18539007547034"), normalizeRef("RF18 5390 0754 7034"))
}
