package match_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/match"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

var window = service.Period{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
}

// postVoucher creates a posted two-line voucher for matching tests.
func postVoucher(t *testing.T, db *testutil.TestDB, sourceRef, description, structuredRef, documentNumber, total string, date time.Time) *model.Voucher {
	t.Helper()
	amount := decimal.RequireFromString(total)
	generator := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())
	posted, err := generator.Create(context.Background(), voucher.CreateRequest{
		ClientID:       "client-1",
		SourceRef:      sourceRef,
		StructuredRef:  structuredRef,
		DocumentNumber: documentNumber,
		Description:    description,
		Date:           date,
		Actor:          "test",
		Lines: []model.VoucherLine{
			{Account: "6100", Debit: amount},
			{Account: "2440", Credit: amount},
		},
	})
	require.NoError(t, err)
	return posted
}

func saveTransactions(t *testing.T, db *testutil.TestDB, txns ...model.BankTransaction) {
	t.Helper()
	inserted, err := db.Storage.SaveBankTransactions(context.Background(), txns)
	require.NoError(t, err)
	require.Equal(t, len(txns), inserted)
}

func TestRunAutoMatchesStructuredRef(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	posted := postVoucher(t, db, "inv-1", "ACME Supplies Ltd", "RF18539007547034", "", "12500", date)

	txn := testutil.BankTransaction("txn-1", "client-1", date, "-12500.00")
	txn.StructuredRef = "RF18 5390 0754 7034"
	saveTransactions(t, db, txn)

	matcher := match.NewMatcher(db.Storage, match.DefaultConfig())
	stats, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.AutoMatched)
	assert.Equal(t, 0, stats.Escalated)

	matched, err := db.Storage.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BankMatched, matched.Status)

	matches, err := db.Storage.ListMatches(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, posted.ID, matches[0].VoucherID)
	assert.Equal(t, model.StrategyStructuredRef, matches[0].Strategy)
	assert.Equal(t, 100, matches[0].Confidence)
}

func TestRunEscalatesLowConfidence(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	// A fuzzy-only candidate: amount off by ten but within the percentage
	// tolerance, and only half the description tokens overlap.
	posted := postVoucher(t, db, "inv-2", "ACME Invoice Services GmbH", "", "", "12500", date)

	txn := testutil.BankTransaction("txn-2", "client-1", date, "-12510.00")
	txn.Description = "ACME INVOICE PAYMENT CARD"
	txn.Hash = txn.GenerateHash()
	saveTransactions(t, db, txn)

	matcher := match.NewMatcher(db.Storage, match.DefaultConfig())
	stats, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.AutoMatched)
	assert.Equal(t, 1, stats.Escalated)

	item, err := db.Storage.GetPendingReviewItemBySource(ctx, "client-1", txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewTypeBankMatch, item.Type)
	require.Len(t, item.Candidates, 1)
	assert.Equal(t, posted.ID, item.Candidates[0].VoucherID)
	assert.Equal(t, model.StrategyFuzzy, item.Candidates[0].Strategy)
	assert.Less(t, item.Candidates[0].Confidence, match.DefaultConfig().AutoMatchThreshold)

	// The transaction stays unmatched until a human accepts a pairing.
	stored, err := db.Storage.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BankUnmatched, stored.Status)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	postVoucher(t, db, "inv-3", "ACME Supplies Ltd", "RF18539007547034", "", "12500", date)
	postVoucher(t, db, "inv-4", "ACME Invoice Services GmbH", "", "", "7000", date)

	auto := testutil.BankTransaction("txn-3", "client-1", date, "-12500.00")
	auto.StructuredRef = "RF18539007547034"
	escalated := testutil.BankTransaction("txn-4", "client-1", date, "-7003.00")
	escalated.Description = "ACME INVOICE PAYMENT CARD"
	escalated.Hash = escalated.GenerateHash()
	saveTransactions(t, db, auto, escalated)

	matcher := match.NewMatcher(db.Storage, match.DefaultConfig())
	first, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AutoMatched)
	assert.Equal(t, 1, first.Escalated)

	// Unchanged data: the matched transaction is gone from the fetch, the
	// escalated one is skipped because its review item is still open.
	second, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Fetched)
	assert.Equal(t, 0, second.AutoMatched)
	assert.Equal(t, 0, second.Escalated)

	items, err := db.Storage.ListPendingReviewItems(ctx, service.ReviewFilter{ClientID: "client-1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRunMatchedVoucherLeavesPool(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	postVoucher(t, db, "inv-5", "ACME Supplies Ltd", "", "", "12500", date)

	// Two transactions both fit the single voucher on amount and date.
	// Processing order is date then id, so txn-5 wins and txn-6 finds an
	// empty pool.
	first := testutil.BankTransaction("txn-5", "client-1", date, "-12500.00")
	first.Description = "CARD PURCHASE 4821"
	first.Hash = first.GenerateHash()
	second := testutil.BankTransaction("txn-6", "client-1", date, "-12500.00")
	second.Description = "CARD PURCHASE 4822"
	second.Hash = second.GenerateHash()
	saveTransactions(t, db, first, second)

	matcher := match.NewMatcher(db.Storage, match.DefaultConfig())
	stats, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.AutoMatched)
	assert.Equal(t, 0, stats.Escalated)

	matches, err := db.Storage.ListMatches(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "txn-5", matches[0].TransactionID)

	unmatched, err := db.Storage.GetUnmatchedBankTransactions(ctx, "client-1", window)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "txn-6", unmatched[0].ID)
}

func TestRunReportsProgress(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"txn-7", "txn-8", "txn-9"} {
		txn := testutil.BankTransaction(id, "client-1", date.AddDate(0, 0, i), "-100.00")
		saveTransactions(t, db, txn)
	}

	matcher := match.NewMatcher(db.Storage, match.DefaultConfig())
	var calls []int
	matcher.OnProgress = func(done, total int) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	}

	_, err := matcher.Run(ctx, "client-1", window)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}
