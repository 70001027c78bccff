// Package testutil provides shared test fixtures: an isolated in-memory
// database and builders for realistic domain objects.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database, runs migrations, and
// registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedHistory records n successful APPROVED outcomes for a (client, vendor,
// account) combination, giving the scorer real history to work with.
func (db *TestDB) SeedHistory(ctx context.Context, clientID, vendorID, account string, n int, amount decimal.Decimal) {
	db.t.Helper()
	for i := 0; i < n; i++ {
		err := db.Storage.RecordOutcome(ctx, clientID, vendorID, account, "", model.OutcomeApproved, amount)
		if err != nil {
			db.t.Fatalf("failed to seed history: %v", err)
		}
	}
}

// Candidate returns a plausible payable invoice candidate. Callers mutate
// the fields they care about.
func Candidate(id string) *model.InvoiceCandidate {
	return &model.InvoiceCandidate{
		ID:               id,
		ClientID:         "client-1",
		VendorID:         "vendor-acme",
		VendorName:       "ACME Supplies Ltd",
		InvoiceNumber:    "INV-2024-001",
		InvoiceDate:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Currency:         "EUR",
		AmountExclTax:    decimal.RequireFromString("10000"),
		TaxAmount:        decimal.RequireFromString("2500"),
		Total:            decimal.RequireFromString("12500"),
		SuggestedAccount: "6100",
		SuggestedTaxCode: "VAT25",
		ContraAccount:    "2440",
		TaxAccount:       "2640",
		Direction:        model.DirectionPayable,
	}
}

// BankTransaction returns a plausible unmatched statement line.
func BankTransaction(id, clientID string, date time.Time, amount string) model.BankTransaction {
	txn := model.BankTransaction{
		ID:          id,
		ClientID:    clientID,
		AccountID:   "1930",
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: "ACME SUPPLIES LTD",
		FiTID:       "FIT-" + id,
		Status:      model.BankUnmatched,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}
