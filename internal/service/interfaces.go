// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/model"
)

// Period is a half-open date window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// SequenceKey identifies one voucher numbering series. Sequence numbers are
// unique and strictly serialized per key.
type SequenceKey struct {
	ClientID   string
	Series     string
	FiscalYear int
}

// ReviewFilter defines filtering options for review queue queries.
type ReviewFilter struct {
	ClientID   string
	Type       model.ReviewItemType
	AssignedTo string
	Limit      int
	Offset     int
}

// QueueStats summarizes the state of one client's pipeline.
type QueueStats struct {
	PendingByType   map[model.ReviewItemType]int
	PostedVouchers  int
	UnmatchedBank   int
	MatchedBank     int
}

// PatternStore is the narrow read/write interface over accumulated booking
// history. It is deliberately a plain counter store, not a model.
type PatternStore interface {
	// LookupPattern returns the accumulated outcome counters for a
	// (client, vendor, account) combination, or common.ErrNotFound.
	LookupPattern(ctx context.Context, clientID, vendorID, account string) (*model.Pattern, error)
	// GetVendorProfile aggregates a vendor's history across all accounts.
	GetVendorProfile(ctx context.Context, clientID, vendorID string) (*model.VendorProfile, error)
	// RecordOutcome additively updates the counters for a booking outcome.
	RecordOutcome(ctx context.Context, clientID, vendorID, account, taxCode string, outcome model.PatternOutcome, amount decimal.Decimal) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	PatternStore

	// Voucher operations
	SaveVoucher(ctx context.Context, voucher *model.Voucher) error
	GetVoucherByID(ctx context.Context, id string) (*model.Voucher, error)
	GetVoucherBySource(ctx context.Context, clientID, sourceRef string) (*model.Voucher, error)
	GetVoucherByNumber(ctx context.Context, key SequenceKey, sequenceNumber int64) (*model.Voucher, error)
	GetVouchersByPeriod(ctx context.Context, clientID string, period Period) ([]model.Voucher, error)
	// NextSequenceNumber allocates the next number for a series. The
	// increment is atomic per key; gaps are acceptable, duplicates are not.
	NextSequenceNumber(ctx context.Context, key SequenceKey) (int64, error)

	// Review queue operations
	SaveReviewItem(ctx context.Context, item *model.ReviewItem) error
	GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error)
	GetPendingReviewItemBySource(ctx context.Context, clientID, sourceRef string) (*model.ReviewItem, error)
	ListPendingReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error)
	// ResolveReviewItem transitions PENDING to a terminal status. The write
	// is conditioned on the status still being PENDING; losing that race
	// yields a common.ConcurrencyConflictError naming the winning outcome.
	ResolveReviewItem(ctx context.Context, id string, status model.ReviewItemStatus, actor, notes, voucherID string) error

	// Bank reconciliation operations
	SaveBankTransactions(ctx context.Context, transactions []model.BankTransaction) (int, error)
	GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error)
	GetUnmatchedBankTransactions(ctx context.Context, clientID string, period Period) ([]model.BankTransaction, error)
	GetUnmatchedVouchers(ctx context.Context, clientID string, period Period) ([]model.Voucher, error)
	// SaveMatch records an accepted pairing and flips the transaction to
	// MATCHED as one unit.
	SaveMatch(ctx context.Context, match *model.Match) error
	ListMatches(ctx context.Context, clientID string) ([]model.Match, error)

	// Reporting
	GetQueueStats(ctx context.Context, clientID string) (*QueueStats, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}
