package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

// queryable abstracts over *sql.DB and *sql.Tx so storage methods can run
// standalone or inside a caller-owned transaction.
type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and a single
	// connection serializes the sequence-number contention point.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction. The busy timeout covers waits
// inside an open connection; acquiring the write lock against another process
// can still fail immediately, so that case is retried with backoff.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var tx *sql.Tx
	err := common.WithRetry(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		if beginErr != nil && !isBusyError(beginErr) {
			return &common.RetryableError{Err: beginErr, Retryable: false}
		}
		return beginErr
	}, common.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) LookupPattern(ctx context.Context, clientID, vendorID, account string) (*model.Pattern, error) {
	return t.storage.lookupPatternTx(ctx, t.tx, clientID, vendorID, account)
}

func (t *sqliteTransaction) GetVendorProfile(ctx context.Context, clientID, vendorID string) (*model.VendorProfile, error) {
	return t.storage.getVendorProfileTx(ctx, t.tx, clientID, vendorID)
}

func (t *sqliteTransaction) RecordOutcome(ctx context.Context, clientID, vendorID, account, taxCode string, outcome model.PatternOutcome, amount decimal.Decimal) error {
	return t.storage.recordOutcomeTx(ctx, t.tx, clientID, vendorID, account, taxCode, outcome, amount)
}

func (t *sqliteTransaction) SaveVoucher(ctx context.Context, voucher *model.Voucher) error {
	if err := validateVoucher(voucher); err != nil {
		return err
	}
	return t.storage.saveVoucherTx(ctx, t.tx, voucher)
}

func (t *sqliteTransaction) GetVoucherByID(ctx context.Context, id string) (*model.Voucher, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getVoucherByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetVoucherBySource(ctx context.Context, clientID, sourceRef string) (*model.Voucher, error) {
	return t.storage.getVoucherBySourceTx(ctx, t.tx, clientID, sourceRef)
}

func (t *sqliteTransaction) GetVoucherByNumber(ctx context.Context, key service.SequenceKey, sequenceNumber int64) (*model.Voucher, error) {
	return t.storage.getVoucherByNumberTx(ctx, t.tx, key, sequenceNumber)
}

func (t *sqliteTransaction) GetVouchersByPeriod(ctx context.Context, clientID string, period service.Period) ([]model.Voucher, error) {
	return t.storage.getVouchersByPeriodTx(ctx, t.tx, clientID, period)
}

func (t *sqliteTransaction) NextSequenceNumber(ctx context.Context, key service.SequenceKey) (int64, error) {
	return t.storage.nextSequenceNumberTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) SaveReviewItem(ctx context.Context, item *model.ReviewItem) error {
	if err := validateReviewItem(item); err != nil {
		return err
	}
	return t.storage.saveReviewItemTx(ctx, t.tx, item)
}

func (t *sqliteTransaction) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getReviewItemTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetPendingReviewItemBySource(ctx context.Context, clientID, sourceRef string) (*model.ReviewItem, error) {
	return t.storage.getPendingReviewItemBySourceTx(ctx, t.tx, clientID, sourceRef)
}

func (t *sqliteTransaction) ListPendingReviewItems(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewItem, error) {
	return t.storage.listPendingReviewItemsTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) ResolveReviewItem(ctx context.Context, id string, status model.ReviewItemStatus, actor, notes, voucherID string) error {
	return t.storage.resolveReviewItemTx(ctx, t.tx, id, status, actor, notes, voucherID)
}

func (t *sqliteTransaction) SaveBankTransactions(ctx context.Context, transactions []model.BankTransaction) (int, error) {
	if err := validateBankTransactions(transactions); err != nil {
		return 0, err
	}
	return t.storage.saveBankTransactionsTx(ctx, t.tx, transactions)
}

func (t *sqliteTransaction) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getBankTransactionTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetUnmatchedBankTransactions(ctx context.Context, clientID string, period service.Period) ([]model.BankTransaction, error) {
	return t.storage.getUnmatchedBankTransactionsTx(ctx, t.tx, clientID, period)
}

func (t *sqliteTransaction) GetUnmatchedVouchers(ctx context.Context, clientID string, period service.Period) ([]model.Voucher, error) {
	return t.storage.getUnmatchedVouchersTx(ctx, t.tx, clientID, period)
}

func (t *sqliteTransaction) SaveMatch(ctx context.Context, match *model.Match) error {
	if err := validateMatch(match); err != nil {
		return err
	}
	return t.storage.saveMatchTx(ctx, t.tx, match)
}

func (t *sqliteTransaction) ListMatches(ctx context.Context, clientID string) ([]model.Match, error) {
	return t.storage.listMatchesTx(ctx, t.tx, clientID)
}

func (t *sqliteTransaction) GetQueueStats(ctx context.Context, clientID string) (*service.QueueStats, error) {
	return t.storage.getQueueStatsTx(ctx, t.tx, clientID)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
