package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

const bankTransactionColumns = `id, client_id, account_id, date, amount, description, structured_ref, fitid, hash, status`

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// SaveBankTransactions inserts imported statement lines, silently skipping
// rows whose hash was already stored. Returns the number actually inserted.
func (s *SQLiteStorage) SaveBankTransactions(ctx context.Context, transactions []model.BankTransaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateBankTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.saveBankTransactionsTx(ctx, tx, transactions)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStorage) saveBankTransactionsTx(ctx context.Context, q queryable, transactions []model.BankTransaction) (int, error) {
	inserted := 0
	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if txn.Status == "" {
			txn.Status = model.BankUnmatched
		}

		result, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO bank_transactions (`+bankTransactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			txn.ID,
			txn.ClientID,
			txn.AccountID,
			txn.Date,
			txn.Amount.StringFixed(2),
			txn.Description,
			nullString([]byte(txn.StructuredRef)),
			nullString([]byte(txn.FiTID)),
			txn.Hash,
			string(txn.Status),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to save bank transaction %s: %w", txn.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to check insert result: %w", err)
		}
		inserted += int(affected)
	}
	return inserted, nil
}

// GetBankTransaction retrieves a single bank transaction by ID.
func (s *SQLiteStorage) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getBankTransactionTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getBankTransactionTx(ctx context.Context, q queryable, id string) (*model.BankTransaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+bankTransactionColumns+`
		FROM bank_transactions
		WHERE id = ?
	`, id)
	return scanBankTransaction(row)
}

// GetUnmatchedBankTransactions lists the transactions still awaiting a
// counterpart, oldest first so matcher runs process them deterministically.
func (s *SQLiteStorage) GetUnmatchedBankTransactions(ctx context.Context, clientID string, period service.Period) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(clientID, "clientID"); err != nil {
		return nil, err
	}
	return s.getUnmatchedBankTransactionsTx(ctx, s.db, clientID, period)
}

func (s *SQLiteStorage) getUnmatchedBankTransactionsTx(ctx context.Context, q queryable, clientID string, period service.Period) ([]model.BankTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+bankTransactionColumns+`
		FROM bank_transactions
		WHERE client_id = ? AND status = ? AND date >= ? AND date < ?
		ORDER BY date, id
	`, clientID, string(model.BankUnmatched), period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.BankTransaction
	for rows.Next() {
		txn, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

func scanBankTransaction(row rowScanner) (*model.BankTransaction, error) {
	var txn model.BankTransaction
	var amount string
	var description, structuredRef, fitid sql.NullString
	var status string

	err := row.Scan(
		&txn.ID,
		&txn.ClientID,
		&txn.AccountID,
		&txn.Date,
		&amount,
		&description,
		&structuredRef,
		&fitid,
		&txn.Hash,
		&status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q for bank transaction %s: %w", amount, txn.ID, err)
	}
	txn.Description = description.String
	txn.StructuredRef = structuredRef.String
	txn.FiTID = fitid.String
	txn.Status = model.BankTransactionStatus(status)

	return &txn, nil
}

// SaveMatch records an accepted pairing and flips the transaction to MATCHED
// as one unit. The UNIQUE constraints on matches enforce that neither side
// can be paired twice.
func (s *SQLiteStorage) SaveMatch(ctx context.Context, match *model.Match) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMatch(match); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveMatchTx(ctx, tx, match); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) saveMatchTx(ctx context.Context, q queryable, match *model.Match) error {
	if err := validateMatch(match); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO matches (id, transaction_id, voucher_id, strategy, confidence)
		VALUES (?, ?, ?, ?, ?)
	`,
		match.ID,
		match.TransactionID,
		match.VoucherID,
		string(match.Strategy),
		match.Confidence,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("match for transaction %s: %w", match.TransactionID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to save match: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE bank_transactions SET status = ? WHERE id = ? AND status = ?
	`, string(model.BankMatched), match.TransactionID, string(model.BankUnmatched))
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s is not unmatched: %w", match.TransactionID, common.ErrDuplicateEntry)
	}
	return nil
}

// ListMatches returns all accepted matches for a client, newest first.
func (s *SQLiteStorage) ListMatches(ctx context.Context, clientID string) ([]model.Match, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(clientID, "clientID"); err != nil {
		return nil, err
	}
	return s.listMatchesTx(ctx, s.db, clientID)
}

func (s *SQLiteStorage) listMatchesTx(ctx context.Context, q queryable, clientID string) ([]model.Match, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.transaction_id, m.voucher_id, m.strategy, m.confidence, m.created_at
		FROM matches m
		JOIN bank_transactions t ON t.id = m.transaction_id
		WHERE t.client_id = ?
		ORDER BY m.created_at DESC, m.id
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		var strategy string
		if err := rows.Scan(&m.ID, &m.TransactionID, &m.VoucherID, &strategy, &m.Confidence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Strategy = model.MatchStrategy(strategy)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetQueueStats summarizes the pipeline state for one client.
func (s *SQLiteStorage) GetQueueStats(ctx context.Context, clientID string) (*service.QueueStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(clientID, "clientID"); err != nil {
		return nil, err
	}
	return s.getQueueStatsTx(ctx, s.db, clientID)
}

func (s *SQLiteStorage) getQueueStatsTx(ctx context.Context, q queryable, clientID string) (*service.QueueStats, error) {
	stats := &service.QueueStats{
		PendingByType: make(map[model.ReviewItemType]int),
	}

	rows, err := q.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM review_items
		WHERE client_id = ? AND status = ?
		GROUP BY type
	`, clientID, string(model.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query review counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var itemType string
		var count int
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan review count: %w", err)
		}
		stats.PendingByType[model.ReviewItemType(itemType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vouchers WHERE client_id = ?
	`, clientID).Scan(&stats.PostedVouchers)
	if err != nil {
		return nil, fmt.Errorf("failed to count vouchers: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END)
		FROM bank_transactions
		WHERE client_id = ?
	`, string(model.BankUnmatched), string(model.BankMatched), clientID).
		Scan(&stats.UnmatchedBank, &stats.MatchedBank)
	if err != nil {
		return nil, fmt.Errorf("failed to count bank transactions: %w", err)
	}

	return stats, nil
}
