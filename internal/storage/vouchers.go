package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

const voucherColumns = `id, client_id, series, fiscal_year, sequence_number, date,
	description, source_ref, structured_ref, document_number, created_by,
	reverses_id, status, locked, created_at`

// SaveVoucher persists a voucher and its lines as one atomic unit.
func (s *SQLiteStorage) SaveVoucher(ctx context.Context, voucher *model.Voucher) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVoucher(voucher); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveVoucherTx(ctx, tx, voucher); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveVoucherTx(ctx context.Context, q queryable, voucher *model.Voucher) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vouchers (`+voucherColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		voucher.ID, voucher.ClientID, voucher.Series, voucher.FiscalYear,
		voucher.SequenceNumber, voucher.Date, voucher.Description,
		voucher.SourceRef, voucher.StructuredRef, voucher.DocumentNumber,
		voucher.CreatedBy, voucher.ReversesID, string(voucher.Status),
		voucher.Locked, voucher.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert voucher: %w", err)
	}

	for _, line := range voucher.Lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO voucher_lines (voucher_id, line_number, account, debit, credit, tax_code, tax_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			voucher.ID, line.LineNumber, line.Account,
			line.Debit.String(), line.Credit.String(),
			line.TaxCode, line.TaxAmount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert voucher line %d: %w", line.LineNumber, err)
		}
	}

	return nil
}

// GetVoucherByID retrieves a voucher with its lines.
func (s *SQLiteStorage) GetVoucherByID(ctx context.Context, id string) (*model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getVoucherByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getVoucherByIDTx(ctx context.Context, q queryable, id string) (*model.Voucher, error) {
	row := q.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`, id)
	return s.scanVoucher(ctx, q, row)
}

// GetVoucherBySource retrieves the voucher linked to a source record, or
// common.ErrNotFound if the source is not yet posted.
func (s *SQLiteStorage) GetVoucherBySource(ctx context.Context, clientID, sourceRef string) (*model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceRef, "sourceRef"); err != nil {
		return nil, err
	}
	return s.getVoucherBySourceTx(ctx, s.db, clientID, sourceRef)
}

func (s *SQLiteStorage) getVoucherBySourceTx(ctx context.Context, q queryable, clientID, sourceRef string) (*model.Voucher, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE client_id = ? AND source_ref = ?
	`, clientID, sourceRef)
	return s.scanVoucher(ctx, q, row)
}

// GetVoucherByNumber retrieves a voucher by its series position.
func (s *SQLiteStorage) GetVoucherByNumber(ctx context.Context, key service.SequenceKey, sequenceNumber int64) (*model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getVoucherByNumberTx(ctx, s.db, key, sequenceNumber)
}

func (s *SQLiteStorage) getVoucherByNumberTx(ctx context.Context, q queryable, key service.SequenceKey, sequenceNumber int64) (*model.Voucher, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE client_id = ? AND series = ? AND fiscal_year = ? AND sequence_number = ?
	`, key.ClientID, key.Series, key.FiscalYear, sequenceNumber)
	return s.scanVoucher(ctx, q, row)
}

// GetVouchersByPeriod retrieves all vouchers for a client in a date window.
func (s *SQLiteStorage) GetVouchersByPeriod(ctx context.Context, clientID string, period service.Period) ([]model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getVouchersByPeriodTx(ctx, s.db, clientID, period)
}

func (s *SQLiteStorage) getVouchersByPeriodTx(ctx context.Context, q queryable, clientID string, period service.Period) ([]model.Voucher, error) {
	return s.queryVouchers(ctx, q, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE client_id = ? AND date >= ? AND date < ?
		ORDER BY series, fiscal_year, sequence_number
	`, clientID, period.Start, period.End)
}

// GetUnmatchedVouchers retrieves posted vouchers in the window that no
// accepted match references yet. Reversals and reversed vouchers are not
// candidates for bank matching.
func (s *SQLiteStorage) GetUnmatchedVouchers(ctx context.Context, clientID string, period service.Period) ([]model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getUnmatchedVouchersTx(ctx, s.db, clientID, period)
}

func (s *SQLiteStorage) getUnmatchedVouchersTx(ctx context.Context, q queryable, clientID string, period service.Period) ([]model.Voucher, error) {
	return s.queryVouchers(ctx, q, `
		SELECT `+voucherColumns+` FROM vouchers v
		WHERE v.client_id = ? AND v.date >= ? AND v.date < ?
		  AND v.reverses_id = ''
		  AND NOT EXISTS (SELECT 1 FROM matches m WHERE m.voucher_id = v.id)
		  AND NOT EXISTS (SELECT 1 FROM vouchers r WHERE r.reverses_id = v.id)
		ORDER BY v.date, v.id
	`, clientID, period.Start, period.End)
}

// NextSequenceNumber atomically allocates the next number for a series.
// The upsert-increment is serialized by SQLite's single writer, so two
// concurrent creations for the same key can never observe the same number.
func (s *SQLiteStorage) NextSequenceNumber(ctx context.Context, key service.SequenceKey) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.nextSequenceNumberTx(ctx, s.db, key)
}

func (s *SQLiteStorage) nextSequenceNumberTx(ctx context.Context, q queryable, key service.SequenceKey) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO voucher_sequences (client_id, series, fiscal_year, next_number)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(client_id, series, fiscal_year) DO UPDATE SET
			next_number = next_number + 1
		RETURNING next_number
	`, key.ClientID, key.Series, key.FiscalYear).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number for %s/%s/%d: %w",
			key.ClientID, key.Series, key.FiscalYear, err)
	}
	return next, nil
}

func (s *SQLiteStorage) queryVouchers(ctx context.Context, q queryable, query string, args ...any) ([]model.Voucher, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vouchers []model.Voucher
	for rows.Next() {
		voucher, err := scanVoucherRow(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, *voucher)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range vouchers {
		lines, err := s.loadLines(ctx, q, vouchers[i].ID)
		if err != nil {
			return nil, err
		}
		vouchers[i].Lines = lines
	}

	return vouchers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucherRow(row rowScanner) (*model.Voucher, error) {
	var v model.Voucher
	var status string
	err := row.Scan(
		&v.ID, &v.ClientID, &v.Series, &v.FiscalYear, &v.SequenceNumber,
		&v.Date, &v.Description, &v.SourceRef, &v.StructuredRef,
		&v.DocumentNumber, &v.CreatedBy, &v.ReversesID, &status,
		&v.Locked, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan voucher: %w", err)
	}
	v.Status = model.VoucherStatus(status)
	return &v, nil
}

func (s *SQLiteStorage) scanVoucher(ctx context.Context, q queryable, row *sql.Row) (*model.Voucher, error) {
	voucher, err := scanVoucherRow(row)
	if err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, q, voucher.ID)
	if err != nil {
		return nil, err
	}
	voucher.Lines = lines

	return voucher, nil
}

func (s *SQLiteStorage) loadLines(ctx context.Context, q queryable, voucherID string) ([]model.VoucherLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT line_number, account, debit, credit, tax_code, tax_amount
		FROM voucher_lines
		WHERE voucher_id = ?
		ORDER BY line_number
	`, voucherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voucher lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.VoucherLine
	for rows.Next() {
		var line model.VoucherLine
		var debit, credit, taxAmount string
		if err := rows.Scan(&line.LineNumber, &line.Account, &debit, &credit, &line.TaxCode, &taxAmount); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("corrupt debit amount %q: %w", debit, err)
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit amount %q: %w", credit, err)
		}
		if line.TaxAmount, err = decimal.NewFromString(taxAmount); err != nil {
			return nil, fmt.Errorf("corrupt tax amount %q: %w", taxAmount, err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}
