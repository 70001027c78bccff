package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
)

// LookupPattern retrieves the outcome counters for one booking combination.
func (s *SQLiteStorage) LookupPattern(ctx context.Context, clientID, vendorID, account string) (*model.Pattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendorID, "vendorID"); err != nil {
		return nil, err
	}
	return s.lookupPatternTx(ctx, s.db, clientID, vendorID, account)
}

func (s *SQLiteStorage) lookupPatternTx(ctx context.Context, q queryable, clientID, vendorID, account string) (*model.Pattern, error) {
	var pattern model.Pattern
	var taxCode sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT client_id, vendor_id, account, tax_code, use_count, success_count, last_used
		FROM patterns
		WHERE client_id = ? AND vendor_id = ? AND account = ?
	`, clientID, vendorID, account).Scan(
		&pattern.ClientID,
		&pattern.VendorID,
		&pattern.Account,
		&taxCode,
		&pattern.UseCount,
		&pattern.SuccessCount,
		&pattern.LastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	pattern.TaxCode = taxCode.String

	return &pattern, nil
}

// GetVendorProfile aggregates a vendor's booking history: total bookings,
// the dominant account and its share, and the amount distribution.
func (s *SQLiteStorage) GetVendorProfile(ctx context.Context, clientID, vendorID string) (*model.VendorProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendorID, "vendorID"); err != nil {
		return nil, err
	}
	return s.getVendorProfileTx(ctx, s.db, clientID, vendorID)
}

func (s *SQLiteStorage) getVendorProfileTx(ctx context.Context, q queryable, clientID, vendorID string) (*model.VendorProfile, error) {
	profile := &model.VendorProfile{}

	rows, err := q.QueryContext(ctx, `
		SELECT account, use_count
		FROM patterns
		WHERE client_id = ? AND vendor_id = ?
		ORDER BY use_count DESC, account
	`, clientID, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	total := 0
	first := true
	var dominantCount int
	for rows.Next() {
		var account string
		var useCount int
		if err := rows.Scan(&account, &useCount); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		total += useCount
		if first {
			profile.DominantAccount = account
			dominantCount = useCount
			first = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total == 0 {
		return nil, common.ErrNotFound
	}
	profile.TotalBookings = total
	profile.DominantShare = float64(dominantCount) / float64(total)

	var count int
	var sum, sqsum float64
	err = q.QueryRowContext(ctx, `
		SELECT booking_count, amount_sum, amount_sqsum
		FROM vendor_stats
		WHERE client_id = ? AND vendor_id = ?
	`, clientID, vendorID).Scan(&count, &sum, &sqsum)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get vendor stats: %w", err)
	}

	if count > 0 {
		mean := sum / float64(count)
		profile.AmountMean = mean
		variance := sqsum/float64(count) - mean*mean
		if variance > 0 {
			profile.AmountStdDev = math.Sqrt(variance)
		}
	}

	return profile, nil
}

// RecordOutcome additively updates the pattern counters and vendor amount
// statistics for a booking outcome. Patterns are never deleted.
func (s *SQLiteStorage) RecordOutcome(ctx context.Context, clientID, vendorID, account, taxCode string, outcome model.PatternOutcome, amount decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(vendorID, "vendorID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.recordOutcomeTx(ctx, tx, clientID, vendorID, account, taxCode, outcome, amount); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) recordOutcomeTx(ctx context.Context, q queryable, clientID, vendorID, account, taxCode string, outcome model.PatternOutcome, amount decimal.Decimal) error {
	success := 0
	switch outcome {
	case model.OutcomeAutoPosted, model.OutcomeApproved, model.OutcomeCorrected:
		success = 1
	case model.OutcomeRejected:
	default:
		return fmt.Errorf("unknown pattern outcome %q", outcome)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO patterns (client_id, vendor_id, account, tax_code, use_count, success_count, last_used)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(client_id, vendor_id, account) DO UPDATE SET
			use_count = use_count + 1,
			success_count = success_count + excluded.success_count,
			tax_code = excluded.tax_code,
			last_used = excluded.last_used
	`, clientID, vendorID, account, taxCode, success, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record pattern outcome: %w", err)
	}

	// Rejections carry no posted amount, so they don't move the stats.
	if outcome == model.OutcomeRejected {
		return nil
	}

	value, _ := amount.Float64()
	_, err = q.ExecContext(ctx, `
		INSERT INTO vendor_stats (client_id, vendor_id, booking_count, amount_sum, amount_sqsum)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(client_id, vendor_id) DO UPDATE SET
			booking_count = booking_count + 1,
			amount_sum = amount_sum + excluded.amount_sum,
			amount_sqsum = amount_sqsum + excluded.amount_sqsum
	`, clientID, vendorID, value, value*value)
	if err != nil {
		return fmt.Errorf("failed to record vendor stats: %w", err)
	}

	return nil
}
