package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

const reviewColumns = `id, client_id, source_ref, type, status, priority,
	assigned_to, notes, resolved_by, voucher_id, confidence, candidate,
	candidates, created_at, resolved_at`

// SaveReviewItem inserts a new review queue item.
func (s *SQLiteStorage) SaveReviewItem(ctx context.Context, item *model.ReviewItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReviewItem(item); err != nil {
		return err
	}
	return s.saveReviewItemTx(ctx, s.db, item)
}

func (s *SQLiteStorage) saveReviewItemTx(ctx context.Context, q queryable, item *model.ReviewItem) error {
	confidence, err := marshalNullable(item.Confidence)
	if err != nil {
		return fmt.Errorf("failed to encode confidence snapshot: %w", err)
	}
	candidate, err := marshalNullable(item.Candidate)
	if err != nil {
		return fmt.Errorf("failed to encode candidate: %w", err)
	}
	var candidates []byte
	if len(item.Candidates) > 0 {
		if candidates, err = json.Marshal(item.Candidates); err != nil {
			return fmt.Errorf("failed to encode match candidates: %w", err)
		}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO review_items (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.ClientID, item.SourceRef, string(item.Type),
		string(item.Status), item.Priority, item.AssignedTo, item.Notes,
		item.ResolvedBy, item.VoucherID, nullString(confidence),
		nullString(candidate), nullString(candidates),
		item.CreatedAt, item.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review item: %w", err)
	}
	return nil
}

// GetReviewItem retrieves one review item, or common.ErrUnknownItem.
func (s *SQLiteStorage) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getReviewItemTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getReviewItemTx(ctx context.Context, q queryable, id string) (*model.ReviewItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_items WHERE id = ?`, id)
	item, err := scanReviewItem(row)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownItem, id)
	}
	return item, err
}

// GetPendingReviewItemBySource returns the open item for a source record,
// or common.ErrNotFound. At most one can exist.
func (s *SQLiteStorage) GetPendingReviewItemBySource(ctx context.Context, clientID, sourceRef string) (*model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getPendingReviewItemBySourceTx(ctx, s.db, clientID, sourceRef)
}

func (s *SQLiteStorage) getPendingReviewItemBySourceTx(ctx context.Context, q queryable, clientID, sourceRef string) (*model.ReviewItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+reviewColumns+` FROM review_items
		WHERE client_id = ? AND source_ref = ? AND status = ?
	`, clientID, sourceRef, string(model.ReviewPending))
	return scanReviewItem(row)
}

// ListPendingReviewItems returns queued items, highest priority first.
func (s *SQLiteStorage) ListPendingReviewItems(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listPendingReviewItemsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listPendingReviewItemsTx(ctx context.Context, q queryable, filter service.ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE status = ?`
	args := []any{string(model.ReviewPending)}

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY priority, created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// ResolveReviewItem transitions an item from PENDING to a terminal status.
// The write is conditioned on the status still being PENDING, so losing a
// claim race yields the explicit conflict error, never a silent overwrite.
func (s *SQLiteStorage) ResolveReviewItem(ctx context.Context, id string, status model.ReviewItemStatus, actor, notes, voucherID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.resolveReviewItemTx(ctx, s.db, id, status, actor, notes, voucherID)
}

func (s *SQLiteStorage) resolveReviewItemTx(ctx context.Context, q queryable, id string, status model.ReviewItemStatus, actor, notes, voucherID string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: cannot resolve to non-terminal status %s", ErrInvalidReviewItem, status)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE review_items
		SET status = ?, resolved_by = ?, notes = ?, voucher_id = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, string(status), actor, notes, voucherID, time.Now().UTC(), id, string(model.ReviewPending))
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the claim or the item never existed; tell the caller which.
	var current string
	err = q.QueryRowContext(ctx, `SELECT status FROM review_items WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", common.ErrUnknownItem, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read review item status: %w", err)
	}
	return &common.ConcurrencyConflictError{
		ItemID:  id,
		Outcome: current,
	}
}

func scanReviewItem(row rowScanner) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var itemType, status string
	var assignedTo, notes, resolvedBy, voucherID sql.NullString
	var confidence, candidate, candidates sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.ClientID, &item.SourceRef, &itemType, &status,
		&item.Priority, &assignedTo, &notes, &resolvedBy, &voucherID,
		&confidence, &candidate, &candidates, &item.CreatedAt, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan review item: %w", err)
	}

	item.Type = model.ReviewItemType(itemType)
	item.Status = model.ReviewItemStatus(status)
	item.AssignedTo = assignedTo.String
	item.Notes = notes.String
	item.ResolvedBy = resolvedBy.String
	item.VoucherID = voucherID.String
	if resolvedAt.Valid {
		item.ResolvedAt = &resolvedAt.Time
	}

	if confidence.Valid && confidence.String != "" {
		item.Confidence = &model.ConfidenceResult{}
		if err := json.Unmarshal([]byte(confidence.String), item.Confidence); err != nil {
			return nil, fmt.Errorf("corrupt confidence snapshot for item %s: %w", item.ID, err)
		}
	}
	if candidate.Valid && candidate.String != "" {
		item.Candidate = &model.InvoiceCandidate{}
		if err := json.Unmarshal([]byte(candidate.String), item.Candidate); err != nil {
			return nil, fmt.Errorf("corrupt candidate for item %s: %w", item.ID, err)
		}
	}
	if candidates.Valid && candidates.String != "" {
		if err := json.Unmarshal([]byte(candidates.String), &item.Candidates); err != nil {
			return nil, fmt.Errorf("corrupt match candidates for item %s: %w", item.ID, err)
		}
	}

	return &item, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case *model.ConfidenceResult:
		if value == nil {
			return nil, nil
		}
	case *model.InvoiceCandidate:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
