// Package review implements the review queue manager: the decision between
// auto-posting and manual review, the item state machine, and the write-back
// of human corrections into the pattern store.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/score"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

// Config holds review queue settings.
type Config struct {
	// AutoPostThreshold is the minimum confidence score for posting a
	// suggestion without human review.
	AutoPostThreshold int
}

// DefaultConfig returns the default review queue configuration.
func DefaultConfig() Config {
	return Config{
		AutoPostThreshold: 80,
	}
}

// SubmitResult is the outcome of submitting a candidate: either an
// auto-posted voucher or a queued review item, never both.
type SubmitResult struct {
	AutoPosted *model.Voucher
	Queued     *model.ReviewItem
	Confidence *model.ConfidenceResult
}

// Manager orchestrates scoring, posting, and the review state machine.
type Manager struct {
	store     service.Storage
	scorer    *score.Scorer
	generator *voucher.Generator
	config    Config
}

// NewManager creates a review queue manager.
func NewManager(store service.Storage, scorer *score.Scorer, generator *voucher.Generator, config Config) *Manager {
	return &Manager{
		store:     store,
		scorer:    scorer,
		generator: generator,
		config:    config,
	}
}

// Submit scores a candidate and either posts it directly or queues it for
// review. Escalated candidates are always queued regardless of score.
func (m *Manager) Submit(ctx context.Context, candidate *model.InvoiceCandidate) (*SubmitResult, error) {
	confidence := m.scorer.Score(ctx, candidate)

	if confidence.Score >= m.config.AutoPostThreshold && !confidence.Escalated() {
		posted, err := m.autoPost(ctx, candidate)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{AutoPosted: posted, Confidence: confidence}, nil
	}

	item := &model.ReviewItem{
		ID:         uuid.NewString(),
		ClientID:   candidate.ClientID,
		SourceRef:  candidate.SourceRef(),
		Type:       model.ReviewTypeBooking,
		Status:     model.ReviewPending,
		Confidence: confidence,
		Candidate:  candidate,
		Priority:   model.PriorityFromScore(confidence.Score),
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SaveReviewItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to queue review item: %w", err)
	}

	slog.Info("Queued candidate for review",
		"client", candidate.ClientID,
		"source_ref", candidate.SourceRef(),
		"score", confidence.Score,
		"priority", item.Priority,
		"escalations", confidence.Escalations)

	return &SubmitResult{Queued: item, Confidence: confidence}, nil
}

// autoPost creates the voucher and reinforces the pattern store as one
// atomic unit.
func (m *Manager) autoPost(ctx context.Context, candidate *model.InvoiceCandidate) (*model.Voucher, error) {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	posted, err := m.generator.CreateInTx(ctx, tx, voucher.CreateRequest{
		ClientID:       candidate.ClientID,
		SourceRef:      candidate.SourceRef(),
		StructuredRef:  candidate.StructuredRef,
		DocumentNumber: candidate.InvoiceNumber,
		Description:    candidate.Description,
		Date:           candidate.InvoiceDate,
		Actor:          "auto",
		Lines:          voucher.BuildLines(candidate),
	})
	if err != nil {
		return nil, err
	}

	err = tx.RecordOutcome(ctx, candidate.ClientID, candidate.VendorID,
		candidate.SuggestedAccount, candidate.SuggestedTaxCode,
		model.OutcomeAutoPosted, candidate.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to record pattern outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit auto-post: %w", err)
	}

	return posted, nil
}

// Approve posts a pending booking item with its original suggested lines.
// The claim, the voucher, and the pattern update commit together; a failure
// anywhere leaves the item PENDING so it can be retried.
func (m *Manager) Approve(ctx context.Context, itemID, actor, notes string) (*model.Voucher, error) {
	var posted *model.Voucher
	err := m.resolve(ctx, itemID, func(ctx context.Context, tx service.Transaction, item *model.ReviewItem) (model.ReviewItemStatus, string, error) {
		if item.Type != model.ReviewTypeBooking {
			return "", "", fmt.Errorf("approve is not valid for %s items without a chosen candidate", item.Type)
		}
		candidate := item.Candidate

		var err error
		posted, err = m.generator.CreateInTx(ctx, tx, voucher.CreateRequest{
			ClientID:       candidate.ClientID,
			SourceRef:      candidate.SourceRef(),
			StructuredRef:  candidate.StructuredRef,
			DocumentNumber: candidate.InvoiceNumber,
			Description:    candidate.Description,
			Date:           candidate.InvoiceDate,
			Actor:          actor,
			Lines:          voucher.BuildLines(candidate),
		})
		if err != nil {
			return "", "", err
		}

		err = tx.RecordOutcome(ctx, candidate.ClientID, candidate.VendorID,
			candidate.SuggestedAccount, candidate.SuggestedTaxCode,
			model.OutcomeApproved, candidate.Total)
		if err != nil {
			return "", "", fmt.Errorf("failed to record pattern outcome: %w", err)
		}

		return model.ReviewApproved, posted.ID, nil
	}, actor, notes)
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// Reject resolves a pending item negatively. When corrected lines are
// supplied the item posts as CORRECTED with those lines and the corrected
// account gains pattern weight; without them the item is simply REJECTED and
// no voucher is created.
func (m *Manager) Reject(ctx context.Context, itemID, actor string, correctedLines []model.VoucherLine, reason string) (*model.Voucher, error) {
	var posted *model.Voucher
	err := m.resolve(ctx, itemID, func(ctx context.Context, tx service.Transaction, item *model.ReviewItem) (model.ReviewItemStatus, string, error) {
		if item.Type != model.ReviewTypeBooking {
			return model.ReviewRejected, "", nil
		}
		candidate := item.Candidate

		if len(correctedLines) == 0 {
			err := tx.RecordOutcome(ctx, candidate.ClientID, candidate.VendorID,
				candidate.SuggestedAccount, candidate.SuggestedTaxCode,
				model.OutcomeRejected, candidate.Total)
			if err != nil {
				return "", "", fmt.Errorf("failed to record pattern outcome: %w", err)
			}
			return model.ReviewRejected, "", nil
		}

		var err error
		posted, err = m.generator.CreateInTx(ctx, tx, voucher.CreateRequest{
			ClientID:       candidate.ClientID,
			SourceRef:      candidate.SourceRef(),
			StructuredRef:  candidate.StructuredRef,
			DocumentNumber: candidate.InvoiceNumber,
			Description:    candidate.Description,
			Date:           candidate.InvoiceDate,
			Actor:          actor,
			Lines:          correctedLines,
		})
		if err != nil {
			return "", "", err
		}

		// Corrections teach the store the account the human chose.
		corrected := correctedAccount(correctedLines)
		err = tx.RecordOutcome(ctx, candidate.ClientID, candidate.VendorID,
			corrected.Account, corrected.TaxCode,
			model.OutcomeCorrected, candidate.Total)
		if err != nil {
			return "", "", fmt.Errorf("failed to record pattern outcome: %w", err)
		}

		return model.ReviewCorrected, posted.ID, nil
	}, actor, reason)
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// AcceptMatch resolves a bank_match item by accepting one of its candidate
// pairings.
func (m *Manager) AcceptMatch(ctx context.Context, itemID, actor, voucherID string) (*model.Match, error) {
	var accepted *model.Match
	err := m.resolve(ctx, itemID, func(ctx context.Context, tx service.Transaction, item *model.ReviewItem) (model.ReviewItemStatus, string, error) {
		if item.Type != model.ReviewTypeBankMatch {
			return "", "", fmt.Errorf("item %s is not a bank match item", item.ID)
		}

		candidate := findCandidate(item.Candidates, voucherID)
		if candidate == nil {
			return "", "", fmt.Errorf("%w: voucher %s is not a candidate for item %s", common.ErrNotFound, voucherID, item.ID)
		}

		accepted = &model.Match{
			ID:            uuid.NewString(),
			TransactionID: candidate.TransactionID,
			VoucherID:     candidate.VoucherID,
			Strategy:      candidate.Strategy,
			Confidence:    candidate.Confidence,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.SaveMatch(ctx, accepted); err != nil {
			return "", "", fmt.Errorf("failed to save match: %w", err)
		}

		return model.ReviewApproved, "", nil
	}, actor, "")
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// ListPending returns queued items ordered by priority.
func (m *Manager) ListPending(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewItem, error) {
	return m.store.ListPendingReviewItems(ctx, filter)
}

// GetDetail returns one review item with its confidence snapshot.
func (m *Manager) GetDetail(ctx context.Context, itemID string) (*model.ReviewItem, error) {
	return m.store.GetReviewItem(ctx, itemID)
}

// resolveFunc performs the item-specific work inside the resolution
// transaction and returns the terminal status plus voucher reference.
type resolveFunc func(ctx context.Context, tx service.Transaction, item *model.ReviewItem) (model.ReviewItemStatus, string, error)

// resolve implements claim-then-act: the transition PENDING -> terminal is
// conditioned on the status still being PENDING at write time, and the whole
// resolution commits or rolls back as one unit.
func (m *Manager) resolve(ctx context.Context, itemID string, fn resolveFunc, actor, notes string) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := tx.GetReviewItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != model.ReviewPending {
		return &common.ConcurrencyConflictError{
			ItemID:  itemID,
			Outcome: string(item.Status),
		}
	}

	status, voucherID, err := fn(ctx, tx, item)
	if err != nil {
		common.LogError(err, "review resolution failed, item stays pending", common.Fields{
			"item_id": itemID,
			"client":  item.ClientID,
			"source":  item.SourceRef,
			"actor":   actor,
		})
		return err
	}

	// The guarded write; a concurrent winner makes this fail with the
	// conflict error and rolls back everything fn did.
	if err := tx.ResolveReviewItem(ctx, itemID, status, actor, notes, voucherID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}

	slog.Info("Resolved review item",
		"item_id", itemID,
		"status", status,
		"actor", actor,
		"voucher_id", voucherID)

	return nil
}

func correctedAccount(lines []model.VoucherLine) model.VoucherLine {
	for _, line := range lines {
		if line.IsDebit() {
			return line
		}
	}
	return lines[0]
}

func findCandidate(candidates []model.MatchCandidate, voucherID string) *model.MatchCandidate {
	for i := range candidates {
		if candidates[i].VoucherID == voucherID {
			return &candidates[i]
		}
	}
	return nil
}
