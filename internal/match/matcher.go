// Package match implements the bank reconciliation matcher: it links
// unmatched bank transactions to posted ledger vouchers using ordered
// heuristics and escalates ambiguous cases to the review queue.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

// Config holds matcher settings.
type Config struct {
	AmountTolerance decimal.Decimal
	// AutoMatchThreshold is the minimum confidence for committing a match
	// without review.
	AutoMatchThreshold int
	// DateWindowDays bounds the amount+date strategy.
	DateWindowDays int
	// AmountTolerancePercent bounds the fuzzy strategy's amount check.
	AmountTolerancePercent float64
	// MinSimilarity is the text-overlap floor for the fuzzy strategy.
	MinSimilarity float64
	// TopCandidates is how many candidates an escalation carries.
	TopCandidates int
}

// DefaultConfig returns the default matcher configuration.
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold:     80,
		DateWindowDays:         5,
		AmountTolerancePercent: 1.0,
		MinSimilarity:          0.5,
		TopCandidates:          3,
		AmountTolerance:        decimal.NewFromFloat(0.01),
	}
}

// Matcher runs the reconciliation batch.
type Matcher struct {
	store  service.Storage
	config Config

	// OnProgress, when set, is called after each transaction decision.
	OnProgress func(done, total int)
}

// NewMatcher creates a matcher over the given storage.
func NewMatcher(store service.Storage, config Config) *Matcher {
	return &Matcher{
		store:  store,
		config: config,
	}
}

// Run matches every unmatched bank transaction in the window against the
// unmatched posted vouchers. Each accept/escalate decision commits on its
// own, so cancellation between transactions loses no committed progress and
// a re-run over unchanged data produces nothing new.
func (m *Matcher) Run(ctx context.Context, clientID string, window service.Period) (*model.MatchStats, error) {
	transactions, err := m.store.GetUnmatchedBankTransactions(ctx, clientID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank transactions: %w", err)
	}
	vouchers, err := m.store.GetUnmatchedVouchers(ctx, clientID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load unmatched vouchers: %w", err)
	}

	// Deterministic processing order: date, then id.
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].Date.Before(transactions[j].Date)
		}
		return transactions[i].ID < transactions[j].ID
	})

	available := make(map[string]*model.Voucher, len(vouchers))
	for i := range vouchers {
		available[vouchers[i].ID] = &vouchers[i]
	}

	stats := &model.MatchStats{Fetched: len(transactions)}

	for i := range transactions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		txn := &transactions[i]
		if err := m.decide(ctx, txn, available, stats); err != nil {
			return stats, err
		}

		if m.OnProgress != nil {
			m.OnProgress(i+1, len(transactions))
		}
	}

	slog.Info("Matching run complete",
		"client", clientID,
		"fetched", stats.Fetched,
		"auto_matched", stats.AutoMatched,
		"escalated", stats.Escalated)

	return stats, nil
}

// decide generates candidates for one transaction and commits exactly one
// outcome: an auto-match, an escalation, or nothing.
func (m *Matcher) decide(ctx context.Context, txn *model.BankTransaction, available map[string]*model.Voucher, stats *model.MatchStats) error {
	// An earlier run may already have escalated this transaction.
	pending, err := m.store.GetPendingReviewItemBySource(ctx, txn.ClientID, txn.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to check pending escalations: %w", err)
	}
	if pending != nil {
		return nil
	}

	candidates := m.candidates(txn, available)
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	if best.Confidence >= m.config.AutoMatchThreshold {
		match := &model.Match{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			VoucherID:     best.VoucherID,
			Strategy:      best.Strategy,
			Confidence:    best.Confidence,
			CreatedAt:     time.Now().UTC(),
		}
		if err := m.store.SaveMatch(ctx, match); err != nil {
			return fmt.Errorf("failed to save match for transaction %s: %w", txn.ID, err)
		}
		// A matched voucher leaves the pool for the rest of the run.
		delete(available, best.VoucherID)
		stats.AutoMatched++

		slog.Debug("Auto-matched bank transaction",
			"transaction", txn.ID,
			"voucher", best.VoucherID,
			"strategy", best.Strategy,
			"confidence", best.Confidence)
		return nil
	}

	top := candidates
	if len(top) > m.config.TopCandidates {
		top = top[:m.config.TopCandidates]
	}
	item := &model.ReviewItem{
		ID:         uuid.NewString(),
		ClientID:   txn.ClientID,
		SourceRef:  txn.ID,
		Type:       model.ReviewTypeBankMatch,
		Status:     model.ReviewPending,
		Candidates: top,
		Priority:   model.PriorityFromScore(best.Confidence),
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SaveReviewItem(ctx, item); err != nil {
		return fmt.Errorf("failed to escalate transaction %s: %w", txn.ID, err)
	}
	stats.Escalated++

	slog.Debug("Escalated ambiguous bank transaction",
		"transaction", txn.ID,
		"candidates", len(top),
		"best_confidence", best.Confidence)
	return nil
}

// candidates evaluates the transaction against every available voucher and
// returns the results best-first under the deterministic ordering.
func (m *Matcher) candidates(txn *model.BankTransaction, available map[string]*model.Voucher) []model.MatchCandidate {
	var out []model.MatchCandidate
	for _, v := range available {
		if c := m.evaluate(txn, v); c != nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return better(&out[i], &out[j])
	})
	return out
}
