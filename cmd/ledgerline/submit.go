package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit [files...]",
		Short: "Submit booking candidates for scoring and posting",
		Long: `Submit normalized invoice candidates from JSON files. Each candidate is
scored; confident ones post immediately as vouchers, the rest land in the
review queue.

A file holds either a single candidate object or an array of candidates.

Examples:
  # Submit one batch
  ledgerline submit ~/intake/batch-2024-03.json

  # Submit several files at once
  ledgerline submit ~/intake/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSubmit,
	}

	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	manager, err := initManager(store)
	if err != nil {
		return err
	}

	var posted, queued, skipped, failed int

	for _, path := range args {
		candidates, err := readCandidates(path)
		if err != nil {
			return err
		}

		for i := range candidates {
			candidate := &candidates[i]
			result, err := manager.Submit(ctx, candidate)
			switch {
			case err == nil:
			case errors.Is(err, common.ErrDuplicatePosting):
				// Resubmitting an already-booked batch is routine.
				slog.Debug("Candidate already posted, skipping",
					"candidate", candidate.ID)
				skipped++
				continue
			default:
				slog.Error("Failed to submit candidate",
					"candidate", candidate.ID,
					"error", err)
				failed++
				continue
			}

			if result.AutoPosted != nil {
				slog.Info("Auto-posted voucher",
					"candidate", candidate.ID,
					"voucher", result.AutoPosted.ID,
					"number", fmt.Sprintf("%s-%d-%d", result.AutoPosted.Series, result.AutoPosted.FiscalYear, result.AutoPosted.SequenceNumber),
					"score", result.Confidence.Score)
				posted++
			} else {
				slog.Info("Queued for review",
					"candidate", candidate.ID,
					"item", result.Queued.ID,
					"score", result.Confidence.Score,
					"escalations", result.Confidence.Escalations)
				queued++
			}
		}
	}

	slog.Info("Submit complete",
		"auto_posted", posted,
		"queued", queued,
		"skipped", skipped,
		"failed", failed)

	if failed > 0 {
		return fmt.Errorf("%d candidate(s) failed to submit", failed)
	}
	return nil
}

// readCandidates loads one JSON file holding a candidate or an array of
// candidates.
func readCandidates(path string) ([]model.InvoiceCandidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var candidates []model.InvoiceCandidate
	if err := json.Unmarshal(data, &candidates); err == nil {
		return candidates, nil
	}

	var single model.InvoiceCandidate
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return []model.InvoiceCandidate{single}, nil
}
