package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/match"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Reconcile bank transactions against posted vouchers",
		Long: `Run the bank reconciliation matcher over a client's unmatched transactions.
Confident pairings are recorded immediately; ambiguous ones are escalated to
the review queue. Re-running over the same period only processes what is
still unmatched.`,
		RunE: runMatch,
	}

	cmd.Flags().String("client", "", "client ID (required)")
	cmd.Flags().String("from", "", "period start, YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "period end, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	clientID, _ := cmd.Flags().GetString("client")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	period, err := parsePeriod(from, to)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	matchCfg, err := config.LoadMatchConfig()
	if err != nil {
		return err
	}

	matcher := match.NewMatcher(store, matchCfg)

	var bar *progressbar.ProgressBar
	matcher.OnProgress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Matching transactions..."),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		if err := bar.Set(done); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	stats, err := matcher.Run(ctx, clientID, period)
	if err != nil {
		return fmt.Errorf("matcher run failed: %w", err)
	}

	slog.Info("Reconciliation complete",
		"client", clientID,
		"fetched", stats.Fetched,
		"auto_matched", stats.AutoMatched,
		"escalated", stats.Escalated)

	return nil
}
