package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewShowCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewAcceptMatchCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items, highest priority first",
		RunE:  runReviewList,
	}

	cmd.Flags().String("client", "", "filter by client ID")
	cmd.Flags().String("type", "", "filter by item type (booking, bank_match)")
	cmd.Flags().Int("limit", 50, "maximum items to show")

	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	clientID, _ := cmd.Flags().GetString("client")
	itemType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	items, err := store.ListPendingReviewItems(ctx, service.ReviewFilter{
		ClientID: clientID,
		Type:     model.ReviewItemType(itemType),
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list review items: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("Review queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT\tTYPE\tPRIO\tSCORE\tSOURCE\tCREATED")
	for i := range items {
		item := &items[i]
		score := "-"
		if item.Confidence != nil {
			score = fmt.Sprintf("%d", item.Confidence.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			item.ID,
			item.ClientID,
			item.Type,
			item.Priority,
			score,
			item.SourceRef,
			item.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one review item with its confidence breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			item, err := store.GetReviewItem(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(item, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <item-id>",
		Short: "Approve a pending item and post it with the suggested lines",
		Args:  cobra.ExactArgs(1),
		RunE:  runReviewApprove,
	}

	cmd.Flags().String("actor", "", "reviewer identity (required)")
	cmd.Flags().String("notes", "", "optional reviewer notes")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	actor, _ := cmd.Flags().GetString("actor")
	notes, _ := cmd.Flags().GetString("notes")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	manager, err := initManager(store)
	if err != nil {
		return err
	}

	voucher, err := manager.Approve(ctx, args[0], actor, notes)
	if err != nil {
		return err
	}

	fmt.Printf("Approved. Posted voucher %s (%s-%d-%d)\n",
		voucher.ID, voucher.Series, voucher.FiscalYear, voucher.SequenceNumber)
	return nil
}

func reviewRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <item-id>",
		Short: "Reject a pending item, optionally posting corrected lines",
		Long: `Reject a pending booking. Without --lines the suggestion is discarded and
nothing is posted. With --lines the booking posts using the corrected lines
from the given JSON file, and the corrected account is fed back into the
pattern history.`,
		Args: cobra.ExactArgs(1),
		RunE: runReviewReject,
	}

	cmd.Flags().String("actor", "", "reviewer identity (required)")
	cmd.Flags().String("reason", "", "why the suggestion was wrong")
	cmd.Flags().String("lines", "", "JSON file with corrected voucher lines")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runReviewReject(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	actor, _ := cmd.Flags().GetString("actor")
	reason, _ := cmd.Flags().GetString("reason")
	linesPath, _ := cmd.Flags().GetString("lines")

	var lines []model.VoucherLine
	if linesPath != "" {
		data, err := os.ReadFile(linesPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", linesPath, err)
		}
		if err := json.Unmarshal(data, &lines); err != nil {
			return fmt.Errorf("failed to parse %s: %w", linesPath, err)
		}
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	manager, err := initManager(store)
	if err != nil {
		return err
	}

	voucher, err := manager.Reject(ctx, args[0], actor, lines, reason)
	if err != nil {
		return err
	}

	if voucher != nil {
		fmt.Printf("Corrected. Posted voucher %s (%s-%d-%d)\n",
			voucher.ID, voucher.Series, voucher.FiscalYear, voucher.SequenceNumber)
	} else {
		fmt.Println("Rejected. No voucher posted.")
	}
	return nil
}

func reviewAcceptMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept-match <item-id> <voucher-id>",
		Short: "Resolve a bank_match item by accepting one candidate pairing",
		Args:  cobra.ExactArgs(2),
		RunE:  runReviewAcceptMatch,
	}

	cmd.Flags().String("actor", "", "reviewer identity (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runReviewAcceptMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	actor, _ := cmd.Flags().GetString("actor")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	manager, err := initManager(store)
	if err != nil {
		return err
	}

	match, err := manager.AcceptMatch(ctx, args[0], actor, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Matched transaction %s to voucher %s (%s, %d)\n",
		match.TransactionID, match.VoucherID, match.Strategy, match.Confidence)
	return nil
}
