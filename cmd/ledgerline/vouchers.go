package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

func vouchersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vouchers",
		Short: "Inspect and reverse posted vouchers",
	}

	cmd.AddCommand(vouchersListCmd())
	cmd.AddCommand(vouchersShowCmd())
	cmd.AddCommand(vouchersReverseCmd())

	return cmd
}

func vouchersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posted vouchers for a client and period",
		RunE:  runVouchersList,
	}

	cmd.Flags().String("client", "", "client ID (required)")
	cmd.Flags().String("from", "", "period start, YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "period end, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runVouchersList(cmd *cobra.Command, _ []string) error {
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

	vouchers, err := store.GetVouchersByPeriod(ctx, clientID, period)
	if err != nil {
		return fmt.Errorf("failed to list vouchers: %w", err)
	}

	if len(vouchers) == 0 {
		fmt.Println("No vouchers in period.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tDATE\tTOTAL\tSOURCE\tDESCRIPTION")
	for i := range vouchers {
		v := &vouchers[i]
		number := fmt.Sprintf("%s-%d-%d", v.Series, v.FiscalYear, v.SequenceNumber)
		description := v.Description
		if v.IsReversal() {
			description = "(reversal) " + description
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			number,
			v.Date.Format("2006-01-02"),
			v.Total().StringFixed(2),
			v.SourceRef,
			description)
	}
	return w.Flush()
}

func vouchersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <voucher-id>",
		Short: "Show one voucher with all its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			v, err := store.GetVoucherByID(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func vouchersReverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <voucher-id>",
		Short: "Post a reversal voucher offsetting an existing one",
		Long: `Posted vouchers are immutable; mistakes are corrected by posting a new
voucher with debits and credits swapped. The reversal references the
original and gets its own sequence number.`,
		Args: cobra.ExactArgs(1),
		RunE: runVouchersReverse,
	}

	cmd.Flags().String("actor", "", "who is reversing (required)")
	cmd.Flags().String("date", "", "reversal date, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runVouchersReverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	actor, _ := cmd.Flags().GetString("actor")
	dateStr, _ := cmd.Flags().GetString("date")

	date := time.Now().UTC()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateStr, err)
		}
		date = parsed
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	voucherCfg, err := config.LoadVoucherConfig()
	if err != nil {
		return err
	}
	generator := voucher.NewGenerator(store, voucherCfg)

	reversal, err := generator.Reverse(ctx, args[0], actor, date)
	if err != nil {
		return err
	}

	fmt.Printf("Posted reversal %s (%s-%d-%d) offsetting %s\n",
		reversal.ID, reversal.Series, reversal.FiscalYear, reversal.SequenceNumber, reversal.ReversesID)
	return nil
}
