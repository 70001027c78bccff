package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import bank transactions from OFX/QFX files",
		Long: `Import bank statement transactions from OFX or QFX files exported from
your bank. Already-imported transactions are recognized by content hash and
skipped, so re-importing overlapping statements is safe.

Examples:
  # Import a single statement
  ledgerline import --client acme ~/Downloads/statement_jan.ofx

  # Import everything in a directory
  ledgerline import --client acme ~/Downloads/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("client", "", "client ID to attribute transactions to (required)")
	cmd.Flags().BoolP("dry-run", "d", false, "preview import without saving")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	clientID, _ := cmd.Flags().GetString("client")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return fmt.Errorf("no files found to import")
	}

	slog.Info("Importing OFX files",
		"file_count", len(allFiles),
		"client", clientID,
		"dry_run", dryRun)

	parser := ofx.NewParser()
	seen := make(map[string]bool)
	var transactions []model.BankTransaction

	for _, filePath := range allFiles {
		f, err := os.Open(filePath)
		if err != nil {
			slog.Error("Failed to open file", "file", filePath, "error", err)
			continue
		}

		parsed, err := parser.ParseFile(ctx, f, clientID)
		if err != nil {
			_ = f.Close()
			slog.Error("Failed to parse OFX file", "file", filePath, "error", err)
			continue
		}

		// A dry run also previews which statement accounts the file covers.
		if dryRun {
			if _, err := f.Seek(0, io.SeekStart); err == nil {
				if accounts, err := parser.GetAccounts(ctx, f); err == nil {
					slog.Info("Statement accounts",
						"file", filepath.Base(filePath),
						"accounts", accounts)
				}
			}
		}
		_ = f.Close()

		added := 0
		for _, txn := range parsed {
			if seen[txn.Hash] {
				continue
			}
			seen[txn.Hash] = true
			transactions = append(transactions, txn)
			added++
		}

		slog.Info("Processed file",
			"file", filepath.Base(filePath),
			"transactions", len(parsed),
			"new", added)
	}

	if dryRun {
		slog.Info("Dry run complete, nothing saved",
			"transactions", len(transactions))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	inserted, err := store.SaveBankTransactions(ctx, transactions)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	slog.Info("Import complete",
		"parsed", len(transactions),
		"inserted", inserted,
		"duplicates", len(transactions)-inserted)

	return nil
}
