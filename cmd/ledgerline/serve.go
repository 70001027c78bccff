package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/config"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the review queue and stats over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().Int("port", 0, "listen port (overrides api.port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	apiCfg := config.LoadAPIConfig()
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		apiCfg.Port = port
	}

	server := api.NewServer(apiCfg, store, manager, slog.Default())

	// Shut down when the root context is canceled (interrupt signal).
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return <-errCh
	}
}
