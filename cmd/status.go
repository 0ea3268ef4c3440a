package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kimland-sync/internal/app"
	"kimland-sync/internal/types"
	"kimland-sync/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <sku>",
	Short: "Shows the last recorded sync status of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// only the result store is needed, not the remote site or Shopify
		s, err := app.OpenStore(cmd.Context(), app.NewLogger(verbose))
		if err != nil {
			return err
		}
		defer s.Close()

		return printStatus(cmd.Context(), os.Stdout, s, args[0])
	},
}

// StatusOutput is what the status command prints
type StatusOutput struct {
	SKU    string           `json:"sku"`
	Status types.SyncStatus `json:"status"`
}

func printStatus(ctx context.Context, w io.Writer, s store.ResultStore, identifier string) error {
	reader, ok := s.(store.StatusReader)
	if !ok {
		return fmt.Errorf("results are not recorded, set DATABASE_URL or RESULTS_FILE")
	}

	status, err := reader.LastResult(ctx, identifier)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("no sync recorded for %s", identifier)
	}
	if err != nil {
		return fmt.Errorf("failed to read status of %s: %w", identifier, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(StatusOutput{SKU: identifier, Status: status})
}
