package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kimland-sync/internal/app"
	"kimland-sync/internal/types"
	"kimland-sync/syncer"
)

var (
	batchAll  bool
	batchFile string
)

var batchCmd = &cobra.Command{
	Use:   "batch (--all | --file <items.json5>)",
	Short: "Synchronizes many products one after the other",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchAll == (batchFile != "") {
			return fmt.Errorf("exactly one of --all or --file is required")
		}

		a, err := app.New(cmd.Context(), app.Options{ConfigPath: configPath, Verbose: verbose})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		var items []types.BatchItem
		if batchAll {
			items, err = syncer.CatalogItems(cmd.Context(), a.Catalog, a.Logger)
		} else {
			items, err = syncer.LoadItems(batchFile)
		}
		if err != nil {
			return err
		}

		// Ctrl-C cancels the batch; the partial summary is still printed
		events := make(chan types.ProgressEvent)
		done := make(chan types.BatchSummary, 1)
		go func() {
			done <- a.Orchestrator.SyncBatch(cmd.Context(), items, events)
			close(events)
		}()

		for ev := range events {
			a.Logger.Infof("[%3d%%] %s", ev.Percentage, ev.Message)
		}
		summary := <-done
		summary.Results = nil

		return writeJSON(summary)
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchAll, "all", false, "Synchronize every catalog product carrying a reference")
	batchCmd.Flags().StringVar(&batchFile, "file", "", "JSON5 array of {sku, product_id, name} items")
}
