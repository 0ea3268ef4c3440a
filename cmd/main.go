package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kimland-sync/internal/app"
	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "kimland-sync",
	Short:        "Synchronizes Shopify stock with the Kimland back-office",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Configuration file (JSON5)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	rootCmd.AddCommand(loginCmd, syncCmd, batchCmd, statusCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Checks the Kimland credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), app.Options{ConfigPath: configPath, Verbose: verbose})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		if !a.Auth.Authenticate(cmd.Context(), utils.CredentialsFromEnv()) {
			return fmt.Errorf("login refused by %s", a.Config.BaseURL)
		}
		a.Logger.Infof("Logged in to %s", a.Config.BaseURL)
		return nil
	},
}

var (
	syncProductID int64
	syncName      string
)

var syncCmd = &cobra.Command{
	Use:   "sync <sku> --product-id <id> [--name <title>]",
	Short: "Synchronizes the stock of one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncProductID == 0 {
			return fmt.Errorf("--product-id is required")
		}

		a, err := app.New(cmd.Context(), app.Options{ConfigPath: configPath, Verbose: verbose})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		result := a.Orchestrator.SyncProductInventory(cmd.Context(), args[0], syncProductID, a.Catalog, syncName)
		if err := writeJSON(result); err != nil {
			return err
		}
		if result.Status != types.StatusSuccess {
			return fmt.Errorf("sync of %s ended with status %s", args[0], result.Status)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int64Var(&syncProductID, "product-id", 0, "Shopify product id")
	syncCmd.Flags().StringVar(&syncName, "name", "", "Product title used to validate the match")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
