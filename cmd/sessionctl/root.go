package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exprep-backend/internal/app"
	"github.com/stemsi/exprep-backend/internal/config"
	"github.com/stemsi/exprep-backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "sessionctl",
	Short:         "Maintenance tool for the ExPrep session engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().String("store", "", "Store driver (overrides STORE_DRIVER)")

	rootCmd.AddCommand(expireDueCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(importBankCmd)
}

// setup loads config, logs to stderr and wires the application. Callers must
// Close the returned App.
func setup(cmd *cobra.Command) (*app.App, *config.Config, zerolog.Logger, error) {
	cfg := config.Load()
	if driver, _ := cmd.Flags().GetString("store"); driver != "" {
		cfg.StoreDriver = driver
	}
	// Events from one-off commands are not needed on the bus.
	cfg.EventsEnabled = false

	log := logger.New(os.Stderr, cfg.LogLevel, "pretty")
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		return nil, nil, log, err
	}
	return a, cfg, log, nil
}
