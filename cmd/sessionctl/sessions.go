package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exprep-backend/internal/workbook"
)

var expireDueCmd = &cobra.Command{
	Use:   "expire-due",
	Short: "Expire every active test session whose time ran out",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		total := 0
		for {
			n, err := a.Test.ExpireDue(cmd.Context(), cfg.ExpiryBatchSize)
			if err != nil {
				return err
			}
			total += n
			if n < cfg.ExpiryBatchSize {
				break
			}
		}
		log.Info().Int("expired", total).Msg("Expiry sweep finished")
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", total)
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Print the results of a graded test session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}

		a, _, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Test.GetResults(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Work with test history",
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a user's test history to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawUser, _ := cmd.Flags().GetString("user")
		out, _ := cmd.Flags().GetString("out")
		rawExam, _ := cmd.Flags().GetString("exam")
		limit, _ := cmd.Flags().GetInt("limit")

		userID, err := uuid.Parse(rawUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		var examID *uuid.UUID
		if rawExam != "" {
			id, err := uuid.Parse(rawExam)
			if err != nil {
				return fmt.Errorf("invalid --exam: %w", err)
			}
			examID = &id
		}

		a, _, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Test.CollectHistory(cmd.Context(), userID, examID, limit)
		if err != nil {
			return err
		}
		data, err := workbook.ExportHistory(entries)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d row(s) to %s\n", len(entries), out)
		return nil
	},
}

func init() {
	historyExportCmd.Flags().String("user", "", "User id")
	historyExportCmd.Flags().String("out", "history.xlsx", "Output file")
	historyExportCmd.Flags().String("exam", "", "Only sessions of this exam id")
	historyExportCmd.Flags().Int("limit", 1000, "Maximum number of rows")
	_ = historyExportCmd.MarkFlagRequired("user")
	historyCmd.AddCommand(historyExportCmd)
}
