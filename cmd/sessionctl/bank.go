package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/exprep-backend/internal/app"
	"github.com/stemsi/exprep-backend/internal/workbook"
)

var importBankCmd = &cobra.Command{
	Use:   "import-bank <file.xlsx>",
	Short: "Import exams and questions from an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		bank, rowErrs, err := workbook.ReadQuestionBank(f)
		if err != nil {
			return err
		}
		printRowErrors(cmd.ErrOrStderr(), rowErrs)
		if strict && len(rowErrs) > 0 {
			return fmt.Errorf("%d row(s) rejected, nothing imported", len(rowErrs))
		}

		a, _, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		exams, questions, err := importBank(cmd.Context(), a.Bank, bank)
		if err != nil {
			return err
		}
		log.Info().Int("exams", exams).Int("questions", questions).Msg("Question bank imported")
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d exam(s), %d question(s), skipped %d row(s)\n", exams, questions, len(rowErrs))
		return nil
	},
}

func init() {
	importBankCmd.Flags().Bool("strict", false, "Abort when any row is invalid")
}

func importBank(ctx context.Context, w app.BankWriter, bank *workbook.Bank) (int, int, error) {
	for i := range bank.Exams {
		if err := w.UpsertExam(ctx, &bank.Exams[i]); err != nil {
			return 0, 0, fmt.Errorf("import exam %s: %w", bank.Exams[i].Code, err)
		}
	}
	for i := range bank.Questions {
		if err := w.UpsertQuestion(ctx, &bank.Questions[i]); err != nil {
			return len(bank.Exams), i, fmt.Errorf("import question %s: %w", bank.Questions[i].ID, err)
		}
	}
	return len(bank.Exams), len(bank.Questions), nil
}

func printRowErrors(w io.Writer, errs []workbook.RowError) {
	for _, e := range errs {
		fmt.Fprintln(w, "skip", e.Error())
	}
}
