package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/deeplearn/internal/grading"
)

var submitCmd = &cobra.Command{
	Use:   "submit <user-id> <project-id>",
	Short: "Grade a project solution and record it",
	Long: "Reads the solution from --file (or stdin when the file is \"-\"), grades it " +
		"against the project's reference solution, and credits the project on the " +
		"learner's profile the first time it is solved.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		wait, _ := cmd.Flags().GetDuration("wait")

		code, err := readSolution(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}

		a, cleanup, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := a.requireLLM(); err != nil {
			return err
		}

		ctx := cmd.Context()
		out, err := a.submissions.Submit(ctx, args[0], args[1], code)
		w := cmd.OutOrStdout()
		if out != nil && out.Verdict != nil {
			printVerdict(w, out.Verdict)
		}
		if err != nil {
			return err
		}

		if out.Solve != nil {
			if out.Solve.CreditedNow {
				fmt.Fprintf(w, "\nProject credited. Solved projects: %d\n", out.Solve.Profile.SolvedProjects)
			} else {
				fmt.Fprintln(w, "\nProject was already credited.")
			}
			awaitRecommendation(ctx, w, out.Solve.Refresh, wait)
		}
		return a.ledger.Wait(ctx)
	},
}

func readSolution(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch file {
	case "":
		return "", errors.New("--file is required (use - for stdin)")
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read solution: %w", err)
	}
	return string(data), nil
}

func printVerdict(w io.Writer, v *grading.Verdict) {
	status := "✗ Incorrect"
	if v.IsCorrect {
		status = "✓ Correct"
	}
	fmt.Fprintln(w, status)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "What went well:\n%s\n\n", v.PositiveFeedback)
	fmt.Fprintf(w, "Areas for improvement:\n%s\n", v.AreasForImprovement)
	if len(v.KeyTakeaways) > 0 {
		fmt.Fprintln(w, "\nKey takeaways:")
		for _, k := range v.KeyTakeaways {
			fmt.Fprintf(w, "  - %s\n", k)
		}
	}
	if !v.IsCorrect && v.SuggestedSolution != "" {
		fmt.Fprintf(w, "\nSuggested solution:\n%s\n", v.SuggestedSolution)
	}
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "Solution source file, or - for stdin")
	submitCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for the refreshed recommendation")
}
