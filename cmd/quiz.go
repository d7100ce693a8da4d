package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var quizCmd = &cobra.Command{
	Use:   "quiz <slug>",
	Short: "Score quiz answers and print feedback",
	Long: "Scores answers given as --answer <question-id>=<option> against the quiz key. " +
		"Feedback comes from the LLM when configured, otherwise a fixed message is shown.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("answer")
		answers := make(map[string]string, len(raw))
		for _, a := range raw {
			id, opt, ok := strings.Cut(a, "=")
			if !ok || id == "" {
				return fmt.Errorf("invalid answer %q: want <question-id>=<option>", a)
			}
			answers[id] = opt
		}

		a, cleanup, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.quizzes.Evaluate(cmd.Context(), args[0], answers)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, ans := range res.Answers {
			mark := "✓"
			if !ans.Correct {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s: %s\n", mark, ans.QuestionID, ans.Question)
			if !ans.Correct {
				fmt.Fprintf(w, "    answered %q, correct %q\n", ans.Given, ans.CorrectAnswer)
			}
		}
		fmt.Fprintf(w, "\nScore: %d/%d\n\n%s\n", res.Score, res.Total, res.Feedback)
		return nil
	},
}

func init() {
	quizCmd.Flags().StringArrayP("answer", "a", nil, "Answer as <question-id>=<option> (repeatable)")
}
