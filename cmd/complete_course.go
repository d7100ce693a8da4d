package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var completeCourseCmd = &cobra.Command{
	Use:   "complete-course <user-id> <course-id>",
	Short: "Mark a course as completed on a learner profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")

		a, cleanup, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, ok := a.catalog.Course(args[1]); !ok {
			return errors.New("unknown course " + args[1])
		}

		ctx := cmd.Context()
		res, err := a.ledger.CompleteCourse(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if !res.CompletedNow {
			fmt.Fprintln(w, "Course was already completed.")
			return nil
		}
		fmt.Fprintf(w, "Course completed. Courses completed: %d\n", res.Profile.CoursesCompleted)
		awaitRecommendation(ctx, w, res.Refresh, wait)
		return a.ledger.Wait(ctx)
	},
}

func init() {
	completeCourseCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for the refreshed recommendation")
}
