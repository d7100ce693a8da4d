package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List courses, quizzes, roadmaps and projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), cat)
		}

		w := cmd.OutOrStdout()
		sep := strings.Repeat("─", 72)

		fmt.Fprintln(w, "Courses")
		fmt.Fprintln(w, sep)
		for _, c := range cat.Courses {
			fmt.Fprintf(w, "%-24s  %-12s  %s\n", c.ID, c.Difficulty, c.Title)
		}

		fmt.Fprintln(w, "\nProjects")
		fmt.Fprintln(w, sep)
		for _, p := range cat.Projects {
			fmt.Fprintf(w, "%-24s  %-12s  %s\n", p.ID, p.Difficulty, p.Title)
		}

		fmt.Fprintln(w, "\nQuizzes")
		fmt.Fprintln(w, sep)
		for _, q := range cat.Quizzes {
			fmt.Fprintf(w, "%-24s  %2d questions  %s\n", q.Slug, len(q.Questions), q.Title)
		}

		fmt.Fprintln(w, "\nRoadmaps")
		fmt.Fprintln(w, sep)
		for _, r := range cat.Roadmaps {
			fmt.Fprintf(w, "%-24s  %2d steps      %s\n", r.ID, len(r.Steps), r.Title)
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().Bool("json", false, "Print the catalog as JSON")
}
