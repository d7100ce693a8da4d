package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM requests",
}

// eventFilter narrows an event listing.
type eventFilter struct {
	purpose    string
	user       string
	failedOnly bool
}

func (f eventFilter) keep(e *store.LLMRequestRecord) bool {
	switch {
	case f.purpose != "" && e.Purpose != f.purpose:
		return false
	case f.user != "" && e.UserID != f.user:
		return false
	case f.failedOnly && e.Success:
		return false
	}
	return true
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")
		var f eventFilter
		f.purpose, _ = cmd.Flags().GetString("purpose")
		f.user, _ = cmd.Flags().GetString("user")
		f.failedOnly, _ = cmd.Flags().GetBool("failed")

		s, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.QueryOpts{}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}
		events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		var shown []store.LLMRequestRecord
		for i := range events {
			if f.keep(&events[i]) {
				shown = append(shown, events[i])
				if limit > 0 && len(shown) == limit {
					break
				}
			}
		}
		printEvents(cmd.OutOrStdout(), shown)
		return nil
	},
}

func printEvents(w io.Writer, events []store.LLMRequestRecord) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No LLM requests recorded.")
		return
	}
	fmt.Fprintf(w, "%-6s  %-19s  %-16s  %-12s  %-24s  %6s  %6s  %6s  %s\n",
		"Seq", "Time", "Purpose", "User", "Model", "In", "Out", "Ms", "OK")
	fmt.Fprintln(w, strings.Repeat("─", 112))
	for _, e := range events {
		ok := "✓"
		if !e.Success {
			ok = "✗"
		}
		fmt.Fprintf(w, "%-6d  %-19s  %-16s  %-12s  %-24s  %6d  %6d  %6d  %s\n",
			e.Sequence,
			e.Timestamp.Local().Format(timeLayout),
			truncate(e.Purpose, 16),
			truncate(e.UserID, 12),
			truncate(e.Model, 24),
			e.InputTokens, e.OutputTokens, e.LatencyMs,
			ok,
		)
	}
}

var llmViewCmd = &cobra.Command{
	Use:   "view <seq>",
	Short: "Show the full prompt and response of one request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid sequence %q: %w", args[0], err)
		}

		s, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(cmd.Context(), seq)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no LLM request with sequence %d", seq)
		}
		if err != nil {
			return err
		}
		printEvent(cmd.OutOrStdout(), e)
		return nil
	},
}

func printEvent(w io.Writer, e *store.LLMRequestRecord) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-10s %s\n", label+":", value)
		}
	}
	field("Sequence", strconv.FormatInt(e.Sequence, 10))
	field("Time", e.Timestamp.Local().Format(timeLayout))
	field("Provider", e.Provider)
	field("Model", e.Model)
	field("Purpose", e.Purpose)
	field("User", e.UserID)
	field("Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens))
	field("Latency", fmt.Sprintf("%dms", e.LatencyMs))
	field("Success", strconv.FormatBool(e.Success))
	field("Error", e.ErrorMessage)

	section := func(title, body string) {
		sep := strings.Repeat("─", 60)
		fmt.Fprintf(w, "\n%s\n%s\n%s\n", sep, title, sep)
		if body == "" {
			body = "(not captured)"
		}
		fmt.Fprintln(w, body)
	}
	section("REQUEST", e.RequestBody)
	section("RESPONSE", e.ResponseBody)
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage per purpose and estimated cost per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		byPurpose, err := s.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("usage by purpose: %w", err)
		}
		byModel, err := s.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("usage by model: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(byPurpose) == 0 {
			fmt.Fprintln(w, "No LLM usage recorded.")
			return nil
		}
		printUsage(w, byPurpose)
		fmt.Fprintln(w)
		printCosts(w, byModel)
		return nil
	},
}

func printUsage(w io.Writer, usage []store.LLMUsage) {
	sep := strings.Repeat("─", 78)
	fmt.Fprintln(w, "Usage by purpose")
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s  %6s  %6s  %10s  %10s  %10s\n", "Purpose", "Calls", "Failed", "Input", "Output", "Avg ms")
	fmt.Fprintln(w, sep)

	var total store.LLMUsage
	for _, u := range usage {
		fmt.Fprintf(w, "%-18s  %6d  %6d  %10d  %10d  %10d\n",
			truncate(u.Key, 18), u.Requests, u.Failures, u.InputTokens, u.OutputTokens, avgLatency(u))
		total.Requests += u.Requests
		total.Failures += u.Failures
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.LatencyMs += u.LatencyMs
	}
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s  %6d  %6d  %10d  %10d  %10d\n",
		"TOTAL", total.Requests, total.Failures, total.InputTokens, total.OutputTokens, avgLatency(total))
}

func printCosts(w io.Writer, usage []store.LLMUsage) {
	sep := strings.Repeat("─", 78)
	fmt.Fprintln(w, "Estimated cost (USD)")
	fmt.Fprintln(w, sep)

	var (
		total   float64
		unknown []string
	)
	for _, u := range usage {
		price := llm.LookupCost(u.Key)
		if price == nil {
			unknown = append(unknown, u.Key)
			fmt.Fprintf(w, "%-40s  %6d  %10s\n", truncate(u.Key, 40), u.Requests, "?")
			continue
		}
		c := price.Cost(u.InputTokens, u.OutputTokens)
		total += c
		fmt.Fprintf(w, "%-40s  %6d  %10s\n", truncate(u.Key, 40), u.Requests, formatCost(c))
	}
	fmt.Fprintln(w, sep)

	label := "TOTAL"
	if len(unknown) > 0 {
		label = "TOTAL (partial)"
	}
	fmt.Fprintf(w, "%-40s  %6s  %10s\n", label, "", formatCost(total))
	if len(unknown) > 0 {
		fmt.Fprintf(w, "\nNo pricing for: %s\n", strings.Join(unknown, ", "))
	}
}

func avgLatency(u store.LLMUsage) int64 {
	if u.Requests == 0 {
		return 0
	}
	return u.LatencyMs / int64(u.Requests)
}

// openEvents opens the configured store for event inspection.
func openEvents(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openStore(cfg, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only this purpose (project-grading, recommendation, quiz-feedback, assistant)")
	llmListCmd.Flags().StringP("user", "u", "", "Only requests made for this learner")
	llmListCmd.Flags().Bool("failed", false, "Only failed requests")
	llmListCmd.Flags().Duration("since", 0, "Only requests newer than this (e.g. 24h)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
