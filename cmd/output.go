package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/ledger"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// awaitRecommendation blocks until the refresh settles or wait elapses and
// reports what happened. A nil refresh means recommendations are disabled.
func awaitRecommendation(ctx context.Context, w io.Writer, r *ledger.Refresh, wait time.Duration) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	text, err := r.Wait(ctx)
	switch {
	case err == nil:
		fmt.Fprintf(w, "\nRecommendation:\n%s\n", text)
	case ctx.Err() != nil:
		fmt.Fprintln(w, "\nRecommendation is still being generated.")
	default:
		fmt.Fprintf(w, "\nRecommendation unavailable: %v\n", err)
	}
}
