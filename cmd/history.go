package cmd

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/history"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/observability"
)

var (
	historySessionID string
	historyLimit     int
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the recorded question/answer history.",
}

// openHistory connects to the history database using the loaded config.
func openHistory(cmd *cobra.Command) (*history.Store, *pgxpool.Pool, error) {
	cfg := config.Get()
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("history is disabled (set history.enabled and history.url)")
	}
	pool, err := pgxpool.New(cmd.Context(), cfg.History.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	store, err := history.New(cmd.Context(), pool, observability.GetLogger())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the most recent exchanges for a session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, pool, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		exchanges, err := store.Recent(cmd.Context(), historySessionID, historyLimit)
		if err != nil {
			return err
		}
		if len(exchanges) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No recorded exchanges.")
			return nil
		}
		for _, e := range exchanges {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] (%d attempt(s), %s)\nQ: %s\nA: %s\n\n",
				e.AskedAt.Format(time.RFC3339), e.Attempts, e.Duration.Round(time.Millisecond), e.Question, e.Answer)
		}
		return nil
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete exchanges older than the given age.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, pool, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := store.PurgeBefore(cmd.Context(), time.Now().Add(-historyOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d exchange(s).\n", n)
		return nil
	},
}

func init() {
	historyRecentCmd.Flags().StringVar(&historySessionID, "session", "default", "logical session id")
	historyRecentCmd.Flags().IntVar(&historyLimit, "limit", 10, "maximum number of exchanges to print")
	historyPurgeCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "delete exchanges older than this")

	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}
