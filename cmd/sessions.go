package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/observability"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/sessionstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted browser sessions.",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions and their state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		store := sessionstore.New(observability.GetLogger(), cfg.Session.StoragePath, cfg.Session.SessionExpiry())

		entries, err := store.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No persisted sessions.")
			return nil
		}
		for _, e := range entries {
			state := "valid"
			if e.Expired {
				state = "expired"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tsaved %s\t%d cookie(s), %d localStorage key(s)\t%s\n",
				e.ID, e.SavedAt.Format("2006-01-02 15:04:05"), e.Cookies, e.LocalKeys, state)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove expired session files from the storage directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		store := sessionstore.New(observability.GetLogger(), cfg.Session.StoragePath, cfg.Session.SessionExpiry())

		removed, err := store.ClearExpired()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", removed)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete one persisted session regardless of age.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		store := sessionstore.New(observability.GetLogger(), cfg.Session.StoragePath, cfg.Session.SessionExpiry())

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %q.\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
