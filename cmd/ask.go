package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question and print the answer.",
	Long: `Ask submits a question through a managed browser session and prints the
rendered answer. With no arguments it reads questions from stdin, one per
line, reusing the same browser session for each.

Session state (cookies, localStorage) persists across invocations under the
configured storage path, so follow-up queries reuse the established session.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		components, err := initializeComponents(ctx, askSessionID)
		if err != nil {
			return err
		}
		defer components.Shutdown()

		if len(args) > 0 {
			answer, err := components.Engine.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		}

		// Interactive mode: one question per line until EOF.
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			fmt.Fprint(cmd.OutOrStdout(), "> ")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			answer, err := components.Engine.Ask(ctx, question)
			if err != nil {
				if ctx.Err() != nil {
					return nil // interrupted, exit quietly
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
		}
		return scanner.Err()
	},
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "default", "logical session id to use and persist")
}
