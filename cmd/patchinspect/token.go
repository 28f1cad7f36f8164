package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/patchinspect/pkg/state"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored tokens",
		Long: strings.TrimSpace(`
Stores tokens in the credentials file. Keys are server names for connection
tokens, "` + state.AuthorizationKey + `" for the authorization token, and
"github" or "gitlab" for remote patch sources. Environment variables
(PATCHINSPECT_<KEY>_TOKEN) and configuration values take precedence.`),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> [token]",
		Short: "Store a token (read from stdin when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 2 {
				token = args[1]
			} else {
				var err error
				if token, err = readToken(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("token cannot be empty")
			}
			if err := newCredentialStore().SetToken(args[0], token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s (%s)\n", args[0], state.RedactToken(token))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newCredentialStore().DeleteToken(args[0]); err != nil {
				return fmt.Errorf("failed to delete token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted token for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys with a stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := newCredentialStore().ListKeys()
			if err != nil {
				return fmt.Errorf("failed to list tokens: %w", err)
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored tokens")
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})

	return cmd
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
