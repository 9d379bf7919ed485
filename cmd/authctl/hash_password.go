package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"healthtrack-backend/pkg/password"

	"github.com/spf13/cobra"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the argon2id hash of a password read from stdin",
		Long: `Read one password line from stdin and print its encoded argon2id hash,
for seeding accounts or resetting a password by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			plain := strings.TrimRight(line, "\r\n")
			if plain == "" {
				return errors.New("password must not be empty")
			}

			hash, err := password.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
