package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid internal bearer token",
	Long: `Print the internal token used as the Authorization bearer for API calls,
refreshing the provider session and the internal token first when needed.

Example:
  curl -H "Authorization: Bearer $(taskctl token)" http://localhost:3000/trpc/tasks.list`,
	RunE: runToken,
}

func runToken(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := newFactory(cfg, true)
	if err != nil {
		return err
	}
	svc, err := factory.Active(ctx)
	if err != nil {
		return err
	}
	sess, err := svc.CurrentSession(ctx)
	if err != nil {
		return err
	}
	bearer := svc.BackendToken(sess)
	if bearer == "" {
		return errNotLoggedIn
	}
	fmt.Fprintln(cmd.OutOrStdout(), bearer)
	return nil
}
