package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and delete the local session",
	Long: `Sign out: revoke the provider grant when the backend is reachable and
delete the local session file in every case.`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, _ []string) error {
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
		// Without the backend nothing can be revoked, but the file still goes.
		log.Warn().Err(err).Msg("Backend unavailable, removing local session only")
		store, storeErr := newStore(cfg)
		if storeErr != nil {
			return storeErr
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	}
	if err := svc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
