package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/taskctl/session"
	"github.com/spf13/cobra"
)

var (
	loginProvider  string
	loginNoBrowser bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google or GitHub",
	Long: `Sign in through your browser using OAuth2 with PKCE.

A temporary listener on localhost receives the redirect. If the browser cannot
be opened the authorization URL is printed so it can be visited manually.

Examples:
  taskctl login                      # Use the last or default provider
  taskctl login --provider github    # Sign in with GitHub
  taskctl login --no-browser         # Print the URL instead of opening it`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginProvider, "provider", "p", "", "Identity provider (google or github)")
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Do not open a browser")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := newFactory(cfg, loginNoBrowser)
	if err != nil {
		return err
	}

	if loginProvider != "" {
		p, err := session.ParseProvider(loginProvider)
		if err != nil {
			return err
		}
		if err := factory.SetActive(ctx, p); err != nil {
			return err
		}
	}
	svc, err := factory.Active(ctx)
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	if !quiet {
		fmt.Fprintln(out, figure.NewFigure("taskctl", "cybermedium", true).String())
	}

	observer := newSpinnerObserver(out, quiet)
	defer observer.stop()
	sess, err := svc.Login(ctx, observer)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", sess.Provider, sess.Email)
	return nil
}
