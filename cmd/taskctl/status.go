package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/session"
	"github.com/jrsteele09/taskctl/token"
	"github.com/jrsteele09/taskctl/token/jwt"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Show who is signed in and when the tokens expire.

The session file is read as is; nothing is refreshed and the backend is not
contacted.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	sess, ok := store.Load()
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
		return errNotLoggedIn
	}
	printStatus(cmd.OutOrStdout(), sess, time.Now(), cfg.InternalTokenBuffer)
	return nil
}

func printStatus(w io.Writer, sess *session.AuthSession, now time.Time, buffer time.Duration) {
	fmt.Fprintf(w, "Provider:        %s\n", sess.Provider)
	fmt.Fprintf(w, "Email:           %s\n", sess.Email)
	if name := utils.Value(sess.Name); name != "" {
		fmt.Fprintf(w, "Name:            %s\n", name)
	}

	switch {
	case sess.ExpiresAt == nil:
		fmt.Fprintln(w, "Provider token:  does not expire")
	case sess.ProviderTokenExpired(now):
		fmt.Fprintln(w, "Provider token:  expired (refreshed on next use)")
	default:
		fmt.Fprintf(w, "Provider token:  expires in %s\n", until(now, *sess.ExpiresAt))
	}

	if !sess.HasInternalToken() {
		fmt.Fprintln(w, "Internal token:  none")
		return
	}
	state := "valid"
	if token.IsInternalTokenExpired(sess, now, buffer) {
		state = "stale (renewed on next use)"
	}
	fmt.Fprintf(w, "Internal token:  %s, expires in %s\n", state, until(now, utils.Value(sess.InternalExpiresAt)))
	if claims, err := jwt.Peek(utils.Value(sess.InternalToken)); err == nil {
		fmt.Fprintf(w, "Subject:         %s\n", claims.Subject)
		if !claims.IssuedAt.IsZero() {
			fmt.Fprintf(w, "Issued:          %s\n", claims.IssuedAt.Local().Format(time.RFC1123))
		}
	}
}

func until(now time.Time, unix int64) string {
	d := time.Unix(unix, 0).Sub(now).Round(time.Second)
	if d < 0 {
		return "0s"
	}
	return d.String()
}
