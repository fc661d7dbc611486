package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/taskctl/auth"
	"github.com/jrsteele09/taskctl/browser"
	"github.com/jrsteele09/taskctl/internal/config"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/logging"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
)

var (
	verbose bool
	quiet   bool
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in, run 'taskctl login'")

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Manage your tasks from the terminal",
	Long: `taskctl is the command line client for the task service.

Sign in once with Google or GitHub; the session is kept in a single file
(default ~/.taskctl/session.json) and refreshed automatically.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, tokenCmd)
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits with a code describing the failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "taskctl version %s\n" .Version}}`)

	// Ctrl-C cancels whatever flow is running.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errNotLoggedIn), errors.Is(err, errs.ErrNoSession):
		return ExitCodeAuthRequired
	case errors.Is(err, errs.ErrProvider), errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrIdentity), errors.Is(err, errs.ErrRefresh):
		return ExitCodeAuthFailed
	default:
		return ExitCodeError
	}
}

// loadConfig reads the environment and configures logging.
func loadConfig() (*config.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logging.Setup(level, true)
	return cfg, nil
}

func newStore(cfg *config.Client) (*session.Store, error) {
	store, err := session.NewStore(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, nil
}

// newFactory wires the auth services from the client configuration.
func newFactory(cfg *config.Client, noBrowser bool) (*auth.Factory, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	backend := rpc.NewClient(cfg.TRPCURL(), rpc.WithHTTPClient(cfg.HTTPClient()))

	var launcher browser.Launcher = browser.NewSystemLauncher()
	if noBrowser || cfg.NoBrowser {
		launcher = browser.NoopLauncher{}
	}

	defaultProvider, err := session.ParseProvider(cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}

	return auth.NewFactory(backend, store,
		auth.WithHTTPClient(cfg.HTTPClient()),
		auth.WithBrowser(launcher),
		auth.WithCallback(cfg.CallbackConfig(), cfg.CallbackTimeout),
		auth.WithInternalTokenBuffer(cfg.InternalTokenBuffer),
		auth.WithDefaultProvider(defaultProvider),
		auth.WithGoogleOverrides(auth.GoogleConfig{VerifyIDToken: cfg.VerifyGoogleIDToken}),
	)
}
