// Package browser opens URLs in the user's default browser.
package browser

import (
	"os/exec"
	"runtime"

	"github.com/rs/zerolog/log"
)

// Launcher opens a URL for the user. Implementations never fail the caller:
// the authorization URL is always surfaced separately as a fallback.
type Launcher interface {
	Open(url string)
}

// SystemLauncher spawns the platform's URL opener.
type SystemLauncher struct {
	goos  string
	start func(cmd *exec.Cmd) error
}

var _ Launcher = (*SystemLauncher)(nil)

// NewSystemLauncher returns a launcher for the running OS.
func NewSystemLauncher() *SystemLauncher {
	return &SystemLauncher{
		goos:  runtime.GOOS,
		start: startDetached,
	}
}

// Command returns the program and arguments used to open url on goos.
func Command(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		// Not "cmd /c start": cmd treats every & in the query as a separator.
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

// Open starts the opener and returns immediately. Failures are logged at
// debug level and otherwise ignored.
func (l *SystemLauncher) Open(url string) {
	name, args := Command(l.goos, url)
	cmd := exec.Command(name, args...)
	if err := l.start(cmd); err != nil {
		log.Debug().Err(err).Str("command", name).Msg("Could not open browser")
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child in the background so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// NoopLauncher never opens anything; used for headless sessions.
type NoopLauncher struct{}

func (NoopLauncher) Open(string) {}

// Func adapts a function to the Launcher interface.
type Func func(url string)

func (f Func) Open(url string) { f(url) }
