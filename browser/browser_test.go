package browser

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	const url = "https://accounts.example.com/auth?x=1&y=2"

	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler", url}},
		{goos: "darwin", wantName: "open", wantArgs: []string{url}},
		{goos: "linux", wantName: "xdg-open", wantArgs: []string{url}},
		{goos: "freebsd", wantName: "xdg-open", wantArgs: []string{url}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args := Command(tt.goos, url)
			require.Equal(t, tt.wantName, name)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSystemLauncher_Open(t *testing.T) {
	t.Run("spawn failure is swallowed", func(t *testing.T) {
		l := &SystemLauncher{goos: "linux", start: func(*exec.Cmd) error { return errors.New("no display") }}
		require.NotPanics(t, func() { l.Open("https://example.com") })
	})

	t.Run("spawns the platform opener", func(t *testing.T) {
		var got *exec.Cmd
		l := &SystemLauncher{goos: "darwin", start: func(cmd *exec.Cmd) error { got = cmd; return nil }}
		l.Open("https://example.com")
		require.NotNil(t, got)
		require.Equal(t, []string{"open", "https://example.com"}, got.Args)
	})

	t.Run("missing binary does not fail", func(t *testing.T) {
		l := &SystemLauncher{goos: "linux", start: startDetached}
		t.Setenv("PATH", t.TempDir())
		require.NotPanics(t, func() { l.Open("https://example.com") })
	})
}

func TestFunc(t *testing.T) {
	var opened string
	var l Launcher = Func(func(url string) { opened = url })
	l.Open("https://example.com")
	require.Equal(t, "https://example.com", opened)
}
