package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jrsteele09/taskctl/auth"
)

// spinnerObserver renders login progress on the terminal.
type spinnerObserver struct {
	mu      sync.Mutex
	out     io.Writer
	quiet   bool
	spinner *spinner.Spinner
}

func newSpinnerObserver(out io.Writer, quiet bool) *spinnerObserver {
	return &spinnerObserver{
		out:     out,
		quiet:   quiet,
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

func (o *spinnerObserver) OnStatus(status auth.FlowStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch status.State {
	case auth.StateWaitingForUser:
		o.spinner.Stop()
		// Always shown: it is the only way in when no browser opens.
		fmt.Fprintf(o.out, "If your browser did not open, visit:\n\n  %s\n\n", status.AuthURL)
		o.spin(status.Message)
	case auth.StateSuccess:
		o.spinner.Stop()
		if !o.quiet {
			fmt.Fprintf(o.out, "✓ %s\n", status.Message)
		}
	case auth.StateError:
		o.spinner.Stop()
		desc := status.Message
		if status.Error != nil {
			desc = fmt.Sprintf("%s: %s [%s]", status.Message, status.Error.Description, status.Error.Code)
		}
		fmt.Fprintf(o.out, "✗ %s\n", desc)
	default:
		o.spin(status.Message)
	}
}

func (o *spinnerObserver) spin(msg string) {
	if o.quiet {
		return
	}
	o.spinner.Suffix = " " + msg + "..."
	if !o.spinner.Active() {
		o.spinner.Start()
	}
}

// stop halts the spinner when the flow ends without a final status.
func (o *spinnerObserver) stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spinner.Stop()
}
