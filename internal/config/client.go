package config

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/taskctl/callback"
)

// Client holds the environment-based configuration of the taskctl CLI.
type Client struct {
	// Backend base URL. The mediated token endpoints live under APIURL + "/trpc".
	APIURL string `env:"TASKCTL_API_URL" envDefault:"http://localhost:3000"`

	// Session file location. "~" is expanded against $HOME.
	SessionPath string `env:"TASKCTL_SESSION_PATH" envDefault:"~/.taskctl/session.json"`

	// Provider used by "taskctl login" when none is given and no session exists.
	DefaultProvider string `env:"TASKCTL_DEFAULT_PROVIDER" envDefault:"google"`

	// Skip launching a browser; the authorization URL is printed instead.
	NoBrowser bool `env:"TASKCTL_NO_BROWSER" envDefault:"false"`

	// Callback listener tuning.
	CallbackPortStart    int           `env:"TASKCTL_CALLBACK_PORT_START" envDefault:"8080"`
	CallbackPortEnd      int           `env:"TASKCTL_CALLBACK_PORT_END" envDefault:"8089"`
	CallbackSuccessDelay time.Duration `env:"TASKCTL_CALLBACK_SUCCESS_DELAY" envDefault:"2s"`
	CallbackErrorDelay   time.Duration `env:"TASKCTL_CALLBACK_ERROR_DELAY" envDefault:"10s"`
	CallbackTimeout      time.Duration `env:"TASKCTL_CALLBACK_TIMEOUT" envDefault:"10m"`

	// Timeout applied to every backend and provider HTTP call.
	HTTPTimeout time.Duration `env:"TASKCTL_HTTP_TIMEOUT" envDefault:"30s"`

	// Seconds before internalExpiresAt at which the internal token is renewed.
	InternalTokenBuffer time.Duration `env:"TASKCTL_INTERNAL_TOKEN_BUFFER" envDefault:"300s"`

	// Verify Google ID tokens locally instead of calling the userinfo endpoint.
	VerifyGoogleIDToken bool `env:"TASKCTL_GOOGLE_VERIFY_ID_TOKEN" envDefault:"false"`

	LogLevel string `env:"TASKCTL_LOG_LEVEL" envDefault:"warn"`
}

// TRPCURL returns the base URL of the backend procedures.
func (c *Client) TRPCURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/trpc"
}

// CallbackConfig returns the loopback listener settings.
func (c *Client) CallbackConfig() callback.Config {
	cb := callback.DefaultConfig()
	cb.PortStart, cb.PortEnd = c.CallbackPortStart, c.CallbackPortEnd
	cb.SuccessDelay, cb.ErrorDelay = c.CallbackSuccessDelay, c.CallbackErrorDelay
	return cb
}

// HTTPClient returns a client bounded by HTTPTimeout.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.HTTPTimeout}
}

func (c *Client) validate() error {
	if c.APIURL == "" {
		return errors.New("TASKCTL_API_URL is required")
	}
	if c.CallbackPortStart <= 0 || c.CallbackPortEnd < c.CallbackPortStart {
		return errors.New("callback port range is invalid")
	}
	if c.CallbackPortEnd > 65535 {
		return errors.New("callback port range exceeds 65535")
	}
	switch c.DefaultProvider {
	case "google", "github":
	default:
		return errors.New("TASKCTL_DEFAULT_PROVIDER must be google or github")
	}
	return nil
}
