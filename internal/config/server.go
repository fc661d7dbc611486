package config

import (
	"errors"
	"fmt"
	"time"
)

// Server holds the configuration of the development backend that mediates
// provider token exchanges and issues internal tokens.
type Server struct {
	Port    string `env:"PORT" envDefault:"3000"`
	AppName string `env:"APP_NAME" envDefault:"taskctl auth"`
	Env     string `env:"ENV" envDefault:"DEV"`

	// HMAC secret for internal tokens.
	TokenSecret string        `env:"INTERNAL_TOKEN_SECRET"`
	TokenIssuer string        `env:"INTERNAL_TOKEN_ISSUER" envDefault:"taskctl"`
	TokenTTL    time.Duration `env:"INTERNAL_TOKEN_TTL" envDefault:"1h"`
	// Subtracted from TokenTTL before reporting expiresIn to clients.
	TokenSafetyBuffer time.Duration `env:"INTERNAL_TOKEN_SAFETY_BUFFER" envDefault:"5m"`

	// Base of the loopback redirect URI handed to the CLI.
	RedirectURIBase string `env:"REDIRECT_URI_BASE" envDefault:"http://localhost"`

	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	GoogleScopes       []string `env:"GOOGLE_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	GoogleIssuer       string   `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`

	GitHubClientID     string   `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"GITHUB_CLIENT_SECRET"`
	GitHubScopes       []string `env:"GITHUB_SCOPES" envSeparator:"," envDefault:"read:user,user:email"`
	GitHubAPIURL       string   `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// Addr returns the listen address for the HTTP server.
func (s *Server) Addr() string {
	if s.Port != "" && s.Port[0] == ':' {
		return s.Port
	}
	return fmt.Sprintf(":%s", s.Port)
}

// ExpiresIn is the lifetime reported to clients for a freshly issued token.
func (s *Server) ExpiresIn() time.Duration {
	d := s.TokenTTL - s.TokenSafetyBuffer
	if d < 0 {
		return 0
	}
	return d
}

func (s *Server) validate() error {
	if s.TokenSecret == "" {
		return errors.New("INTERNAL_TOKEN_SECRET is required")
	}
	if s.TokenTTL <= 0 {
		return errors.New("INTERNAL_TOKEN_TTL must be positive")
	}
	return nil
}
