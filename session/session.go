// Package session holds the provider-agnostic credential bundle persisted by
// the CLI and the file store that keeps it between runs.
package session

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/jrsteele09/taskctl/internal/utils"
)

// Provider identifies the identity provider that issued a session.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	// ProviderApple is reserved; no flow implements it.
	ProviderApple Provider = "apple"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderGoogle, ProviderGitHub, ProviderApple:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

func (p Provider) String() string { return string(p) }

// AuthSession is the persisted credential bundle. Optional fields are pointers
// so that unset values are absent from the file, not null.
type AuthSession struct {
	// Provider-level credentials
	AccessToken  string  `json:"accessToken"`
	RefreshToken *string `json:"refreshToken,omitempty"`
	IDToken      *string `json:"idToken,omitempty"`
	ExpiresAt    *int64  `json:"expiresAt,omitempty"` // Unix seconds; nil never expires

	Provider Provider `json:"provider"`

	// Identity
	ProviderUserID string  `json:"providerUserId"`
	Email          string  `json:"email"`
	Name           *string `json:"name,omitempty"`
	Picture        *string `json:"picture,omitempty"`

	// Internal token overlay, both set or both nil
	InternalToken     *string `json:"internalToken,omitempty"`
	InternalExpiresAt *int64  `json:"internalExpiresAt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the mandatory fields.
func (s *AuthSession) Validate() error {
	if s == nil {
		return errors.New("session is nil")
	}
	if s.AccessToken == "" {
		return errors.New("session has no access token")
	}
	if _, err := ParseProvider(string(s.Provider)); err != nil {
		return err
	}
	if s.ProviderUserID == "" {
		return errors.New("session has no provider user id")
	}
	if s.Email == "" {
		return errors.New("session has no email")
	}
	if (s.InternalToken == nil) != (s.InternalExpiresAt == nil) {
		return errors.New("internal token and its expiry must be set together")
	}
	return nil
}

// ProviderTokenExpired reports whether the provider access token has expired.
func (s *AuthSession) ProviderTokenExpired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.Unix() >= *s.ExpiresAt
}

// HasInternalToken reports whether the internal token overlay is present.
func (s *AuthSession) HasInternalToken() bool {
	return s.InternalToken != nil && *s.InternalToken != ""
}

// Clone returns a deep copy.
func (s *AuthSession) Clone() *AuthSession {
	if s == nil {
		return nil
	}
	c := *s
	c.RefreshToken = utils.ClonePtr(s.RefreshToken)
	c.IDToken = utils.ClonePtr(s.IDToken)
	c.ExpiresAt = utils.ClonePtr(s.ExpiresAt)
	c.Name = utils.ClonePtr(s.Name)
	c.Picture = utils.ClonePtr(s.Picture)
	c.InternalToken = utils.ClonePtr(s.InternalToken)
	c.InternalExpiresAt = utils.ClonePtr(s.InternalExpiresAt)
	if s.Metadata != nil {
		c.Metadata = maps.Clone(s.Metadata)
	}
	return &c
}
