// Package auth drives the interactive OAuth2 PKCE login against an identity
// provider and keeps the resulting session fresh.
package auth

import (
	"context"
	"net/http"

	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
)

// Backend is the set of mediated procedures the providers and the factory call.
// *rpc.Client satisfies it.
type Backend interface {
	GoogleExchangeToken(ctx context.Context, in rpc.CodeExchangeInput) (*rpc.ProviderTokens, error)
	GoogleRefreshToken(ctx context.Context, in rpc.RefreshInput) (*rpc.ProviderTokens, error)
	GitHubExchangeToken(ctx context.Context, in rpc.CodeExchangeInput) (*rpc.ProviderTokens, error)
	InternalExchange(ctx context.Context, in rpc.InternalExchangeInput) (*rpc.InternalExchangeOutput, error)
	ClientConfig(ctx context.Context) (*rpc.ClientConfig, error)
}

// SessionStore persists the single local session. *session.Store satisfies it.
type SessionStore interface {
	Persist(s *session.AuthSession) error
	Load() (*session.AuthSession, bool)
	Clear() error
}

// AuthRequest carries the per-login values baked into the authorization URL.
type AuthRequest struct {
	RedirectURI   string
	State         string
	CodeChallenge string
}

// Provider captures everything that differs between identity providers.
type Provider interface {
	Name() session.Provider
	// CallbackPath is the path the loopback listener serves.
	CallbackPath() string
	AuthCodeURL(req AuthRequest) string
	// ExchangeCode trades an authorization code for provider tokens through
	// the backend and resolves the user's identity.
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*session.AuthSession, error)
	Refresh(ctx context.Context, current *session.AuthSession, refreshToken string) (*session.AuthSession, error)
	// Revoke invalidates the provider tokens. Callers ignore its error.
	Revoke(ctx context.Context, s *session.AuthSession) error
	// BackendToken is the provider credential offered for internal exchange.
	BackendToken(s *session.AuthSession) string
}

func httpClientOrDefault(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
