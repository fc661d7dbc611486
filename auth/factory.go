package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/taskctl/browser"
	"github.com/jrsteele09/taskctl/callback"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/jrsteele09/taskctl/token"
	"github.com/rs/zerolog/log"
)

// Factory builds one Service per provider and tracks which provider is
// active. The persisted session's provider decides the active one at start.
// Client ids come from the backend's client config, fetched on first use.
type Factory struct {
	backend Backend
	store   SessionStore

	googleOverrides GoogleConfig
	githubOverrides GitHubConfig

	httpClient      *http.Client
	launcher        browser.Launcher
	callbackCfg     callback.Config
	callbackTimeout time.Duration
	tokenBuffer     time.Duration
	nowTime         func() time.Time

	mu        sync.Mutex
	clientCfg *rpc.ClientConfig
	active    session.Provider
	services  map[session.Provider]*Service
}

// FactoryOption defines a function type to modify the Factory instance.
type FactoryOption func(*Factory)

// WithFactoryNowTime sets the clock handed to every service.
func WithFactoryNowTime(nowFunc func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.nowTime = nowFunc
	}
}

// WithHTTPClient sets the client used for provider API calls.
func WithHTTPClient(hc *http.Client) FactoryOption {
	return func(f *Factory) {
		f.httpClient = hc
	}
}

// WithBrowser sets the launcher used by every service.
func WithBrowser(l browser.Launcher) FactoryOption {
	return func(f *Factory) {
		f.launcher = l
	}
}

// WithCallback sets the loopback listener settings and the redirect wait.
func WithCallback(cfg callback.Config, timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.callbackCfg = cfg
		f.callbackTimeout = timeout
	}
}

// WithInternalTokenBuffer sets how early internal tokens are renewed.
func WithInternalTokenBuffer(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.tokenBuffer = d
	}
}

// WithDefaultProvider selects the active provider when no session is stored.
func WithDefaultProvider(p session.Provider) FactoryOption {
	return func(f *Factory) {
		f.active = p
	}
}

// WithGoogleOverrides replaces the non-empty fields of the Google settings
// received from the backend.
func WithGoogleOverrides(o GoogleConfig) FactoryOption {
	return func(f *Factory) {
		f.googleOverrides = o
	}
}

// WithGitHubOverrides replaces the non-empty fields of the GitHub settings
// received from the backend.
func WithGitHubOverrides(o GitHubConfig) FactoryOption {
	return func(f *Factory) {
		f.githubOverrides = o
	}
}

// NewFactory resolves the active provider from the stored session. The
// backend is not contacted until a service is first needed.
func NewFactory(backend Backend, store SessionStore, options ...FactoryOption) (*Factory, error) {
	if backend == nil {
		return nil, errors.New("[NewFactory] backend is required")
	}
	if store == nil {
		return nil, errors.New("[NewFactory] store is required")
	}

	f := &Factory{
		backend:         backend,
		store:           store,
		launcher:        browser.NewSystemLauncher(),
		callbackCfg:     callback.DefaultConfig(),
		callbackTimeout: DefaultCallbackTimeout,
		tokenBuffer:     token.DefaultBuffer,
		nowTime:         time.Now,
		active:          session.ProviderGoogle,
		services:        make(map[session.Provider]*Service),
	}
	for _, opt := range options {
		opt(f)
	}

	if stored, ok := store.Load(); ok {
		f.active = stored.Provider
	}
	log.Debug().Str("provider", f.active.String()).Msg("Active provider resolved")
	return f, nil
}

// clientConfigLocked fetches the public client configuration once. A failed
// fetch is retried on the next call.
func (f *Factory) clientConfigLocked(ctx context.Context) (*rpc.ClientConfig, error) {
	if f.clientCfg != nil {
		return f.clientCfg, nil
	}
	cc, err := f.backend.ClientConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading client config: %w", err)
	}
	f.clientCfg = cc
	return cc, nil
}

// redirectHost extracts the host from redirectUriBase, e.g. "localhost".
func redirectHost(pc rpc.ProviderClientConfig) string {
	if pc.RedirectURIBase == "" {
		return ""
	}
	u, err := url.Parse(pc.RedirectURIBase)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Active returns the service for the active provider.
func (f *Factory) Active(ctx context.Context) (*Service, error) {
	f.mu.Lock()
	p := f.active
	f.mu.Unlock()
	return f.ForProvider(ctx, p)
}

// ActiveProvider returns the provider Active would use.
func (f *Factory) ActiveProvider() session.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// SetActive switches the active provider.
func (f *Factory) SetActive(ctx context.Context, p session.Provider) error {
	if _, err := f.ForProvider(ctx, p); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = p
	// Other services may hold a session the new login is about to replace.
	for other, svc := range f.services {
		if other != p {
			svc.Forget()
		}
	}
	return nil
}

// ForProvider returns the cached service for p, creating it on first use.
func (f *Factory) ForProvider(ctx context.Context, p session.Provider) (*Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if svc, ok := f.services[p]; ok {
		return svc, nil
	}
	if p != session.ProviderGoogle && p != session.ProviderGitHub {
		return nil, errs.Wrapf(errs.ErrUnsupportedProvider, "provider %q", p)
	}

	cc, err := f.clientConfigLocked(ctx)
	if err != nil {
		return nil, err
	}
	provider, pc, err := f.newProvider(p, cc)
	if err != nil {
		return nil, err
	}
	exchanger, err := token.NewExchanger(f.backend, token.WithNowTime(f.nowTime), token.WithBuffer(f.tokenBuffer))
	if err != nil {
		return nil, err
	}

	// The redirect URI must match what the provider's OAuth app has registered.
	callbackCfg := f.callbackCfg
	if host := redirectHost(pc); host != "" {
		callbackCfg.Host = host
	}
	svc, err := NewService(provider, exchanger, f.store,
		WithNowTime(f.nowTime),
		WithLauncher(f.launcher),
		WithCallbackConfig(callbackCfg),
		WithCallbackTimeout(f.callbackTimeout),
	)
	if err != nil {
		return nil, err
	}
	f.services[p] = svc
	return svc, nil
}

func (f *Factory) newProvider(p session.Provider, cc *rpc.ClientConfig) (Provider, rpc.ProviderClientConfig, error) {
	switch p {
	case session.ProviderGoogle:
		pc := cc.Auth.Google
		cfg := mergeGoogle(GoogleConfig{ClientID: pc.ClientID, Scopes: pc.Scopes}, f.googleOverrides)
		provider, err := NewGoogle(cfg, f.backend, f.httpClient, f.nowTime)
		return provider, pc, err
	case session.ProviderGitHub:
		pc := cc.Auth.GitHub
		cfg := mergeGitHub(GitHubConfig{ClientID: pc.ClientID, Scopes: pc.Scopes}, f.githubOverrides)
		provider, err := NewGitHub(cfg, f.backend, f.httpClient)
		return provider, pc, err
	default:
		return nil, rpc.ProviderClientConfig{}, errs.Wrapf(errs.ErrUnsupportedProvider, "provider %q", p)
	}
}

func mergeGoogle(base, o GoogleConfig) GoogleConfig {
	if o.ClientID != "" {
		base.ClientID = o.ClientID
	}
	if len(o.Scopes) > 0 {
		base.Scopes = o.Scopes
	}
	if o.Endpoint.AuthURL != "" {
		base.Endpoint = o.Endpoint
	}
	if o.Issuer != "" {
		base.Issuer = o.Issuer
	}
	if o.UserInfoURL != "" {
		base.UserInfoURL = o.UserInfoURL
	}
	if o.JWKSURL != "" {
		base.JWKSURL = o.JWKSURL
	}
	if o.RevokeURL != "" {
		base.RevokeURL = o.RevokeURL
	}
	base.VerifyIDToken = base.VerifyIDToken || o.VerifyIDToken
	return base
}

func mergeGitHub(base, o GitHubConfig) GitHubConfig {
	if o.ClientID != "" {
		base.ClientID = o.ClientID
	}
	if len(o.Scopes) > 0 {
		base.Scopes = o.Scopes
	}
	if o.Endpoint.AuthURL != "" {
		base.Endpoint = o.Endpoint
	}
	if o.APIURL != "" {
		base.APIURL = o.APIURL
	}
	return base
}
