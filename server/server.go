// Package server is the development backend: it mediates provider token
// exchanges with server-held client secrets and mints internal tokens.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/taskctl/internal/config"
	"github.com/jrsteele09/taskctl/token/jwt"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultHTTPTimeout = 30 * time.Second

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Server

	google     *oauth2.Config
	github     *oauth2.Config
	issuer     *jwt.Issuer
	httpClient *http.Client
	nowTime    func() time.Time

	keySet       oidc.KeySet
	verifier     *oidc.IDTokenVerifier
	verifierLock sync.Mutex
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithHTTPClient sets the client used to reach Google and GitHub.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		s.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithGoogleEndpoint overrides Google's OAuth endpoints.
func WithGoogleEndpoint(e oauth2.Endpoint) Option {
	return func(s *Server) {
		s.google.Endpoint = e
	}
}

// WithGitHubEndpoint overrides GitHub's OAuth endpoints.
func WithGitHubEndpoint(e oauth2.Endpoint) Option {
	return func(s *Server) {
		s.github.Endpoint = e
	}
}

// WithGoogleKeySet verifies Google ID tokens against ks instead of the keys
// discovered from the issuer.
func WithGoogleKeySet(ks oidc.KeySet) Option {
	return func(s *Server) {
		s.keySet = ks
	}
}

func New(cfg config.Server, options ...Option) (*Server, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("[Server New] token secret is required")
	}

	s := &Server{
		env:    cfg.Env,
		mux:    http.NewServeMux(),
		config: cfg,
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     endpoints.Google,
			Scopes:       cfg.GoogleScopes,
		},
		github: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     endpoints.GitHub,
			Scopes:       cfg.GitHubScopes,
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	issuer, err := jwt.NewIssuer(jwt.NewHMACSigner(cfg.TokenSecret), cfg.TokenIssuer, cfg.TokenTTL,
		jwt.WithSafetyBuffer(cfg.TokenSafetyBuffer),
		jwt.WithNowTime(s.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create token issuer: %w", err)
	}
	s.issuer = issuer

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Issuer exposes the internal token issuer, e.g. for verifying bearer tokens.
func (s *Server) Issuer() *jwt.Issuer {
	return s.issuer
}

// oauthContext makes golang.org/x/oauth2 use the server's HTTP client.
func (s *Server) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// googleVerifier builds the ID token verifier on first use. Discovery needs
// the network, so it is not done in New.
func (s *Server) googleVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	s.verifierLock.Lock()
	defer s.verifierLock.Unlock()
	if s.verifier != nil {
		return s.verifier, nil
	}

	verifierConfig := &oidc.Config{ClientID: s.config.GoogleClientID, Now: s.nowTime}
	if s.keySet != nil {
		s.verifier = oidc.NewVerifier(s.config.GoogleIssuer, s.keySet, verifierConfig)
		return s.verifier, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, s.httpClient), s.config.GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	s.verifier = provider.Verifier(verifierConfig)
	return s.verifier, nil
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
