package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	GoogleIssuer       = "https://accounts.google.com"
	GoogleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	GoogleJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	GoogleRevokeURL    = "https://oauth2.googleapis.com/revoke"
	GoogleCallbackPath = "/callback"

	defaultHTTPTimeout = 30 * time.Second
)

// GoogleDefaultScopes are requested when the backend does not name any.
var GoogleDefaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// GoogleConfig holds the public Google OAuth client settings.
type GoogleConfig struct {
	ClientID string
	Scopes   []string
	Endpoint oauth2.Endpoint

	Issuer      string
	UserInfoURL string
	JWKSURL     string
	RevokeURL   string

	// VerifyIDToken resolves identity from the verified ID token instead of
	// the userinfo endpoint.
	VerifyIDToken bool
}

func (c GoogleConfig) withDefaults() GoogleConfig {
	if len(c.Scopes) == 0 {
		c.Scopes = GoogleDefaultScopes
	}
	if c.Endpoint.AuthURL == "" {
		c.Endpoint = endpoints.Google
	}
	if c.Issuer == "" {
		c.Issuer = GoogleIssuer
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = GoogleUserInfoURL
	}
	if c.JWKSURL == "" {
		c.JWKSURL = GoogleJWKSURL
	}
	if c.RevokeURL == "" {
		c.RevokeURL = GoogleRevokeURL
	}
	return c
}

// Google implements Provider for Google sign-in.
type Google struct {
	cfg        GoogleConfig
	backend    Backend
	httpClient *http.Client
	oidc       *oidc.Provider
	nowTime    func() time.Time
}

// NewGoogle creates the Google provider strategy.
func NewGoogle(cfg GoogleConfig, backend Backend, httpClient *http.Client, nowTime func() time.Time) (*Google, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewGoogle] client id is required")
	}
	if backend == nil {
		return nil, errors.New("[NewGoogle] backend is required")
	}
	if nowTime == nil {
		nowTime = time.Now
	}
	cfg = cfg.withDefaults()
	providerCfg := &oidc.ProviderConfig{
		IssuerURL:   cfg.Issuer,
		AuthURL:     cfg.Endpoint.AuthURL,
		TokenURL:    cfg.Endpoint.TokenURL,
		UserInfoURL: cfg.UserInfoURL,
		JWKSURL:     cfg.JWKSURL,
		Algorithms:  []string{oidc.RS256},
	}
	hc := httpClientOrDefault(httpClient)
	return &Google{
		cfg:        cfg,
		backend:    backend,
		httpClient: hc,
		oidc:       providerCfg.NewProvider(oidc.ClientContext(context.Background(), hc)),
		nowTime:    nowTime,
	}, nil
}

func (g *Google) Name() session.Provider { return session.ProviderGoogle }

func (g *Google) CallbackPath() string { return GoogleCallbackPath }

// AuthCodeURL asks for offline access with forced consent so that Google
// always hands back a refresh token.
func (g *Google) AuthCodeURL(req AuthRequest) string {
	return g.oauthConfig(req.RedirectURI).AuthCodeURL(req.State,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (g *Google) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    g.cfg.ClientID,
		Endpoint:    g.cfg.Endpoint,
		RedirectURL: redirectURI,
		Scopes:      g.cfg.Scopes,
	}
}

func (g *Google) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*session.AuthSession, error) {
	tokens, err := g.backend.GoogleExchangeToken(ctx, rpc.CodeExchangeInput{
		Code:         code,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return nil, err
	}
	return g.buildSession(ctx, tokens, nil)
}

// Refresh redeems refreshToken through the backend. Google does not always
// rotate refresh tokens, so the previous one is kept when none comes back.
func (g *Google) Refresh(ctx context.Context, current *session.AuthSession, refreshToken string) (*session.AuthSession, error) {
	if refreshToken == "" && current != nil {
		refreshToken = utils.Value(current.RefreshToken)
	}
	if refreshToken == "" {
		return nil, errs.Refresh(errs.ErrNothingToRefresh)
	}
	tokens, err := g.backend.GoogleRefreshToken(ctx, rpc.RefreshInput{RefreshToken: refreshToken})
	if err != nil {
		return nil, errs.Refresh(err)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	s, err := g.buildSession(ctx, tokens, current)
	if err != nil {
		return nil, errs.Refresh(err)
	}
	return s, nil
}

func (g *Google) buildSession(ctx context.Context, tokens *rpc.ProviderTokens, previous *session.AuthSession) (*session.AuthSession, error) {
	if tokens.AccessToken == "" {
		return nil, errs.Network(nil, "Google token exchange returned no access token")
	}
	s := &session.AuthSession{
		AccessToken:  tokens.AccessToken,
		RefreshToken: utils.OptionalString(tokens.RefreshToken),
		IDToken:      utils.OptionalString(tokens.IDToken),
		Provider:     session.ProviderGoogle,
	}
	if tokens.ExpiresIn > 0 {
		s.ExpiresAt = utils.Ptr(g.nowTime().Unix() + tokens.ExpiresIn)
	}
	if s.IDToken == nil && previous != nil {
		s.IDToken = utils.ClonePtr(previous.IDToken)
	}

	info, err := g.userInfo(ctx, s)
	if err != nil {
		return nil, err
	}
	if info.Subject == "" {
		return nil, errs.Identity(errs.ErrMissingUserID, "Google did not return a user id")
	}
	if info.Email == "" {
		return nil, errs.Identity(errs.ErrMissingEmail, "Google did not return an email address")
	}
	s.ProviderUserID = info.Subject
	s.Email = info.Email
	s.Name = utils.OptionalString(info.Name)
	s.Picture = utils.OptionalString(info.Picture)
	s.Metadata = map[string]any{"email_verified": info.EmailVerified}
	return s, nil
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *Google) userInfo(ctx context.Context, s *session.AuthSession) (*googleClaims, error) {
	ctx = oidc.ClientContext(ctx, g.httpClient)
	var claims googleClaims

	if g.cfg.VerifyIDToken && s.IDToken != nil {
		idToken, err := g.oidc.Verifier(&oidc.Config{ClientID: g.cfg.ClientID, Now: g.nowTime}).Verify(ctx, *s.IDToken)
		if err != nil {
			return nil, errs.Network(err, "verifying Google ID token")
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errs.Network(err, "decoding Google ID token claims")
		}
		return &claims, nil
	}

	info, err := g.oidc.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.AccessToken, TokenType: "Bearer"}))
	if err != nil {
		return nil, errs.Network(err, "fetching Google user info")
	}
	if err := info.Claims(&claims); err != nil {
		return nil, errs.Network(err, "decoding Google user info")
	}
	claims.Subject = info.Subject
	claims.Email = info.Email
	claims.EmailVerified = info.EmailVerified
	return &claims, nil
}

// Revoke posts the refresh token, or the access token when there is none,
// to Google's revocation endpoint.
func (g *Google) Revoke(ctx context.Context, s *session.AuthSession) error {
	tok := utils.Value(s.RefreshToken)
	if tok == "" {
		tok = s.AccessToken
	}
	form := url.Values{"token": {tok}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errs.Network(err, "revoking Google token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errs.HTTPStatus("Google revoke", resp.StatusCode, string(body))
	}
	return nil
}

// BackendToken is the ID token: the backend verifies it against Google's keys.
func (g *Google) BackendToken(s *session.AuthSession) string {
	if s == nil {
		return ""
	}
	return utils.Value(s.IDToken)
}
