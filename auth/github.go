package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	GitHubAPIURL       = "https://api.github.com"
	GitHubCallbackPath = "/auth/github/callback"

	githubAcceptHeader = "application/vnd.github+json"
)

// GitHubDefaultScopes are requested when the backend does not name any.
var GitHubDefaultScopes = []string{"read:user", "user:email"}

// GitHubConfig holds the public GitHub OAuth app settings.
type GitHubConfig struct {
	ClientID string
	Scopes   []string
	Endpoint oauth2.Endpoint
	APIURL   string
}

func (c GitHubConfig) withDefaults() GitHubConfig {
	if len(c.Scopes) == 0 {
		c.Scopes = GitHubDefaultScopes
	}
	if c.Endpoint.AuthURL == "" {
		c.Endpoint = endpoints.GitHub
	}
	if c.APIURL == "" {
		c.APIURL = GitHubAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	return c
}

// GitHub implements Provider for GitHub OAuth apps. GitHub access tokens do
// not expire and there is no ID token, so the access token doubles as the
// identity proof for the backend.
type GitHub struct {
	cfg        GitHubConfig
	backend    Backend
	httpClient *http.Client
}

// NewGitHub creates the GitHub provider strategy.
func NewGitHub(cfg GitHubConfig, backend Backend, httpClient *http.Client) (*GitHub, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewGitHub] client id is required")
	}
	if backend == nil {
		return nil, errors.New("[NewGitHub] backend is required")
	}
	return &GitHub{
		cfg:        cfg.withDefaults(),
		backend:    backend,
		httpClient: httpClientOrDefault(httpClient),
	}, nil
}

func (g *GitHub) Name() session.Provider { return session.ProviderGitHub }

func (g *GitHub) CallbackPath() string { return GitHubCallbackPath }

func (g *GitHub) AuthCodeURL(req AuthRequest) string {
	cfg := &oauth2.Config{
		ClientID:    g.cfg.ClientID,
		Endpoint:    g.cfg.Endpoint,
		RedirectURL: req.RedirectURI,
		Scopes:      g.cfg.Scopes,
	}
	return cfg.AuthCodeURL(req.State,
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (g *GitHub) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*session.AuthSession, error) {
	tokens, err := g.backend.GitHubExchangeToken(ctx, rpc.CodeExchangeInput{
		Code:         code,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, errs.Network(nil, "GitHub token exchange returned no access token")
	}

	user, err := g.fetchUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	email := user.Email
	if email == "" {
		if email, err = g.fetchPrimaryEmail(ctx, tokens.AccessToken); err != nil {
			return nil, err
		}
	}

	return &session.AuthSession{
		AccessToken:    tokens.AccessToken,
		Provider:       session.ProviderGitHub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		Name:           utils.OptionalString(firstNonEmpty(user.Name, user.Login)),
		Picture:        utils.OptionalString(user.AvatarURL),
		Metadata: map[string]any{
			"login":      user.Login,
			"avatar_url": user.AvatarURL,
			"html_url":   user.HTMLURL,
		},
	}, nil
}

// Refresh has nothing to do for GitHub: the current session is returned as is.
func (g *GitHub) Refresh(_ context.Context, current *session.AuthSession, _ string) (*session.AuthSession, error) {
	if current == nil {
		return nil, errs.Refresh(errs.ErrNothingToRefresh)
	}
	return current, nil
}

// Revoke deletes the OAuth grant for the access token.
func (g *GitHub) Revoke(ctx context.Context, s *session.AuthSession) error {
	body, err := json.Marshal(map[string]string{"access_token": s.AccessToken})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/applications/%s/token", g.cfg.APIURL, g.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", githubAcceptHeader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errs.Network(err, "revoking GitHub token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errs.HTTPStatus("GitHub revoke", resp.StatusCode, string(msg))
	}
	return nil
}

func (g *GitHub) BackendToken(s *session.AuthSession) string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	var user githubUser
	if err := g.get(ctx, "/user", accessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errs.Identity(errs.ErrMissingUserID, "GitHub did not return a user id")
	}
	return &user, nil
}

// fetchPrimaryEmail is used when the user keeps their profile email private.
func (g *GitHub) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := g.get(ctx, "/user/emails", accessToken, &emails); err != nil {
		return "", err
	}
	if email := selectPrimaryEmail(emails); email != "" {
		return email, nil
	}
	return "", errs.Identity(errs.ErrMissingEmail, "no primary email address found on the GitHub account")
}

// selectPrimaryEmail prefers a verified primary address over an unverified one.
func selectPrimaryEmail(emails []githubEmail) string {
	var primary string
	for _, e := range emails {
		if !e.Primary || e.Email == "" {
			continue
		}
		if e.Verified {
			return e.Email
		}
		if primary == "" {
			primary = e.Email
		}
	}
	return primary
}

func (g *GitHub) get(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", githubAcceptHeader)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errs.Network(err, "calling GitHub %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Network(err, "reading GitHub %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.HTTPStatus("GitHub "+path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Network(err, "decoding GitHub %s", path)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
