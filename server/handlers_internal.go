package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/jrsteele09/taskctl/token/jwt"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var errInvalidProviderToken = errors.New("provider token rejected")

// InternalExchange verifies a provider credential and answers with a freshly
// minted internal token.
func (s *Server) InternalExchange() http.HandlerFunc {
	procedure := rpc.ProcInternalExchange
	return func(w http.ResponseWriter, r *http.Request) {
		var in rpc.InternalExchangeInput
		if err := rpc.DecodeInput(r, &in); err != nil {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, err.Error())
			return
		}
		if in.ProviderToken == "" {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, "providerToken is required")
			return
		}

		var (
			identity *jwt.Identity
			err      error
		)
		switch session.Provider(in.Provider) {
		case session.ProviderGoogle:
			identity, err = s.googleIdentity(r.Context(), in.ProviderToken)
		case session.ProviderGitHub:
			identity, err = s.githubIdentity(r.Context(), in.ProviderToken)
		default:
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, fmt.Sprintf("unsupported provider %q", in.Provider))
			return
		}
		if err != nil {
			if errors.Is(err, errInvalidProviderToken) {
				log.Warn().Err(err).Str("provider", in.Provider).Msg("Internal exchange rejected")
				_ = rpc.WriteError(w, http.StatusUnauthorized, rpc.CodeUnauthorized, procedure, err.Error())
				return
			}
			log.Err(err).Str("provider", in.Provider).Msg("Internal exchange failed")
			_ = rpc.WriteError(w, http.StatusBadGateway, rpc.CodeBadGateway, procedure, err.Error())
			return
		}

		internalToken, expiresIn, err := s.issuer.Issue(*identity)
		if err != nil {
			log.Err(err).Msg("Failed to issue internal token")
			_ = rpc.WriteError(w, http.StatusInternalServerError, rpc.CodeInternal, procedure, "failed to issue token")
			return
		}
		log.Info().Str("provider", identity.Provider).Str("subject", identity.Subject).Msg("Internal token issued")
		_ = rpc.WriteResult(w, rpc.InternalExchangeOutput{InternalToken: internalToken, ExpiresIn: expiresIn})
	}
}

func (s *Server) googleIdentity(ctx context.Context, rawIDToken string) (*jwt.Identity, error) {
	verifier, err := s.googleVerifier(ctx)
	if err != nil {
		return nil, err
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidProviderToken, err)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidProviderToken, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: ID token has no email claim", errInvalidProviderToken)
	}
	return &jwt.Identity{
		Subject:  claims.Sub,
		Email:    claims.Email,
		Name:     claims.Name,
		Provider: session.ProviderGoogle.String(),
	}, nil
}

// githubIdentity proves the access token by using it against the GitHub API.
func (s *Server) githubIdentity(ctx context.Context, accessToken string) (*jwt.Identity, error) {
	user, err := s.githubGet(ctx, "/user", accessToken)
	if err != nil {
		return nil, err
	}
	id := gjson.GetBytes(user, "id")
	if !id.Exists() || id.Int() == 0 {
		return nil, fmt.Errorf("%w: GitHub user has no id", errInvalidProviderToken)
	}

	email := gjson.GetBytes(user, "email").String()
	if email == "" {
		emails, err := s.githubGet(ctx, "/user/emails", accessToken)
		if err != nil {
			return nil, err
		}
		email = gjson.GetBytes(emails, "#(primary==true)#|#(verified==true).email").String()
		if email == "" {
			email = gjson.GetBytes(emails, "#(primary==true).email").String()
		}
	}
	if email == "" {
		return nil, fmt.Errorf("%w: GitHub account has no primary email", errInvalidProviderToken)
	}

	name := gjson.GetBytes(user, "name").String()
	if name == "" {
		name = gjson.GetBytes(user, "login").String()
	}
	return &jwt.Identity{
		Subject:  id.String(),
		Email:    email,
		Name:     name,
		Provider: session.ProviderGitHub.String(),
	}, nil
}

func (s *Server) githubGet(ctx context.Context, path, accessToken string) ([]byte, error) {
	endpoint := strings.TrimRight(s.config.GitHubAPIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading GitHub %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: GitHub %s returned HTTP %d", errInvalidProviderToken, path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GitHub %s returned HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
