package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/taskctl/rpc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// GoogleExchangeToken redeems a Google authorization code with the client
// secret and the caller's PKCE verifier.
func (s *Server) GoogleExchangeToken() http.HandlerFunc {
	return s.codeExchangeHandler(rpc.ProcGoogleExchangeToken, s.google)
}

// GitHubExchangeToken redeems a GitHub authorization code.
func (s *Server) GitHubExchangeToken() http.HandlerFunc {
	return s.codeExchangeHandler(rpc.ProcGitHubExchangeToken, s.github)
}

func (s *Server) codeExchangeHandler(procedure string, base *oauth2.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in rpc.CodeExchangeInput
		if err := rpc.DecodeInput(r, &in); err != nil {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, err.Error())
			return
		}
		if in.Code == "" || in.CodeVerifier == "" || in.RedirectURI == "" {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, "code, codeVerifier and redirectUri are required")
			return
		}
		if !s.allowedRedirect(in.RedirectURI) {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, "redirectUri is not allowed")
			return
		}
		if base.ClientID == "" {
			_ = rpc.WriteError(w, http.StatusInternalServerError, rpc.CodeInternal, procedure, "provider is not configured")
			return
		}

		conf := *base
		conf.RedirectURL = in.RedirectURI
		tok, err := conf.Exchange(s.oauthContext(r.Context()), in.Code, oauth2.VerifierOption(in.CodeVerifier))
		if err != nil {
			s.writeProviderError(w, procedure, err)
			return
		}
		_ = rpc.WriteResult(w, s.providerTokens(tok))
	}
}

// GoogleRefreshToken redeems a Google refresh token.
func (s *Server) GoogleRefreshToken() http.HandlerFunc {
	procedure := rpc.ProcGoogleRefreshToken
	return func(w http.ResponseWriter, r *http.Request) {
		var in rpc.RefreshInput
		if err := rpc.DecodeInput(r, &in); err != nil {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, err.Error())
			return
		}
		if in.RefreshToken == "" {
			_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, "refreshToken is required")
			return
		}

		// An expired token forces the source to use the refresh grant.
		expired := &oauth2.Token{RefreshToken: in.RefreshToken, Expiry: s.nowTime().Add(-time.Minute)}
		tok, err := s.google.TokenSource(s.oauthContext(r.Context()), expired).Token()
		if err != nil {
			s.writeProviderError(w, procedure, err)
			return
		}
		out := s.providerTokens(tok)
		if out.RefreshToken == in.RefreshToken {
			out.RefreshToken = ""
		}
		_ = rpc.WriteResult(w, out)
	}
}

func (s *Server) providerTokens(tok *oauth2.Token) rpc.ProviderTokens {
	out := rpc.ProviderTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(tok.Expiry.Sub(s.nowTime()) / time.Second)
	}
	return out
}

// allowedRedirect accepts loopback redirects under the configured base.
func (s *Server) allowedRedirect(uri string) bool {
	base := strings.TrimRight(s.config.RedirectURIBase, "/")
	if base == "" {
		return true
	}
	return uri == base || strings.HasPrefix(uri, base+":") || strings.HasPrefix(uri, base+"/")
}

func (s *Server) writeProviderError(w http.ResponseWriter, procedure string, err error) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		msg := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			msg += ": " + retrieveErr.ErrorDescription
		}
		if msg == "" {
			msg = retrieveErr.Error()
		}
		log.Warn().Str("procedure", procedure).Int("status", retrieveErr.Response.StatusCode).Str("error", retrieveErr.ErrorCode).Msg("Provider rejected token request")
		_ = rpc.WriteError(w, http.StatusBadRequest, rpc.CodeBadRequest, procedure, msg)
		return
	}
	log.Err(err).Str("procedure", procedure).Msg("Provider token request failed")
	_ = rpc.WriteError(w, http.StatusBadGateway, rpc.CodeBadGateway, procedure, err.Error())
}
