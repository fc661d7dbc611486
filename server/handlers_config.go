package server

import (
	"net/http"

	"github.com/jrsteele09/taskctl/rpc"
)

// ClientConfig publishes the public half of each provider's OAuth app.
func (s *Server) ClientConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = rpc.WriteResult(w, rpc.ClientConfig{
			Auth: rpc.AuthClientConfig{
				Google: rpc.ProviderClientConfig{
					ClientID:        s.config.GoogleClientID,
					RedirectURIBase: s.config.RedirectURIBase,
					Scopes:          s.config.GoogleScopes,
				},
				GitHub: rpc.ProviderClientConfig{
					ClientID:        s.config.GitHubClientID,
					RedirectURIBase: s.config.RedirectURIBase,
					Scopes:          s.config.GitHubScopes,
				},
			},
		})
	}
}
