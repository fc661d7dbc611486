package server

import (
	"net/http"

	"github.com/jrsteele09/taskctl/rpc"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// Mediated provider token operations
	s.RegisterRouteHandler("POST "+RouteGoogleExchangeToken, ChainMiddleware(s.GoogleExchangeToken(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteGoogleRefreshToken, ChainMiddleware(s.GoogleRefreshToken(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteGitHubExchangeToken, ChainMiddleware(s.GitHubExchangeToken(), s.APIMiddleware()...))

	// Internal tokens
	s.RegisterRouteHandler("POST "+RouteInternalExchange, ChainMiddleware(s.InternalExchange(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteClientConfig, ChainMiddleware(s.ClientConfig(), s.APIMiddleware()...))

	s.RegisterRouteHandler(RouteTRPC, ChainMiddleware(s.UnknownProcedure(), s.APIMiddleware()...))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = rpc.WriteResult(w, map[string]string{"status": "ok"})
	}
}

func (s *Server) UnknownProcedure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		procedure := r.URL.Path[len(RouteTRPC):]
		_ = rpc.WriteError(w, http.StatusNotFound, rpc.CodeNotFound, procedure, "No such procedure "+procedure)
	}
}
