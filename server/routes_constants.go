package server

import "github.com/jrsteele09/taskctl/rpc"

// Route path constants
const (
	RouteTRPC = "/trpc/"

	RouteGoogleExchangeToken = RouteTRPC + rpc.ProcGoogleExchangeToken
	RouteGoogleRefreshToken  = RouteTRPC + rpc.ProcGoogleRefreshToken
	RouteGitHubExchangeToken = RouteTRPC + rpc.ProcGitHubExchangeToken
	RouteInternalExchange    = RouteTRPC + rpc.ProcInternalExchange
	RouteClientConfig        = RouteTRPC + rpc.ProcClientConfig

	RouteHealth = "/healthz"
)
