package rpc

// Procedure names exposed by the backend.
const (
	ProcGoogleExchangeToken = "auth.google.exchangeToken"
	ProcGoogleRefreshToken  = "auth.google.refreshToken"
	ProcGitHubExchangeToken = "auth.github.exchangeToken"
	ProcInternalExchange    = "auth.internal.exchange"
	ProcClientConfig        = "config.clientConfig"
)

// CodeExchangeInput is sent to the provider-specific code exchange procedures.
type CodeExchangeInput struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

// RefreshInput is sent to auth.google.refreshToken.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken"`
}

// ProviderTokens is what the backend returns after talking to the provider.
// GitHub only ever sets AccessToken.
type ProviderTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
}

// InternalExchangeInput trades a provider credential for an internal token.
type InternalExchangeInput struct {
	ProviderToken string `json:"providerToken"`
	Provider      string `json:"provider"`
}

// InternalExchangeOutput carries the internal JWT. ExpiresIn is already
// reduced by the backend's safety buffer.
type InternalExchangeOutput struct {
	InternalToken string `json:"internalToken"`
	ExpiresIn     int64  `json:"expiresIn"`
}

// ProviderClientConfig is the public part of a provider's OAuth app.
type ProviderClientConfig struct {
	ClientID        string   `json:"clientId"`
	RedirectURIBase string   `json:"redirectUriBase"`
	Scopes          []string `json:"scopes"`
}

// AuthClientConfig groups the per-provider settings.
type AuthClientConfig struct {
	Google ProviderClientConfig `json:"google"`
	GitHub ProviderClientConfig `json:"github"`
}

// ClientConfig is returned by config.clientConfig.
type ClientConfig struct {
	Auth AuthClientConfig `json:"auth"`
}
