package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/taskctl/auth"
	"github.com/jrsteele09/taskctl/browser"
	"github.com/jrsteele09/taskctl/callback"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_750_000_000, 0)

func fixedClock() time.Time { return testNow }

// fakeBackend records every procedure call and answers from its fields.
type fakeBackend struct {
	mu sync.Mutex

	googleTokens  *rpc.ProviderTokens
	githubTokens  *rpc.ProviderTokens
	refreshTokens *rpc.ProviderTokens
	exchangeErr   error
	refreshErr    error
	internalErr   error
	internalTTL   int64
	clientConfig  rpc.ClientConfig
	configErr     error

	// When set, GoogleRefreshToken signals refreshStarted and blocks until
	// refreshGate is closed or its context ends.
	refreshStarted chan struct{}
	refreshGate    chan struct{}

	codeInputs     []rpc.CodeExchangeInput
	refreshInputs  []rpc.RefreshInput
	internalInputs []rpc.InternalExchangeInput
	configCalls    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		googleTokens: &rpc.ProviderTokens{AccessToken: "AT", RefreshToken: "RT", IDToken: "IT", ExpiresIn: 3600},
		githubTokens: &rpc.ProviderTokens{AccessToken: "GT"},
		internalTTL:  3300,
		clientConfig: rpc.ClientConfig{Auth: rpc.AuthClientConfig{
			Google: rpc.ProviderClientConfig{ClientID: "google-client", RedirectURIBase: "http://127.0.0.1"},
			GitHub: rpc.ProviderClientConfig{ClientID: "github-client", RedirectURIBase: "http://127.0.0.1"},
		}},
	}
}

func (b *fakeBackend) GoogleExchangeToken(_ context.Context, in rpc.CodeExchangeInput) (*rpc.ProviderTokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codeInputs = append(b.codeInputs, in)
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	out := *b.googleTokens
	return &out, nil
}

func (b *fakeBackend) GoogleRefreshToken(ctx context.Context, in rpc.RefreshInput) (*rpc.ProviderTokens, error) {
	if b.refreshGate != nil {
		close(b.refreshStarted)
		select {
		case <-b.refreshGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshInputs = append(b.refreshInputs, in)
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	if b.refreshTokens == nil {
		return nil, errors.New("no refresh configured")
	}
	out := *b.refreshTokens
	return &out, nil
}

func (b *fakeBackend) GitHubExchangeToken(_ context.Context, in rpc.CodeExchangeInput) (*rpc.ProviderTokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codeInputs = append(b.codeInputs, in)
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	out := *b.githubTokens
	return &out, nil
}

func (b *fakeBackend) InternalExchange(_ context.Context, in rpc.InternalExchangeInput) (*rpc.InternalExchangeOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.internalInputs = append(b.internalInputs, in)
	if b.internalErr != nil {
		return nil, b.internalErr
	}
	return &rpc.InternalExchangeOutput{
		InternalToken: fmt.Sprintf("internal-%d", len(b.internalInputs)),
		ExpiresIn:     b.internalTTL,
	}, nil
}

func (b *fakeBackend) ClientConfig(context.Context) (*rpc.ClientConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configCalls++
	if b.configErr != nil {
		return nil, b.configErr
	}
	out := b.clientConfig
	return &out, nil
}

func (b *fakeBackend) refreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refreshInputs)
}

func (b *fakeBackend) internalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.internalInputs)
}

// redirectingBrowser plays the user: it follows the authorization URL back
// to the loopback listener with the given query parameters.
func redirectingBrowser(t *testing.T, params func(state string) url.Values) (browser.Launcher, <-chan string) {
	t.Helper()
	opened := make(chan string, 1)
	return browser.Func(func(authURL string) {
		opened <- authURL
		u, err := url.Parse(authURL)
		if err != nil {
			return
		}
		q := u.Query()
		target := q.Get("redirect_uri") + "?" + params(q.Get("state")).Encode()
		go func() {
			resp, err := http.Get(target)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}), opened
}

func approve(code string) func(string) url.Values {
	return func(state string) url.Values {
		return url.Values{"code": {code}, "state": {state}}
	}
}

func testCallbackConfig() callback.Config {
	cfg := callback.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.PortStart, cfg.PortEnd = 0, 0
	cfg.SuccessDelay, cfg.ErrorDelay = 0, 0
	return cfg
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	return store
}

func googleUserInfoServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type githubAPI struct {
	user    string
	emails  string
	revoked chan string
}

func (g *githubAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(g.user))
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(g.emails))
	})
	mux.HandleFunc("DELETE /applications/{client}/token", func(w http.ResponseWriter, r *http.Request) {
		if g.revoked != nil {
			g.revoked <- r.PathValue("client")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const privateEmailUser = `{"id": 42, "login": "octo", "name": "", "email": null, "avatar_url": "https://avatars/42", "html_url": "https://github.com/octo"}`

const githubEmails = `[
	{"email": "old@b.com", "primary": false, "verified": true},
	{"email": "a@b.com", "primary": true, "verified": true}
]`

func newGoogleService(t *testing.T, backend *fakeBackend, store auth.SessionStore, userInfoURL string, opts ...auth.ServiceOption) *auth.Service {
	t.Helper()
	g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "google-client", UserInfoURL: userInfoURL}, backend, nil, fixedClock)
	require.NoError(t, err)
	return newService(t, g, backend, store, opts...)
}

func newGitHubService(t *testing.T, backend *fakeBackend, store auth.SessionStore, apiURL string, opts ...auth.ServiceOption) *auth.Service {
	t.Helper()
	g, err := auth.NewGitHub(auth.GitHubConfig{ClientID: "github-client", APIURL: apiURL}, backend, nil)
	require.NoError(t, err)
	return newService(t, g, backend, store, opts...)
}
