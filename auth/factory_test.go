package auth_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/jrsteele09/taskctl/auth"
	"github.com/jrsteele09/taskctl/browser"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/session"
	"github.com/stretchr/testify/require"
)

func newFactory(t *testing.T, backend *fakeBackend, store auth.SessionStore, opts ...auth.FactoryOption) *auth.Factory {
	t.Helper()
	opts = append([]auth.FactoryOption{
		auth.WithFactoryNowTime(fixedClock),
		auth.WithCallback(testCallbackConfig(), 0),
	}, opts...)
	f, err := auth.NewFactory(backend, store, opts...)
	require.NoError(t, err)
	return f
}

func TestNewFactory_Validation(t *testing.T) {
	_, err := auth.NewFactory(nil, newStore(t))
	require.Error(t, err)
	_, err = auth.NewFactory(newFakeBackend(), nil)
	require.Error(t, err)
}

func TestFactory_ActiveProvider(t *testing.T) {
	t.Run("defaults to google", func(t *testing.T) {
		f := newFactory(t, newFakeBackend(), newStore(t))
		require.Equal(t, session.ProviderGoogle, f.ActiveProvider())
	})

	t.Run("configured default", func(t *testing.T) {
		f := newFactory(t, newFakeBackend(), newStore(t), auth.WithDefaultProvider(session.ProviderGitHub))
		svc, err := f.Active(context.Background())
		require.NoError(t, err)
		require.Equal(t, session.ProviderGitHub, svc.Provider())
	})

	t.Run("stored session wins", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, &session.AuthSession{
			AccessToken: "GT", Provider: session.ProviderGitHub, ProviderUserID: "42", Email: "a@b.com",
		})
		f := newFactory(t, newFakeBackend(), store, auth.WithDefaultProvider(session.ProviderGoogle))
		require.Equal(t, session.ProviderGitHub, f.ActiveProvider())
	})
}

func TestFactory_FetchesClientConfigOnce(t *testing.T) {
	backend := newFakeBackend()
	f := newFactory(t, backend, newStore(t))

	_, err := f.ForProvider(context.Background(), session.ProviderGoogle)
	require.NoError(t, err)
	_, err = f.ForProvider(context.Background(), session.ProviderGitHub)
	require.NoError(t, err)
	require.Equal(t, 1, backend.configCalls)
}

func TestFactory_ClientConfigUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.configErr = errors.New("connection refused")
	store := newStore(t)
	seedSession(t, store, storedGoogleSession(testNow.Unix()+3600, testNow.Unix()+3000))

	f := newFactory(t, backend, store)
	require.Equal(t, session.ProviderGoogle, f.ActiveProvider())

	_, err := f.Active(context.Background())
	require.ErrorContains(t, err, "connection refused")

	backend.mu.Lock()
	backend.configErr = nil
	backend.mu.Unlock()
	svc, err := f.Active(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.ProviderGoogle, svc.Provider())
	require.Equal(t, 2, backend.configCalls)
}

func TestFactory_RedirectHostPerProvider(t *testing.T) {
	backend := newFakeBackend()
	backend.clientConfig.Auth.Google.RedirectURIBase = "http://localhost"
	backend.clientConfig.Auth.GitHub.RedirectURIBase = "http://127.0.0.1"

	opened := make(chan string, 1)
	launcher := browser.Func(func(authURL string) { opened <- authURL })
	f := newFactory(t, backend, newStore(t), auth.WithBrowser(launcher))

	redirectHostOf := func(p session.Provider) string {
		svc, err := f.ForProvider(context.Background(), p)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = svc.Login(ctx, nil)
		}()
		authURL := <-opened
		cancel()
		<-done

		u, err := url.Parse(authURL)
		require.NoError(t, err)
		redirect, err := url.Parse(u.Query().Get("redirect_uri"))
		require.NoError(t, err)
		return redirect.Hostname()
	}

	require.Equal(t, "127.0.0.1", redirectHostOf(session.ProviderGitHub))
	require.Equal(t, "localhost", redirectHostOf(session.ProviderGoogle))
}

func TestFactory_ForProvider(t *testing.T) {
	f := newFactory(t, newFakeBackend(), newStore(t))

	a, err := f.ForProvider(context.Background(), session.ProviderGitHub)
	require.NoError(t, err)
	b, err := f.ForProvider(context.Background(), session.ProviderGitHub)
	require.NoError(t, err)
	require.Same(t, a, b)

	_, err = f.ForProvider(context.Background(), session.ProviderApple)
	require.ErrorIs(t, err, errs.ErrUnsupportedProvider)

	require.ErrorIs(t, f.SetActive(context.Background(), session.ProviderApple), errs.ErrUnsupportedProvider)
	require.Equal(t, session.ProviderGoogle, f.ActiveProvider())

	require.NoError(t, f.SetActive(context.Background(), session.ProviderGitHub))
	require.Equal(t, session.ProviderGitHub, f.ActiveProvider())
}

func TestFactory_MissingClientID(t *testing.T) {
	backend := newFakeBackend()
	backend.clientConfig.Auth.GitHub.ClientID = ""
	f := newFactory(t, backend, newStore(t))
	_, err := f.ForProvider(context.Background(), session.ProviderGitHub)
	require.Error(t, err)

	f = newFactory(t, backend, newStore(t), auth.WithGitHubOverrides(auth.GitHubConfig{ClientID: "local-client"}))
	_, err = f.ForProvider(context.Background(), session.ProviderGitHub)
	require.NoError(t, err)
}

func TestFactory_SwitchingProviderReloadsSession(t *testing.T) {
	store := newStore(t)
	f := newFactory(t, newFakeBackend(), store)

	google, err := f.ForProvider(context.Background(), session.ProviderGoogle)
	require.NoError(t, err)
	sess, err := google.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)

	seedSession(t, store, &session.AuthSession{
		AccessToken:       "AT",
		IDToken:           utils.Ptr("IT"),
		ExpiresAt:         utils.Ptr(testNow.Unix() + 3600),
		Provider:          session.ProviderGoogle,
		ProviderUserID:    "u1",
		Email:             "a@b.com",
		InternalToken:     utils.Ptr("jwt"),
		InternalExpiresAt: utils.Ptr(testNow.Unix() + 3000),
	})
	require.NoError(t, f.SetActive(context.Background(), session.ProviderGitHub))
	require.NoError(t, f.SetActive(context.Background(), session.ProviderGoogle))

	sess, err = google.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "jwt", google.BackendToken(sess))
}
