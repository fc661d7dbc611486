package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/taskctl/auth"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/stretchr/testify/require"
)

func TestNewGoogle_Validation(t *testing.T) {
	_, err := auth.NewGoogle(auth.GoogleConfig{}, newFakeBackend(), nil, nil)
	require.Error(t, err)
	_, err = auth.NewGoogle(auth.GoogleConfig{ClientID: "c"}, nil, nil, nil)
	require.Error(t, err)
}

func TestGoogle_AuthCodeURL(t *testing.T) {
	g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "google-client"}, newFakeBackend(), nil, fixedClock)
	require.NoError(t, err)

	raw := g.AuthCodeURL(auth.AuthRequest{RedirectURI: "http://localhost:8080/callback", State: "S", CodeChallenge: "CH"})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	require.Equal(t, "google-client", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.Equal(t, "S", q.Get("state"))
	require.Equal(t, "CH", q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Equal(t, auth.GoogleCallbackPath, g.CallbackPath())
}

func TestGoogle_ExchangeCode(t *testing.T) {
	t.Run("user info resolved", func(t *testing.T) {
		userInfo := googleUserInfoServer(t, googleUser)
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", UserInfoURL: userInfo.URL}, newFakeBackend(), nil, fixedClock)
		require.NoError(t, err)

		sess, err := g.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/callback")
		require.NoError(t, err)
		require.Equal(t, "u1", sess.ProviderUserID)
		require.Equal(t, "a@b.com", sess.Email)
		require.Equal(t, true, sess.Metadata["email_verified"])
		require.Equal(t, testNow.Unix()+3600, utils.Value(sess.ExpiresAt))
	})

	t.Run("missing email", func(t *testing.T) {
		userInfo := googleUserInfoServer(t, `{"sub": "u1"}`)
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", UserInfoURL: userInfo.URL}, newFakeBackend(), nil, fixedClock)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/callback")
		require.ErrorIs(t, err, errs.ErrIdentity)
	})

	t.Run("user info failure", func(t *testing.T) {
		userInfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token revoked", http.StatusUnauthorized)
		}))
		defer userInfo.Close()
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", UserInfoURL: userInfo.URL}, newFakeBackend(), nil, fixedClock)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/callback")
		require.ErrorIs(t, err, errs.ErrNetwork)
		require.ErrorContains(t, err, "401")
	})

	t.Run("backend failure is propagated", func(t *testing.T) {
		backend := newFakeBackend()
		backend.exchangeErr = errs.HTTPStatus("backend auth.google.exchangeToken", 400, "invalid_grant")
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c"}, backend, nil, fixedClock)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/callback")
		require.ErrorIs(t, err, errs.ErrNetwork)
		require.ErrorContains(t, err, "invalid_grant")
	})
}

func TestGoogle_Refresh(t *testing.T) {
	userInfo := googleUserInfoServer(t, googleUser)

	t.Run("rotated refresh token replaces the old one", func(t *testing.T) {
		backend := newFakeBackend()
		backend.refreshTokens = &rpc.ProviderTokens{AccessToken: "AT2", RefreshToken: "RT2", IDToken: "IT2", ExpiresIn: 1800}
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", UserInfoURL: userInfo.URL}, backend, nil, fixedClock)
		require.NoError(t, err)

		sess, err := g.Refresh(context.Background(), nil, "RT")
		require.NoError(t, err)
		require.Equal(t, "AT2", sess.AccessToken)
		require.Equal(t, "RT2", utils.Value(sess.RefreshToken))
		require.Equal(t, "IT2", utils.Value(sess.IDToken))
		require.Equal(t, testNow.Unix()+1800, utils.Value(sess.ExpiresAt))
	})

	t.Run("missing id token falls back to the previous one", func(t *testing.T) {
		backend := newFakeBackend()
		backend.refreshTokens = &rpc.ProviderTokens{AccessToken: "AT2", ExpiresIn: 3600}
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", UserInfoURL: userInfo.URL}, backend, nil, fixedClock)
		require.NoError(t, err)

		previous := &session.AuthSession{AccessToken: "AT", RefreshToken: utils.Ptr("RT"), IDToken: utils.Ptr("IT"), Provider: session.ProviderGoogle}
		sess, err := g.Refresh(context.Background(), previous, "")
		require.NoError(t, err)
		require.Equal(t, "RT", utils.Value(sess.RefreshToken))
		require.Equal(t, "IT", utils.Value(sess.IDToken))
		require.Equal(t, "RT", backend.refreshInputs[0].RefreshToken)
	})

	t.Run("nothing to refresh", func(t *testing.T) {
		g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c"}, newFakeBackend(), nil, fixedClock)
		require.NoError(t, err)
		_, err = g.Refresh(context.Background(), nil, "")
		require.ErrorIs(t, err, errs.ErrRefresh)
		require.ErrorIs(t, err, errs.ErrNothingToRefresh)
	})
}

func TestGoogle_Revoke(t *testing.T) {
	var revoked string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		revoked = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c", RevokeURL: srv.URL}, newFakeBackend(), nil, fixedClock)
	require.NoError(t, err)

	require.NoError(t, g.Revoke(context.Background(), &session.AuthSession{AccessToken: "AT", RefreshToken: utils.Ptr("RT")}))
	require.Equal(t, "RT", revoked)

	require.NoError(t, g.Revoke(context.Background(), &session.AuthSession{AccessToken: "AT"}))
	require.Equal(t, "AT", revoked)
}

func TestGoogle_BackendToken(t *testing.T) {
	g, err := auth.NewGoogle(auth.GoogleConfig{ClientID: "c"}, newFakeBackend(), nil, fixedClock)
	require.NoError(t, err)
	require.Equal(t, "IT", g.BackendToken(&session.AuthSession{AccessToken: "AT", IDToken: utils.Ptr("IT")}))
	require.Empty(t, g.BackendToken(&session.AuthSession{AccessToken: "AT"}))
}
