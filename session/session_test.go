package session_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/session"
	"github.com/stretchr/testify/require"
)

func validSession() *session.AuthSession {
	return &session.AuthSession{
		AccessToken:    "AT",
		Provider:       session.ProviderGitHub,
		ProviderUserID: "42",
		Email:          "a@b.com",
	}
}

func TestAuthSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *session.AuthSession)
		wantErr string
	}{
		{name: "valid", mutate: func(*session.AuthSession) {}},
		{name: "missing access token", mutate: func(s *session.AuthSession) { s.AccessToken = "" }, wantErr: "access token"},
		{name: "missing email", mutate: func(s *session.AuthSession) { s.Email = "" }, wantErr: "email"},
		{name: "missing user id", mutate: func(s *session.AuthSession) { s.ProviderUserID = "" }, wantErr: "user id"},
		{name: "unknown provider", mutate: func(s *session.AuthSession) { s.Provider = "gitlab" }, wantErr: "unknown provider"},
		{
			name:    "internal token without expiry",
			mutate:  func(s *session.AuthSession) { s.InternalToken = utils.Ptr("jwt") },
			wantErr: "set together",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSession()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAuthSession_ProviderTokenExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := validSession()
	require.False(t, s.ProviderTokenExpired(now), "nil expiry never expires")

	s.ExpiresAt = utils.Ptr(now.Unix() - 1)
	require.True(t, s.ProviderTokenExpired(now))

	s.ExpiresAt = utils.Ptr(now.Unix() + 60)
	require.False(t, s.ProviderTokenExpired(now))
}

func TestAuthSession_Clone(t *testing.T) {
	s := validSession()
	s.Name = utils.Ptr("Ada")
	s.Metadata = map[string]any{"login": "ada"}

	c := s.Clone()
	require.Equal(t, s, c)

	*c.Name = "Grace"
	c.Metadata["login"] = "grace"
	require.Equal(t, "Ada", *s.Name)
	require.Equal(t, "ada", s.Metadata["login"])
}
