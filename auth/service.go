package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/taskctl/browser"
	"github.com/jrsteele09/taskctl/callback"
	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/pkce"
	"github.com/jrsteele09/taskctl/session"
	"github.com/jrsteele09/taskctl/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCallbackTimeout = 10 * time.Minute
	// Upper bound on a refresh shared by concurrent CurrentSession callers.
	sharedRefreshTimeout = time.Minute
	stateLength          = 32
)

// Service runs the login flow for one provider and owns the in-memory copy
// of the session.
type Service struct {
	provider  Provider
	exchanger *token.Exchanger
	store     SessionStore

	launcher        browser.Launcher
	callbackCfg     callback.Config
	callbackTimeout time.Duration
	nowTime         func() time.Time

	loggingIn atomic.Bool
	refreshes singleflight.Group

	mu      sync.Mutex
	current *session.AuthSession
	loaded  bool
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLauncher replaces the system browser launcher.
func WithLauncher(l browser.Launcher) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithCallbackConfig overrides the loopback listener settings. The path is
// always taken from the provider.
func WithCallbackConfig(cfg callback.Config) ServiceOption {
	return func(s *Service) {
		s.callbackCfg = cfg
	}
}

// WithCallbackTimeout bounds how long Login waits for the redirect.
func WithCallbackTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.callbackTimeout = d
		}
	}
}

// NewService creates a Service for provider.
func NewService(provider Provider, exchanger *token.Exchanger, store SessionStore, options ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, errors.New("[NewService] provider is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewService] exchanger is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}

	s := &Service{
		provider:        provider,
		exchanger:       exchanger,
		store:           store,
		launcher:        browser.NewSystemLauncher(),
		callbackCfg:     callback.DefaultConfig(),
		callbackTimeout: DefaultCallbackTimeout,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.callbackCfg.Path = provider.CallbackPath()
	return s, nil
}

// Provider returns the identity provider this service signs in with.
func (s *Service) Provider() session.Provider {
	return s.provider.Name()
}

// Login runs the interactive flow and returns the new session. Every failure
// is reported to observer as a StateError status before being returned.
func (s *Service) Login(ctx context.Context, observer StatusObserver) (*session.AuthSession, error) {
	if observer == nil {
		observer = noopObserver{}
	}
	if !s.loggingIn.CompareAndSwap(false, true) {
		return nil, errs.ErrLoginInProgress
	}
	defer s.loggingIn.Store(false)

	sess, err := s.login(ctx, observer)
	if err != nil {
		log.Err(err).Str("provider", s.provider.Name().String()).Msg("Login failed")
		observer.OnStatus(FlowStatus{
			State:   StateError,
			Message: "Authentication failed",
			Error: &StatusError{
				Code:        errs.CodeOf(err),
				Description: errs.DescriptionOf(err),
			},
		})
		return nil, err
	}
	return sess, nil
}

func (s *Service) login(ctx context.Context, observer StatusObserver) (*session.AuthSession, error) {
	name := s.provider.Name()
	observer.OnStatus(FlowStatus{State: StateInitializing, Message: fmt.Sprintf("Starting %s sign-in", name)})

	challenge, err := pkce.New()
	if err != nil {
		return nil, err
	}
	state, err := pkce.GenerateState(stateLength)
	if err != nil {
		return nil, err
	}

	listener := callback.NewListener(s.callbackCfg, state)
	if err := listener.Start(); err != nil {
		return nil, err
	}
	defer listener.Close()

	redirectURI := listener.RedirectURI()
	authURL := s.provider.AuthCodeURL(AuthRequest{
		RedirectURI:   redirectURI,
		State:         state,
		CodeChallenge: challenge.Challenge,
	})

	observer.OnStatus(FlowStatus{State: StateBrowserOpening, Message: "Opening browser"})
	s.launcher.Open(authURL)

	observer.OnStatus(FlowStatus{
		State:   StateWaitingForUser,
		Message: "Waiting for you to finish signing in",
		AuthURL: authURL,
	})
	waitCtx, cancel := context.WithTimeout(ctx, s.callbackTimeout)
	defer cancel()
	code, err := listener.Wait(waitCtx)
	if err != nil {
		return nil, err
	}

	observer.OnStatus(FlowStatus{State: StateProcessingToken, Message: "Exchanging authorization code"})
	sess, err := s.provider.ExchangeCode(ctx, code, challenge.Verifier, redirectURI)
	if err != nil {
		return nil, err
	}
	if err := s.exchanger.ExchangeInto(ctx, sess, s.provider.BackendToken(sess)); err != nil {
		return nil, err
	}
	if err := sess.Validate(); err != nil {
		return nil, errs.Validation(err.Error())
	}

	s.mu.Lock()
	s.current = sess
	s.loaded = true
	s.persist(sess)
	s.mu.Unlock()

	observer.OnStatus(FlowStatus{State: StateSuccess, Message: fmt.Sprintf("Signed in as %s", sess.Email)})
	return sess.Clone(), nil
}

// Logout revokes the provider grant on a best-effort basis and forgets the
// session both in memory and on disk.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	if s.current != nil {
		if err := s.provider.Revoke(ctx, s.current); err != nil {
			log.Debug().Err(err).Msg("Token revocation failed, ignoring")
		}
		s.exchanger.Remove(s.current)
	}
	s.current = nil
	if err := s.store.Clear(); err != nil {
		return errs.Persistence(err, "clearing session file")
	}
	return nil
}

// CurrentSession returns the session with both tokens fresh, or nil when the
// user is not signed in. A failed provider refresh signs the user out.
// Concurrent callers share one refresh; a caller whose ctx ends stops waiting
// without cancelling the refresh for the others.
func (s *Service) CurrentSession(ctx context.Context) (*session.AuthSession, error) {
	ch := s.refreshes.DoChan("current", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRefreshTimeout)
		defer cancel()
		return s.currentSession(shared)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// The shared result is handed to every waiting caller.
	sess, _ := res.Val.(*session.AuthSession)
	if sess == nil {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *Service) currentSession(ctx context.Context) (*session.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.current == nil {
		return nil, nil
	}

	changed := false
	if s.current.ProviderTokenExpired(s.nowTime()) {
		refreshed, err := s.provider.Refresh(ctx, s.current, utils.Value(s.current.RefreshToken))
		if isCancellation(err) {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Msg("Session refresh failed, signing out")
			s.dropLocked()
			return nil, nil
		}
		s.current = refreshed
		changed = true
	}

	exchanged, err := s.exchanger.RefreshIfNeeded(ctx, s.current, s.provider.BackendToken(s.current))
	if err != nil {
		return nil, err
	}
	if changed || exchanged {
		s.persist(s.current)
	}
	return s.current.Clone(), nil
}

// IsAuthenticated reports whether a session exists and its provider token
// has not expired.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	sess, err := s.CurrentSession(ctx)
	if err != nil || sess == nil {
		return false
	}
	return !sess.ProviderTokenExpired(s.nowTime())
}

// Refresh forces a provider refresh with refreshToken (falling back to the
// stored one) and re-exchanges the internal token. On failure the session is
// cleared.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*session.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	refreshed, err := s.provider.Refresh(ctx, s.current, refreshToken)
	if isCancellation(err) {
		return nil, err
	}
	if err != nil {
		if s.current != nil {
			s.dropLocked()
		}
		if errors.Is(err, errs.ErrRefresh) {
			return nil, err
		}
		return nil, errs.Refresh(err)
	}
	if _, err := s.exchanger.RefreshIfNeeded(ctx, refreshed, s.provider.BackendToken(refreshed)); err != nil {
		return nil, err
	}
	s.current = refreshed
	s.persist(refreshed)
	return refreshed.Clone(), nil
}

// BackendToken is the bearer sent on API calls: the internal token.
func (s *Service) BackendToken(sess *session.AuthSession) string {
	if sess == nil {
		return ""
	}
	return utils.Value(sess.InternalToken)
}

// ProviderBackendToken is the provider credential used only for internal
// token exchange.
func (s *Service) ProviderBackendToken(sess *session.AuthSession) string {
	return s.provider.BackendToken(sess)
}

// Forget drops the in-memory session without touching the file, so that the
// next call reloads whatever is stored.
func (s *Service) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.loaded = false
}

func (s *Service) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	stored, ok := s.store.Load()
	if !ok {
		return
	}
	if stored.Provider != s.provider.Name() {
		log.Debug().Str("stored", stored.Provider.String()).Str("provider", s.provider.Name().String()).
			Msg("Stored session belongs to another provider")
		return
	}
	s.current = stored
}

// isCancellation reports whether err came from an abandoned call rather than
// a rejected grant. The session survives those.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) dropLocked() {
	s.current = nil
	if err := s.store.Clear(); err != nil {
		log.Err(err).Msg("Failed to clear session file")
	}
}

// persist is best effort: the session stays usable in memory.
func (s *Service) persist(sess *session.AuthSession) {
	if err := s.store.Persist(sess); err != nil {
		log.Err(errs.Persistence(err, "writing session file")).Msg("Failed to persist session")
	}
}
