// Package token manages the internal bearer token layered on top of the
// provider-level session.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/taskctl/internal/utils"
	"github.com/jrsteele09/taskctl/rpc"
	"github.com/jrsteele09/taskctl/session"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer treats an internal token as expired this long before its
// recorded expiry so in-flight requests never carry a dead token.
const DefaultBuffer = 300 * time.Second

// Backend is the slice of the backend API the exchanger needs.
type Backend interface {
	InternalExchange(ctx context.Context, in rpc.InternalExchangeInput) (*rpc.InternalExchangeOutput, error)
}

// ExchangeResult is the backend's answer to an internal exchange.
type ExchangeResult struct {
	InternalToken string
	ExpiresIn     int64
}

// Exchanger trades provider credentials for internal tokens.
type Exchanger struct {
	backend Backend
	buffer  time.Duration
	nowTime func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ExchangerOption {
	return func(e *Exchanger) {
		e.nowTime = nowFunc
	}
}

// WithBuffer overrides DefaultBuffer for RefreshIfNeeded.
func WithBuffer(buffer time.Duration) ExchangerOption {
	return func(e *Exchanger) {
		if buffer >= 0 {
			e.buffer = buffer
		}
	}
}

// NewExchanger creates an Exchanger backed by the given API.
func NewExchanger(backend Backend, options ...ExchangerOption) (*Exchanger, error) {
	if backend == nil {
		return nil, errors.New("[NewExchanger] backend is required")
	}
	e := &Exchanger{
		backend: backend,
		buffer:  DefaultBuffer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Exchange calls auth.internal.exchange with the provider credential.
func (e *Exchanger) Exchange(ctx context.Context, provider session.Provider, providerToken string) (*ExchangeResult, error) {
	if providerToken == "" {
		return nil, fmt.Errorf("no %s credential to exchange", provider)
	}
	out, err := e.backend.InternalExchange(ctx, rpc.InternalExchangeInput{
		ProviderToken: providerToken,
		Provider:      provider.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("internal token exchange: %w", err)
	}
	if out.InternalToken == "" || out.ExpiresIn <= 0 {
		return nil, errors.New("internal token exchange returned an empty token")
	}
	return &ExchangeResult{InternalToken: out.InternalToken, ExpiresIn: out.ExpiresIn}, nil
}

// Apply stores the result on s, with internalExpiresAt = now + expiresIn.
func (e *Exchanger) Apply(s *session.AuthSession, result *ExchangeResult) {
	s.InternalToken = utils.Ptr(result.InternalToken)
	s.InternalExpiresAt = utils.Ptr(e.nowTime().Unix() + result.ExpiresIn)
}

// ExchangeInto runs Exchange and Apply.
func (e *Exchanger) ExchangeInto(ctx context.Context, s *session.AuthSession, providerToken string) error {
	result, err := e.Exchange(ctx, s.Provider, providerToken)
	if err != nil {
		return err
	}
	e.Apply(s, result)
	return nil
}

// IsExpired reports whether s lacks an internal token or whether
// now >= internalExpiresAt - buffer.
func (e *Exchanger) IsExpired(s *session.AuthSession, buffer time.Duration) bool {
	return IsInternalTokenExpired(s, e.nowTime(), buffer)
}

// IsInternalTokenExpired is IsExpired with an explicit clock.
func IsInternalTokenExpired(s *session.AuthSession, now time.Time, buffer time.Duration) bool {
	if s == nil || !s.HasInternalToken() || s.InternalExpiresAt == nil {
		return true
	}
	return now.Unix() >= *s.InternalExpiresAt-int64(buffer/time.Second)
}

// RefreshIfNeeded re-exchanges providerToken when the internal token is
// missing or about to expire. It reports whether s changed.
func (e *Exchanger) RefreshIfNeeded(ctx context.Context, s *session.AuthSession, providerToken string) (bool, error) {
	if !e.IsExpired(s, e.buffer) {
		return false, nil
	}
	log.Debug().Str("provider", s.Provider.String()).Msg("Internal token expired, exchanging")
	if err := e.ExchangeInto(ctx, s, providerToken); err != nil {
		return false, err
	}
	return true, nil
}

// Remove strips the internal token overlay, leaving the provider session.
func (e *Exchanger) Remove(s *session.AuthSession) {
	if s == nil {
		return
	}
	s.InternalToken = nil
	s.InternalExpiresAt = nil
}
