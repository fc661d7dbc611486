// Package callback implements the short-lived loopback HTTP listener that
// receives the OAuth authorization redirect.
package callback

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPortStart    = 8080
	DefaultPortEnd      = 8089
	DefaultPath         = "/callback"
	DefaultSuccessDelay = 2 * time.Second
	DefaultErrorDelay   = 10 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Config controls where the listener binds and how long it lingers after
// answering the redirect.
type Config struct {
	// Host used in the redirect URI. The socket is always bound to loopback.
	Host string
	// Inclusive range probed in order. PortStart == 0 lets the OS choose.
	PortStart int
	PortEnd   int
	Path      string
	// Time to keep serving after a successful redirect so the page flushes.
	SuccessDelay time.Duration
	// Time to keep serving after a failed redirect so the user can read it.
	ErrorDelay time.Duration
}

// DefaultConfig returns the standard loopback settings.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		PortStart:    DefaultPortStart,
		PortEnd:      DefaultPortEnd,
		Path:         DefaultPath,
		SuccessDelay: DefaultSuccessDelay,
		ErrorDelay:   DefaultErrorDelay,
	}
}

type outcome struct {
	code string
	err  error
}

// Listener serves exactly one authorization redirect.
type Listener struct {
	cfg           Config
	expectedState string

	listener net.Listener
	server   *http.Server
	port     int

	handled   sync.Once
	closeOnce sync.Once
	closeErr  error
	resultCh  chan outcome
	serveErr  chan error
}

// NewListener prepares a listener that accepts the redirect only when its
// state parameter equals expectedState.
func NewListener(cfg Config, expectedState string) *Listener {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.PortStart != 0 && cfg.PortEnd < cfg.PortStart {
		cfg.PortEnd = cfg.PortStart
	}
	return &Listener{
		cfg:           cfg,
		expectedState: expectedState,
		resultCh:      make(chan outcome, 1),
		serveErr:      make(chan error, 1),
	}
}

// Start binds the first free port in the configured range and begins serving.
func (l *Listener) Start() error {
	ln, err := l.bind()
	if err != nil {
		return err
	}
	l.listener = ln
	l.port = ln.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(l.cfg.Path, l.handleCallback)
	mux.HandleFunc("/", http.NotFound)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case l.serveErr <- err:
			default:
			}
		}
	}()

	log.Debug().Int("port", l.port).Str("path", l.cfg.Path).Msg("Callback listener started")
	return nil
}

func (l *Listener) bind() (net.Listener, error) {
	if l.cfg.PortStart == 0 {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrNoFreePort, err)
		}
		return ln, nil
	}
	for port := l.cfg.PortStart; port <= l.cfg.PortEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			log.Debug().Err(err).Int("port", port).Msg("Callback port busy")
			continue
		}
		return ln, nil
	}
	return nil, fmt.Errorf("%w in range %d-%d", errs.ErrNoFreePort, l.cfg.PortStart, l.cfg.PortEnd)
}

// Port returns the bound port, or 0 before Start.
func (l *Listener) Port() int {
	return l.port
}

// RedirectURI is the URI the provider must redirect to.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d%s", l.cfg.Host, l.port, l.cfg.Path)
}

// Wait blocks until the redirect has been handled and the linger delay has
// elapsed, then shuts the listener down. It returns the authorization code,
// or a ProviderError / ValidationError describing the failed redirect.
// The listener is closed on every return path.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	defer l.Close()

	select {
	case res := <-l.resultCh:
		delay := l.cfg.SuccessDelay
		if res.err != nil {
			delay = l.cfg.ErrorDelay
		}
		l.linger(ctx, delay)
		return res.code, res.err
	case err := <-l.serveErr:
		return "", fmt.Errorf("callback listener failed: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *Listener) linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Close shuts the listener down. It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		if l.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			l.closeErr = l.server.Shutdown(ctx)
		}
		if l.listener != nil {
			_ = l.listener.Close()
		}
		log.Debug().Int("port", l.port).Msg("Callback listener closed")
	})
	return l.closeErr
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	l.handled.Do(func() {
		handled = true
		l.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (l *Listener) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	res := l.evaluate(r)

	var (
		page   string
		err    error
		status = http.StatusOK
	)
	var fe *errs.FlowError
	switch {
	case res.err == nil:
		page, err = RenderSuccess("Authentication complete.")
	case errors.As(res.err, &fe) && errors.Is(fe, errs.ErrProvider):
		status = http.StatusBadRequest
		page, err = RenderError("Authorization failed", providerMessage(fe), fe.Code)
	default:
		status = http.StatusBadRequest
		page, err = RenderError("Sign-in could not be verified", errs.DescriptionOf(res.err), errs.CodeOf(res.err))
	}
	if err != nil {
		log.Err(err).Msg("Failed to render callback page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(page))
	}

	select {
	case l.resultCh <- res:
	default:
	}
}

func (l *Listener) evaluate(r *http.Request) outcome {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		return outcome{err: errs.Provider(providerErr, query.Get("error_description"))}
	}
	code := query.Get("code")
	if code == "" {
		return outcome{err: errs.Validation("authorization code missing from redirect")}
	}
	state := query.Get("state")
	if l.expectedState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(l.expectedState)) != 1 {
		return outcome{err: errs.Validation("state parameter does not match this login attempt")}
	}
	return outcome{code: code}
}

func providerMessage(fe *errs.FlowError) string {
	if fe.Description != "" {
		return fe.Description
	}
	return "The identity provider rejected the request."
}
