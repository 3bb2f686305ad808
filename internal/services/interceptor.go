package services

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/pricewatch/internal/tokenstore"
)

// RequestIDHeader carries a per-request UUID for correlating client and server logs.
const RequestIDHeader = "X-Request-ID"

type tokenOverrideKey struct{}

// WithToken returns a context whose requests carry token regardless of the session.
// Rehydration and the OAuth token hand-off use it to call /auth/me with a token that is
// not installed yet.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenOverrideKey{}, token)
}

// TokenFromContext returns the override set by [WithToken].
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenOverrideKey{}).(string)
	return tok, ok && tok != ""
}

// Session is the part of session.Manager the transport needs.
type Session interface {
	Token() string
	Expire(token string) bool
}

// AuthTransport attaches bearer tokens and reacts to 401 responses.
type AuthTransport struct {
	Base    http.RoundTripper
	Session Session
	Store   tokenstore.Store
	Limiter *rate.Limiter
	Logger  *log.Logger
}

// CurrentToken resolves the token for a request made with ctx.
func (t *AuthTransport) CurrentToken(ctx context.Context) string {
	if tok, ok := TokenFromContext(ctx); ok {
		return tok
	}
	if t.Session != nil {
		if tok := t.Session.Token(); tok != "" {
			return tok
		}
	}
	if t.Store != nil {
		if tok, ok := t.Store.Load(); ok {
			return tok
		}
	}
	return ""
}

// RoundTrip implements [http.RoundTripper].
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token := t.CurrentToken(ctx)

	r := req.Clone(ctx)
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(r)
	}

	start := time.Now()
	resp, err := t.base().RoundTrip(r)
	if err != nil {
		return nil, err
	}
	t.logger().Debug("api request",
		"method", r.Method, "path", r.URL.Path, "status", resp.StatusCode,
		"id", r.Header.Get(RequestIDHeader), "elapsed", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.expire(token, r.URL.Path)
	}
	return resp, nil
}

// expire applies a 401 for token to the session, or directly to the store when there is
// no session. Requests sent without a token never get here.
func (t *AuthTransport) expire(token, path string) {
	if t.Session != nil {
		if t.Session.Expire(token) {
			t.logger().Warn("token rejected, session cleared", "path", path)
		}
		return
	}
	if t.Store == nil {
		return
	}
	if stored, ok := t.Store.Load(); ok && stored != token {
		return
	}
	if err := t.Store.Clear(); err != nil {
		t.logger().Error("failed to clear token store", "error", err)
	}
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.Default()
}

// ClientOptions configures [NewHTTPClient].
type ClientOptions struct {
	Base      http.RoundTripper
	RateLimit float64 // requests per second, 0 disables
	Burst     int
	Logger    *log.Logger
}

// NewHTTPClient returns a fresh client whose transport is an [AuthTransport] over sess and store.
// Per-call timeouts are applied by [APIService], so the client itself has none.
func NewHTTPClient(sess Session, store tokenstore.Store, opts ClientOptions) (*http.Client, *AuthTransport) {
	t := &AuthTransport{
		Base:    opts.Base,
		Session: sess,
		Store:   store,
		Logger:  opts.Logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		t.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &http.Client{Transport: t}, t
}
