package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"
)

// ErrOAuthDenied is sent when the redirect reports a failure.
var ErrOAuthDenied = errors.New("oauth login failed")

// OAuthResult is the outcome of one browser redirect.
type OAuthResult struct {
	Token  string
	UserID string
	Err    error
}

// CodeExchanger trades an authorization code for a bearer token.
type CodeExchanger func(ctx context.Context, code string) (string, error)

// OAuthHandler receives the OAuth redirect exactly once.
//
// Accepted query forms on the success path:
//   - token=...&user_id=... : the service already issued a token
//   - code=... : exchanged through the configured [CodeExchanger]
//   - error=... or message=... : failure
//
// The error path (/oauth/error) always reports failure with its message.
type OAuthHandler struct {
	successPath string
	errorPath   string
	state       string
	exchange    CodeExchanger
	timeout     time.Duration

	resultChan chan OAuthResult
	once       sync.Once
	mu         sync.Mutex
	hit        bool
}

// NewOAuthHandler creates a handler for successPath. When state is non-empty, a redirect
// carrying a different state is rejected; redirects without state are accepted since the
// service does not always echo it. exchange may be nil if code redirects are not expected.
func NewOAuthHandler(successPath, state string, exchange CodeExchanger) *OAuthHandler {
	if successPath == "" {
		successPath = "/oauth/success"
	}
	return &OAuthHandler{
		successPath: successPath,
		errorPath:   "/oauth/error",
		state:       state,
		exchange:    exchange,
		timeout:     30 * time.Second,
		resultChan:  make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.successPath, h.errorPath}
}

// ServeHTTP handles the redirect and publishes its result.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()

	if r.URL.Path == h.errorPath || q.Get("error") != "" {
		msg := q.Get("message")
		if msg == "" {
			msg = q.Get("error")
		}
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s", ErrOAuthDenied, msg))
		return
	}

	if h.state != "" {
		if got := q.Get("state"); got != "" && got != h.state {
			h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: invalid state parameter", ErrOAuthDenied))
			return
		}
	}

	if token := q.Get("token"); token != "" {
		h.succeed(w, OAuthResult{Token: token, UserID: q.Get("user_id")})
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: redirect carried neither token nor code", ErrOAuthDenied))
		return
	}
	if h.exchange == nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("%w: no code exchanger configured", ErrOAuthDenied))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token, err := h.exchange(ctx, code)
	if err != nil {
		h.fail(w, http.StatusBadGateway, fmt.Errorf("token exchange failed: %w", err))
		return
	}
	h.succeed(w, OAuthResult{Token: token})
}

func (h *OAuthHandler) succeed(w http.ResponseWriter, res OAuthResult) {
	h.Send(res)
	renderPage(w, http.StatusOK, "Login successful", "You can close this window and return to the terminal.")
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.Send(OAuthResult{Err: err})
	renderPage(w, status, "Login failed", err.Error())
}

// Send publishes res; only the first call has any effect.
func (h *OAuthHandler) Send(res OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- res
		close(h.resultChan)
	})
}

// Result returns the channel that receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Body}}</p>
    </div>
</body>
</html>
`))

func renderPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page.Execute(w, struct{ Title, Body string }{title, body})
}
