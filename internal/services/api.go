package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
)

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTimeout        = 60 * time.Second
	DefaultProductTimeout = 90 * time.Second
)

// TokenSource reports the token the next request would carry.
type TokenSource interface {
	CurrentToken(ctx context.Context) string
}

// APIService is the typed client for the price-tracking service.
type APIService struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	productTimeout time.Duration
	tokens         TokenSource
}

// APIOption configures an [APIService].
type APIOption func(*APIService)

// WithTimeouts overrides the default and product lookup timeouts. Zero keeps the default.
func WithTimeouts(def, product time.Duration) APIOption {
	return func(a *APIService) {
		if def > 0 {
			a.timeout = def
		}
		if product > 0 {
			a.productTimeout = product
		}
	}
}

// WithTokenSource lets calls that require a login fail before any network traffic.
func WithTokenSource(ts TokenSource) APIOption {
	return func(a *APIService) { a.tokens = ts }
}

// NewAPIService creates a client for baseURL. A nil client uses [http.DefaultClient].
func NewAPIService(baseURL string, client *http.Client, opts ...APIOption) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     client,
		timeout:        DefaultTimeout,
		productTimeout: DefaultProductTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the service root without a trailing slash.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse is a raw response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Me returns the user that owns the current token.
func (a *APIService) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.getJSON(ctx, a.timeout, "/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveUser calls /auth/me with token instead of the session's. It satisfies session.UserResolver.
func (a *APIService) ResolveUser(ctx context.Context, token string) (*models.User, error) {
	return a.Me(WithToken(ctx, token))
}

// Login exchanges email and password for a token. The form field is named username.
func (a *APIService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	resp, err := a.send(ctx, a.timeout, http.MethodPost, "/auth/login",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	return decodeAuth(resp)
}

// Register creates an account. It does not sign in.
func (a *APIService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.VerificationCode = ""
	var user models.User
	if err := a.postJSON(ctx, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RegisterWithVerification creates an account using a code sent by [APIService.SendVerificationCode].
func (a *APIService) RegisterWithVerification(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if req.VerificationCode == "" {
		return nil, fmt.Errorf("%w: verification code", shared.ErrMissingArgument)
	}
	var user models.User
	if err := a.postJSON(ctx, "/auth/register-with-verification", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendVerificationCode asks the service to email a registration code and returns its message.
func (a *APIService) SendVerificationCode(ctx context.Context, email string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := a.postJSON(ctx, "/auth/send-verification-code", map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Telegram signs in with a chat-platform identity.
func (a *APIService) Telegram(ctx context.Context, identity models.TelegramIdentity) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := a.postJSON(ctx, "/auth/telegram", identity, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", shared.ErrAuthFailed)
	}
	return &out, nil
}

// ExchangeOAuthCode trades an authorization code for a token.
func (a *APIService) ExchangeOAuthCode(ctx context.Context, provider, code string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	path := "/oauth/" + url.PathEscape(provider) + "/callback"
	if err := a.postJSON(ctx, path, map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", shared.ErrAuthFailed)
	}
	return &out, nil
}

// OAuthURL returns the browser entry point for provider.
func (a *APIService) OAuthURL(provider, redirectURI, state string) string {
	q := url.Values{}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	if state != "" {
		q.Set("state", state)
	}

	u := a.baseURL + "/oauth/" + url.PathEscape(provider)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Product looks up a marketplace product using the extended product timeout.
func (a *APIService) Product(ctx context.Context, article int64) (*models.Product, error) {
	if article <= 0 {
		return nil, fmt.Errorf("%w: article must be a positive integer", shared.ErrInvalidArgument)
	}

	var p models.Product
	if err := a.getJSON(ctx, a.productTimeout, "/products/"+strconv.FormatInt(article, 10), &p); err != nil {
		return nil, err
	}
	if p.Article == 0 {
		p.Article = article
	}
	return &p, nil
}

// SaveWatch saves a watch on a product. It fails with [shared.ErrNotAuthenticated]
// without contacting the service when no token is available.
func (a *APIService) SaveWatch(ctx context.Context, req models.WatchRequest) (*models.WatchResponse, error) {
	if a.tokens != nil && a.tokens.CurrentToken(ctx) == "" {
		return nil, shared.ErrNotAuthenticated
	}
	if req.TargetPrice <= 0 {
		return nil, fmt.Errorf("%w: target price must be positive", shared.ErrInvalidArgument)
	}
	if req.Results == nil {
		req.Results = []models.Product{}
	}

	var out models.WatchResponse
	if err := a.postJSON(ctx, "/api/v1/save-parsing-results/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trackings lists the signed-in user's watches.
func (a *APIService) Trackings(ctx context.Context) ([]models.Tracking, error) {
	var out []models.Tracking
	if err := a.getJSON(ctx, a.timeout, "/api/v1/user-trackings/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tracking returns one watch including its price history.
func (a *APIService) Tracking(ctx context.Context, id string) (*models.Tracking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: tracking id", shared.ErrMissingArgument)
	}
	var out models.Tracking
	if err := a.getJSON(ctx, a.timeout, "/api/v1/tracking/"+url.PathEscape(id)+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the service is reachable.
func (a *APIService) Health(ctx context.Context) error {
	_, err := a.send(ctx, a.timeout, http.MethodGet, "/health", "", nil)
	return err
}

func (a *APIService) getJSON(ctx context.Context, timeout time.Duration, path string, out any) error {
	resp, err := a.send(ctx, timeout, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

func (a *APIService) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := a.send(ctx, a.timeout, http.MethodPost, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// send performs the request and returns the response only for 2xx statuses.
func (a *APIService) send(ctx context.Context, timeout time.Duration, method, path, contentType string, body io.Reader) (*APIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(apiResp)
	}
	return apiResp, nil
}

func transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
}

func decodeBody(resp *APIResponse, out any) error {
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

func decodeAuth(resp *APIResponse) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := decodeBody(resp, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", shared.ErrAuthFailed)
	}
	return &out, nil
}

type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseAPIError reads FastAPI error bodies: {"detail": "..."} or {"detail": [{"loc": [...], "msg": "..."}]}.
func parseAPIError(resp *APIResponse) *shared.APIError {
	apiErr := &shared.APIError{Status: resp.StatusCode}

	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		apiErr.Detail = strings.TrimSpace(string(resp.Body))
		if apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	var detail string
	var fields []fieldError
	switch {
	case json.Unmarshal(body.Detail, &detail) == nil && detail != "":
		apiErr.Detail = detail
	case json.Unmarshal(body.Detail, &fields) == nil && len(fields) > 0:
		apiErr.Fields = make(map[string]string, len(fields))
		for _, f := range fields {
			apiErr.Fields[fieldName(f.Loc)] = f.Msg
		}
	default:
		apiErr.Detail = body.Message
	}

	if apiErr.Detail == "" && len(apiErr.Fields) == 0 {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// fieldName joins a FastAPI loc path, dropping the leading "body"/"query" segment.
func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		s := fmt.Sprint(p)
		if i == 0 && (s == "body" || s == "query" || s == "path") && len(loc) > 1 {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}
