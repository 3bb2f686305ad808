// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/pricewatch/internal/models"
)

// MockPriceService is a test double for services.PriceService.
//
// Fields left nil fall back to zero values. Calls are counted per method name.
type MockPriceService struct {
	mu    sync.Mutex
	calls map[string]int

	MeFunc          func(ctx context.Context) (*models.User, error)
	ResolveUserFunc func(ctx context.Context, token string) (*models.User, error)
	LoginFunc       func(ctx context.Context, email, password string) (*models.AuthResponse, error)
	RegisterFunc    func(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	SendCodeFunc    func(ctx context.Context, email string) (string, error)
	TelegramFunc    func(ctx context.Context, identity models.TelegramIdentity) (*models.AuthResponse, error)
	ExchangeFunc    func(ctx context.Context, provider, code string) (*models.AuthResponse, error)
	ProductFunc     func(ctx context.Context, article int64) (*models.Product, error)
	SaveWatchFunc   func(ctx context.Context, req models.WatchRequest) (*models.WatchResponse, error)
	TrackingsFunc   func(ctx context.Context) ([]models.Tracking, error)
	TrackingFunc    func(ctx context.Context, id string) (*models.Tracking, error)
	HealthFunc      func(ctx context.Context) error
	OAuthBase       string
}

func (m *MockPriceService) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times method name was invoked.
func (m *MockPriceService) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockPriceService) Me(ctx context.Context) (*models.User, error) {
	m.record("Me")
	if m.MeFunc != nil {
		return m.MeFunc(ctx)
	}
	return nil, nil
}

func (m *MockPriceService) ResolveUser(ctx context.Context, token string) (*models.User, error) {
	m.record("ResolveUser")
	if m.ResolveUserFunc != nil {
		return m.ResolveUserFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockPriceService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, nil
}

func (m *MockPriceService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return &models.User{Username: req.Username, Email: req.Email}, nil
}

func (m *MockPriceService) RegisterWithVerification(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	m.record("RegisterWithVerification")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return &models.User{Username: req.Username, Email: req.Email}, nil
}

func (m *MockPriceService) SendVerificationCode(ctx context.Context, email string) (string, error) {
	m.record("SendVerificationCode")
	if m.SendCodeFunc != nil {
		return m.SendCodeFunc(ctx, email)
	}
	return "", nil
}

func (m *MockPriceService) Telegram(ctx context.Context, identity models.TelegramIdentity) (*models.AuthResponse, error) {
	m.record("Telegram")
	if m.TelegramFunc != nil {
		return m.TelegramFunc(ctx, identity)
	}
	return nil, nil
}

func (m *MockPriceService) ExchangeOAuthCode(ctx context.Context, provider, code string) (*models.AuthResponse, error) {
	m.record("ExchangeOAuthCode")
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, provider, code)
	}
	return nil, nil
}

func (m *MockPriceService) OAuthURL(provider, redirectURI, state string) string {
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return m.OAuthBase + "/oauth/" + provider + "?" + q.Encode()
}

func (m *MockPriceService) Product(ctx context.Context, article int64) (*models.Product, error) {
	m.record("Product")
	if m.ProductFunc != nil {
		return m.ProductFunc(ctx, article)
	}
	return nil, nil
}

func (m *MockPriceService) SaveWatch(ctx context.Context, req models.WatchRequest) (*models.WatchResponse, error) {
	m.record("SaveWatch")
	if m.SaveWatchFunc != nil {
		return m.SaveWatchFunc(ctx, req)
	}
	return &models.WatchResponse{}, nil
}

func (m *MockPriceService) Trackings(ctx context.Context) ([]models.Tracking, error) {
	m.record("Trackings")
	if m.TrackingsFunc != nil {
		return m.TrackingsFunc(ctx)
	}
	return nil, nil
}

func (m *MockPriceService) Tracking(ctx context.Context, id string) (*models.Tracking, error) {
	m.record("Tracking")
	if m.TrackingFunc != nil {
		return m.TrackingFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPriceService) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper returns a canned response and records the last request
type MockRoundTripper struct {
	response *http.Response
	err      error
	LastReq  *http.Request
	Count    int
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.LastReq = req
	m.Count++
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// Response builds an [http.Response] with the given status and body.
func Response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
