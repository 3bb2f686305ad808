package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/session"
	"github.com/desertthunder/pricewatch/internal/shared"
	tu "github.com/desertthunder/pricewatch/internal/testing"
	"github.com/desertthunder/pricewatch/internal/tokenstore"
)

func setup(t *testing.T, api *tu.MockPriceService) (*Authenticator, *session.Manager, *tokenstore.MemoryStore) {
	t.Helper()
	logger := log.New(&bytes.Buffer{})
	store := tokenstore.NewMemoryStore()
	sess := session.NewManager(store, session.WithLogger(logger))
	return NewAuthenticator(api, sess, logger), sess, store
}

func TestAuthenticator(t *testing.T) {
	t.Run("Login", func(t *testing.T) {
		api := &tu.MockPriceService{
			LoginFunc: func(_ context.Context, email, password string) (*models.AuthResponse, error) {
				return &models.AuthResponse{AccessToken: "tok2", User: &models.User{ID: 2, Username: "ann", Email: email}}, nil
			},
		}
		a, sess, store := setup(t, api)

		user, err := a.Login(context.Background(), " ann@example.com ", "secret")
		require.NoError(t, err)
		assert.Equal(t, "ann", user.Username)
		assert.True(t, sess.IsAuthenticated())
		tok, _ := store.Load()
		assert.Equal(t, "tok2", tok)
	})

	t.Run("Login Without User Fetches Me", func(t *testing.T) {
		api := &tu.MockPriceService{
			LoginFunc: func(context.Context, string, string) (*models.AuthResponse, error) {
				return &models.AuthResponse{AccessToken: "tok"}, nil
			},
			ResolveUserFunc: func(_ context.Context, token string) (*models.User, error) {
				assert.Equal(t, "tok", token)
				return &models.User{ID: 5, Username: "eve"}, nil
			},
		}
		a, sess, _ := setup(t, api)

		_, err := a.Login(context.Background(), "eve@example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, 5, sess.User().ID)
	})

	t.Run("Login Failure Leaves Session", func(t *testing.T) {
		api := &tu.MockPriceService{
			LoginFunc: func(context.Context, string, string) (*models.AuthResponse, error) {
				return nil, &shared.APIError{Status: http.StatusUnauthorized, Detail: "Incorrect username or password"}
			},
		}
		a, sess, _ := setup(t, api)

		_, err := a.Login(context.Background(), "ann@example.com", "bad")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("Login Requires Fields", func(t *testing.T) {
		a, _, _ := setup(t, &tu.MockPriceService{})
		_, err := a.Login(context.Background(), "", "pw")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("Concurrent Identical Logins Share One Request", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		api := &tu.MockPriceService{
			LoginFunc: func(context.Context, string, string) (*models.AuthResponse, error) {
				once.Do(func() { close(started) })
				<-release
				return &models.AuthResponse{AccessToken: "tok", User: &models.User{ID: 1}}, nil
			},
		}
		a, _, _ := setup(t, api)

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Login(context.Background(), "ann@example.com", "pw")
			errs <- err
		}()
		<-started

		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := a.Login(context.Background(), "ANN@example.com", "pw")
				errs <- err
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, 1, api.Calls("Login"))
	})

	t.Run("Cancelled Caller Does Not Fail Joined Login", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		api := &tu.MockPriceService{
			LoginFunc: func(ctx context.Context, _, _ string) (*models.AuthResponse, error) {
				once.Do(func() { close(started) })
				select {
				case <-release:
					return &models.AuthResponse{AccessToken: "tok", User: &models.User{ID: 1, Username: "ann"}}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}
		a, sess, _ := setup(t, api)

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			_, err := a.Login(ctx, "ann@example.com", "pw")
			first <- err
		}()
		<-started

		second := make(chan error, 1)
		go func() {
			_, err := a.Login(context.Background(), "ann@example.com", "pw")
			second <- err
		}()
		time.Sleep(50 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-first, context.Canceled)

		close(release)
		require.NoError(t, <-second)
		assert.True(t, sess.IsAuthenticated())
		assert.Equal(t, 1, api.Calls("Login"))
	})

	t.Run("Register Does Not Sign In", func(t *testing.T) {
		a, sess, _ := setup(t, &tu.MockPriceService{})

		user, err := a.Register(context.Background(), models.RegisterRequest{
			Username: "ann", Email: "ann@example.com", Password: "secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "ann", user.Username)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("Register Validation", func(t *testing.T) {
		a, _, _ := setup(t, &tu.MockPriceService{})

		_, err := a.Register(context.Background(), models.RegisterRequest{Email: "ann@example.com", Password: "x"})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)

		_, err = a.Register(context.Background(), models.RegisterRequest{Username: "ann", Email: "nope", Password: "x"})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = a.RegisterWithVerification(context.Background(), models.RegisterRequest{
			Username: "ann", Email: "ann@example.com", Password: "x",
		})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("SendVerificationCode", func(t *testing.T) {
		api := &tu.MockPriceService{
			SendCodeFunc: func(_ context.Context, email string) (string, error) {
				return "code sent to " + email, nil
			},
		}
		a, _, _ := setup(t, api)

		msg, err := a.SendVerificationCode(context.Background(), "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, "code sent to ann@example.com", msg)

		_, err = a.SendVerificationCode(context.Background(), "bad")
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("Telegram", func(t *testing.T) {
		api := &tu.MockPriceService{
			TelegramFunc: func(_ context.Context, id models.TelegramIdentity) (*models.AuthResponse, error) {
				return &models.AuthResponse{AccessToken: "tg", User: &models.User{ID: 9, Username: id.Username}}, nil
			},
		}
		a, sess, _ := setup(t, api)

		_, err := a.Telegram(context.Background(), models.TelegramIdentity{})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)

		user, err := a.Telegram(context.Background(), models.TelegramIdentity{TelegramID: 42, Username: "tguser"})
		require.NoError(t, err)
		assert.Equal(t, "tguser", user.Username)
		assert.Equal(t, "tg", sess.Token())
	})

	t.Run("CompleteOAuth Rejected Token Keeps Session", func(t *testing.T) {
		api := &tu.MockPriceService{
			ResolveUserFunc: func(context.Context, string) (*models.User, error) {
				return nil, &shared.APIError{Status: http.StatusUnauthorized}
			},
		}
		a, sess, _ := setup(t, api)
		sess.Login(&models.User{ID: 1, Username: "bob"}, "existing")

		_, err := a.CompleteOAuth(context.Background(), "bad")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
		assert.Equal(t, "existing", sess.Token())
	})

	t.Run("ExchangeOAuthCode", func(t *testing.T) {
		api := &tu.MockPriceService{
			ExchangeFunc: func(_ context.Context, provider, code string) (*models.AuthResponse, error) {
				assert.Equal(t, "google", provider)
				assert.Equal(t, "abc", code)
				return &models.AuthResponse{AccessToken: "oauth"}, nil
			},
			ResolveUserFunc: func(context.Context, string) (*models.User, error) {
				return &models.User{ID: 3, Username: "gina"}, nil
			},
		}
		a, sess, _ := setup(t, api)

		user, err := a.ExchangeOAuthCode(context.Background(), "google", "abc")
		require.NoError(t, err)
		assert.Equal(t, "gina", user.Username)
		assert.Equal(t, "oauth", sess.Token())
	})

	t.Run("Logout", func(t *testing.T) {
		a, sess, store := setup(t, &tu.MockPriceService{})
		sess.Login(&models.User{ID: 1}, "t")

		a.Logout()
		assert.False(t, sess.IsAuthenticated())
		_, ok := store.Load()
		assert.False(t, ok)
	})
}

func TestOAuthFlow(t *testing.T) {
	cfg := shared.OAuthConfig{
		Provider:     "google",
		CallbackHost: "127.0.0.1",
		CallbackPort: 0,
		CallbackPath: "/oauth/success",
		WaitTimeout:  shared.Duration{Duration: 2 * time.Second},
	}

	redirectWith := func(t *testing.T, extra url.Values) func(string) error {
		return func(authURL string) error {
			u, err := url.Parse(authURL)
			require.NoError(t, err)
			assert.Equal(t, "/oauth/google", u.Path)

			q := u.Query()
			extra.Set("state", q.Get("state"))
			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?" + extra.Encode())
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}
	}

	t.Run("Token Redirect", func(t *testing.T) {
		api := &tu.MockPriceService{
			OAuthBase: "http://api.test",
			ResolveUserFunc: func(_ context.Context, token string) (*models.User, error) {
				assert.Equal(t, "from-redirect", token)
				return &models.User{ID: 7, Username: "olga"}, nil
			},
		}
		a, sess, _ := setup(t, api)

		var out bytes.Buffer
		flow := &OAuthFlow{
			Auth: a, API: api, Config: cfg, Out: &out,
			Open:   redirectWith(t, url.Values{"token": {"from-redirect"}, "user_id": {"7"}}),
			Logger: log.New(&bytes.Buffer{}),
		}

		user, err := flow.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "olga", user.Username)
		assert.True(t, sess.IsAuthenticated())
		assert.Contains(t, out.String(), "http://api.test/oauth/google")
	})

	t.Run("Code Redirect", func(t *testing.T) {
		api := &tu.MockPriceService{
			ExchangeFunc: func(context.Context, string, string) (*models.AuthResponse, error) {
				return &models.AuthResponse{AccessToken: "exchanged"}, nil
			},
			ResolveUserFunc: func(context.Context, string) (*models.User, error) {
				return &models.User{ID: 8}, nil
			},
		}
		a, sess, _ := setup(t, api)
		flow := &OAuthFlow{Auth: a, API: api, Config: cfg, Open: redirectWith(t, url.Values{"code": {"c0de"}})}

		_, err := flow.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "exchanged", sess.Token())
	})

	t.Run("Error Redirect", func(t *testing.T) {
		api := &tu.MockPriceService{}
		a, sess, _ := setup(t, api)
		flow := &OAuthFlow{Auth: a, API: api, Config: cfg, Open: redirectWith(t, url.Values{"error": {"access_denied"}})}

		_, err := flow.Run(context.Background())
		assert.ErrorIs(t, err, shared.ErrAuthFailed)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("Timeout", func(t *testing.T) {
		api := &tu.MockPriceService{}
		a, _, _ := setup(t, api)
		short := cfg
		short.WaitTimeout = shared.Duration{Duration: 50 * time.Millisecond}
		flow := &OAuthFlow{Auth: a, API: api, Config: short, Open: func(string) error { return errors.New("no browser") }}

		_, err := flow.Run(context.Background())
		assert.ErrorIs(t, err, shared.ErrTimeout)
	})
}

func TestInspectToken(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ann@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)

	info, err := InspectToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", info.Subject)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(exp.Add(-time.Hour)))
	assert.True(t, info.Expired(exp.Add(time.Hour)))

	_, err = InspectToken("opaque-token")
	assert.Error(t, err)
}

func TestPrompter(t *testing.T) {
	t.Run("Line", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader("  ann@example.com \n"), &out)

		got, err := p.Line("Email")
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", got)
		assert.Equal(t, "Email: ", out.String())
	})

	t.Run("Password Falls Back Without Terminal", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("secret"), &bytes.Buffer{})
		got, err := p.Password("Password")
		require.NoError(t, err)
		assert.Equal(t, "secret", got)
	})

	t.Run("Password From Terminal", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader(""), &out)
		p.fd = 0
		p.isTerminal = func(int) bool { return true }
		p.readPassword = func(int) ([]byte, error) { return []byte("hidden"), nil }

		got, err := p.Password("Password")
		require.NoError(t, err)
		assert.Equal(t, "hidden", got)
		assert.Equal(t, "Password: \n", out.String())
	})

	t.Run("Confirm", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("Y\nno\n"), &bytes.Buffer{})
		yes, err := p.Confirm("Continue")
		require.NoError(t, err)
		assert.True(t, yes)

		no, err := p.Confirm("Continue")
		require.NoError(t, err)
		assert.False(t, no)
	})
}
