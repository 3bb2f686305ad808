package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/services"
	"github.com/desertthunder/pricewatch/internal/session"
	"github.com/desertthunder/pricewatch/internal/shared"
)

const loginTimeout = services.DefaultTimeout

// Authenticator signs users in and out.
type Authenticator struct {
	api    services.PriceService
	sess   *session.Manager
	logger *log.Logger
	group  singleflight.Group
}

// NewAuthenticator creates an [Authenticator].
func NewAuthenticator(api services.PriceService, sess *session.Manager, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Default()
	}
	return &Authenticator{api: api, sess: sess, logger: logger}
}

// Login signs in with email and password. Identical concurrent submissions share one request.
//
// The shared request is detached from any one caller's cancellation and bounded by
// loginTimeout instead. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// others still receive the result.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", shared.ErrMissingArgument)
	}

	key := "login\x00" + strings.ToLower(email) + "\x00" + password
	ch := a.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		defer cancel()

		resp, err := a.api.Login(ctx, email, password)
		if err != nil {
			return nil, err
		}
		return a.install(ctx, resp)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			a.logger.Debug("shared in-flight login", "email", email)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.User), nil
	}
}

// Register creates an account without signing in.
func (a *Authenticator) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	user, err := a.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	a.logger.Info("registered account", "user", user.DisplayName())
	return user, nil
}

// RegisterWithVerification creates an account using an emailed code, without signing in.
func (a *Authenticator) RegisterWithVerification(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.VerificationCode) == "" {
		return nil, fmt.Errorf("%w: verification code", shared.ErrMissingArgument)
	}
	user, err := a.api.RegisterWithVerification(ctx, req)
	if err != nil {
		return nil, err
	}
	a.logger.Info("registered verified account", "user", user.DisplayName())
	return user, nil
}

// SendVerificationCode requests a registration code for email.
func (a *Authenticator) SendVerificationCode(ctx context.Context, email string) (string, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: email %q", shared.ErrInvalidInput, email)
	}
	return a.api.SendVerificationCode(ctx, email)
}

// Telegram signs in with a chat-platform identity.
func (a *Authenticator) Telegram(ctx context.Context, identity models.TelegramIdentity) (*models.User, error) {
	if identity.TelegramID == 0 {
		return nil, fmt.Errorf("%w: telegram id", shared.ErrMissingArgument)
	}
	resp, err := a.api.Telegram(ctx, identity)
	if err != nil {
		return nil, err
	}
	return a.install(ctx, resp)
}

// CompleteOAuth finishes a redirect login that delivered token: the user is fetched with
// that token and the session is started. A rejected token leaves any existing session alone.
func (a *Authenticator) CompleteOAuth(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty oauth token", shared.ErrAuthFailed)
	}
	user, err := a.api.ResolveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no user for token", shared.ErrAuthFailed)
	}
	a.sess.Login(user, token)
	return user, nil
}

// ExchangeOAuthCode trades an authorization code for a token and starts the session.
func (a *Authenticator) ExchangeOAuthCode(ctx context.Context, provider, code string) (*models.User, error) {
	resp, err := a.api.ExchangeOAuthCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	return a.install(ctx, resp)
}

// Logout ends the session.
func (a *Authenticator) Logout() {
	a.sess.Logout()
}

// install starts the session from a token grant, fetching the user when the grant omits it.
func (a *Authenticator) install(ctx context.Context, resp *models.AuthResponse) (*models.User, error) {
	if resp == nil || resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrAuthFailed)
	}
	if resp.User == nil {
		return a.CompleteOAuth(ctx, resp.AccessToken)
	}
	a.sess.Login(resp.User, resp.AccessToken)
	return resp.User, nil
}

func validateRegistration(req models.RegisterRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: email %q", shared.ErrInvalidInput, req.Email)
	}
	if req.Password == "" {
		return fmt.Errorf("%w: password", shared.ErrMissingArgument)
	}
	return nil
}
