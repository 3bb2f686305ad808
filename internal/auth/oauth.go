package auth

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/server"
	"github.com/desertthunder/pricewatch/internal/services"
	"github.com/desertthunder/pricewatch/internal/shared"
)

// OAuthFlow runs a browser redirect login against a local callback server.
type OAuthFlow struct {
	Auth   *Authenticator
	API    services.PriceService
	Config shared.OAuthConfig
	Open   shared.BrowserOpener
	Out    io.Writer
	Logger *log.Logger
}

// Run starts the callback server, sends the user to the provider and waits for the
// redirect, at most Config.WaitTimeout. The callback server is always shut down.
func (f *OAuthFlow) Run(ctx context.Context) (*models.User, error) {
	logger := f.Logger
	if logger == nil {
		logger = log.Default()
	}
	provider := f.Config.Provider
	if provider == "" {
		provider = "google"
	}

	state := uuid.NewString()
	handler := server.NewOAuthHandler(f.Config.CallbackPath, state, func(ctx context.Context, code string) (string, error) {
		resp, err := f.API.ExchangeOAuthCode(ctx, provider, code)
		if err != nil {
			return "", err
		}
		return resp.AccessToken, nil
	})

	router := server.NewBasicRouter()
	router.Use(server.Recover(logger), server.Logging(logger))
	router.Handler(handler)

	srv, err := server.Listen(f.Config.CallbackAddr(), router, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback server shutdown", "error", err)
		}
	}()

	callback := fmt.Sprintf("http://%s:%d%s", f.Config.CallbackHost, srv.Port(), handler.Routes()[0])
	authURL := f.API.OAuthURL(provider, callback, state)

	if f.Out != nil {
		fmt.Fprintf(f.Out, "Opening %s login in your browser.\nIf it does not open, visit:\n  %s\n", provider, authURL)
	}
	if f.Open != nil {
		if err := f.Open(authURL); err != nil {
			logger.Warn("could not open browser", "error", err)
		}
	}

	wait := f.Config.WaitTimeout.Duration
	if wait <= 0 {
		wait = 3 * time.Minute
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-handler.Result():
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, res.Err)
		}
		logger.Debug("oauth redirect received", "user_id", res.UserID)
		return f.Auth.CompleteOAuth(ctx, res.Token)
	case <-timer.C:
		return nil, fmt.Errorf("%w: no oauth redirect within %s", shared.ErrTimeout, wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
