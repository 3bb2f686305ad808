package services

import (
	"context"

	"github.com/desertthunder/pricewatch/internal/models"
)

// PriceService is the subset of the API used by the auth flows, the exporter and the TUI.
// [*APIService] implements it.
type PriceService interface {
	Me(ctx context.Context) (*models.User, error)
	ResolveUser(ctx context.Context, token string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	RegisterWithVerification(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	SendVerificationCode(ctx context.Context, email string) (string, error)
	Telegram(ctx context.Context, identity models.TelegramIdentity) (*models.AuthResponse, error)
	ExchangeOAuthCode(ctx context.Context, provider, code string) (*models.AuthResponse, error)
	OAuthURL(provider, redirectURI, state string) string

	Product(ctx context.Context, article int64) (*models.Product, error)
	SaveWatch(ctx context.Context, req models.WatchRequest) (*models.WatchResponse, error)
	Trackings(ctx context.Context) ([]models.Tracking, error)
	Tracking(ctx context.Context, id string) (*models.Tracking, error)
	Health(ctx context.Context) error
}

var _ PriceService = (*APIService)(nil)
