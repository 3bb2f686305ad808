package models

import (
	"strconv"
	"strings"
	"time"
)

// User is the account record returned by the service.
type User struct {
	ID               int        `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email,omitempty"`
	TelegramChatID   *int64     `json:"telegram_chat_id,omitempty"`
	SubscriptionTier string     `json:"subscription_tier,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// DisplayName returns the username, falling back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// AuthResponse is the token grant returned by login, Telegram and OAuth code exchange.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// RegisterRequest is the registration payload. VerificationCode is only sent
// to /auth/register-with-verification.
type RegisterRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	VerificationCode string `json:"verification_code,omitempty"`
}

// TelegramIdentity is the chat-platform identity posted to /auth/telegram.
type TelegramIdentity struct {
	TelegramID  int64  `json:"telegram_id"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

// Product is the marketplace product summary.
type Product struct {
	Article       int64   `json:"article,omitempty"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Brand         string  `json:"brand,omitempty"`
	Rating        float64 `json:"rating"`
	FeedbackCount int     `json:"feedback_count"`
}

// WatchRequest saves a watch on a product with a target price.
type WatchRequest struct {
	Query       string    `json:"query"`
	Results     []Product `json:"results"`
	TargetPrice float64   `json:"target_price"`
	CustomName  string    `json:"custom_name,omitempty"`
}

// WatchResponse acknowledges a saved watch.
type WatchResponse struct {
	Message    string `json:"message"`
	TrackingID string `json:"tracking_id"`
}

// PricePoint is one observation in a watch's history.
type PricePoint struct {
	Price        float64   `json:"price"`
	Rating       float64   `json:"rating"`
	CommentCount int       `json:"comment_count"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Tracking is a saved watch.
type Tracking struct {
	ID           string       `json:"id"`
	WBItemID     string       `json:"wb_item_id"`
	CustomName   string       `json:"custom_name,omitempty"`
	DesiredPrice float64      `json:"desired_price"`
	MinRating    float64      `json:"min_rating,omitempty"`
	MinComment   int          `json:"min_comment,omitempty"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	PriceHistory []PricePoint `json:"price_history,omitempty"`
}

// Title returns the custom name, or the marketplace article when none was set.
func (t Tracking) Title() string {
	if name := strings.TrimSpace(t.CustomName); name != "" {
		return name
	}
	return "Article " + t.WBItemID
}

// LatestPrice returns the most recent observed price.
func (t Tracking) LatestPrice() (float64, bool) {
	var (
		latest PricePoint
		found  bool
	)
	for _, p := range t.PriceHistory {
		if !found || p.CheckedAt.After(latest.CheckedAt) {
			latest, found = p, true
		}
	}
	return latest.Price, found
}

// ParseArticle validates a marketplace article number.
func ParseArticle(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
