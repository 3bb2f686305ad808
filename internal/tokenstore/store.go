package tokenstore

import (
	"github.com/desertthunder/pricewatch/internal/models"
)

// Keys of the persisted session record.
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
)

// Store is a single-slot token store.
type Store interface {
	// Save writes token, replacing any previous one. An empty token clears the slot.
	Save(token string) error
	// Load returns the stored token, or false when none is stored or it cannot be read.
	Load() (string, bool)
	// Clear removes the token and the user snapshot.
	Clear() error
	// SaveUser stores a snapshot of user; nil removes it.
	SaveUser(user *models.User) error
	// LoadUser returns the stored user snapshot, if any.
	LoadUser() (*models.User, bool)
}
