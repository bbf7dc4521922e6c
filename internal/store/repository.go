package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail signals that another user already owns the e-mail address.
	ErrDuplicateEmail = errors.New("email already exists")
)

// DefaultFavoritesLimit caps favorite listings when the caller passes no limit.
const DefaultFavoritesLimit = 100

// User is a registered account.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Restroom is a place persisted from a search. PlaceID is the natural key.
type Restroom struct {
	PlaceID   string
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	// Phone is empty when the provider had no number.
	Phone  string
	Rating *float64
	// DiscoveredBy is nil once the discovering user is deleted.
	DiscoveredBy *uuid.UUID
	CreatedAt    time.Time
}

// Favorite links a user to a restroom.
type Favorite struct {
	UserID    uuid.UUID
	PlaceID   string
	CreatedAt time.Time
}

// BlacklistEntry marks a place as lacking public restroom access.
type BlacklistEntry struct {
	PlaceID    string
	Name       string
	ReportedBy *uuid.UUID
	CreatedAt  time.Time
}

// Repository persists users, restrooms, favorites and blacklist entries.
type Repository interface {
	// CreateUser inserts a user or returns ErrDuplicateEmail.
	CreateUser(ctx context.Context, user User) error
	// GetUser loads a user by id or returns ErrNotFound.
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	// GetUserByEmail loads a user by e-mail or returns ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// UpdateUser replaces name, e-mail and password hash.
	UpdateUser(ctx context.Context, user User) error
	// DeleteUser removes the user and their favorites.
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// SaveRestroom inserts the restroom unless its PlaceID is already stored.
	// It reports whether a row was inserted.
	SaveRestroom(ctx context.Context, restroom Restroom) (bool, error)
	// GetRestroom loads a restroom or returns ErrNotFound.
	GetRestroom(ctx context.Context, placeID string) (Restroom, error)

	// AddFavorite is idempotent. It returns ErrNotFound for an unknown user or restroom.
	AddFavorite(ctx context.Context, fav Favorite) error
	// RemoveFavorite is idempotent.
	RemoveFavorite(ctx context.Context, userID uuid.UUID, placeID string) error
	// ListFavorites returns the user's favorite restrooms, newest first.
	ListFavorites(ctx context.Context, userID uuid.UUID, limit int) ([]Restroom, error)

	// BlacklistRestroom records the entry; repeated reports keep the first one.
	BlacklistRestroom(ctx context.Context, entry BlacklistEntry) error
	// IsBlacklisted reports whether the place has been blacklisted.
	IsBlacklisted(ctx context.Context, placeID string) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}

// NormalizeLimit clamps a listing limit to (0, DefaultFavoritesLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultFavoritesLimit {
		return DefaultFavoritesLimit
	}
	return limit
}
