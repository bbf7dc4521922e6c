// Package memory provides an in-memory store.Repository for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

// Store keeps every table in maps guarded by one lock.
type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]store.User
	emails    map[string]uuid.UUID
	restrooms map[string]store.Restroom
	favorites map[uuid.UUID]map[string]store.Favorite
	blacklist map[string]store.BlacklistEntry
}

var _ store.Repository = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:     make(map[uuid.UUID]store.User),
		emails:    make(map[string]uuid.UUID),
		restrooms: make(map[string]store.Restroom),
		favorites: make(map[uuid.UUID]map[string]store.Favorite),
		blacklist: make(map[string]store.BlacklistEntry),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new user.
func (s *Store) CreateUser(_ context.Context, user store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(user.Email)
	if _, exists := s.emails[key]; exists {
		return store.ErrDuplicateEmail
	}
	s.users[user.ID] = user
	s.emails[key] = user.ID
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(_ context.Context, id uuid.UUID) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail fetches a user by e-mail, ignoring case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[emailKey(email)]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

// UpdateUser replaces the mutable user fields.
func (s *Store) UpdateUser(_ context.Context, user store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	oldKey, newKey := emailKey(existing.Email), emailKey(user.Email)
	if oldKey != newKey {
		if _, taken := s.emails[newKey]; taken {
			return store.ErrDuplicateEmail
		}
		delete(s.emails, oldKey)
		s.emails[newKey] = user.ID
	}
	existing.Name = user.Name
	existing.Email = user.Email
	existing.PasswordHash = user.PasswordHash
	s.users[user.ID] = existing
	return nil
}

// DeleteUser removes the user, their favorites, and clears discovered_by links.
func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	delete(s.emails, emailKey(user.Email))
	delete(s.favorites, id)
	for placeID, r := range s.restrooms {
		if r.DiscoveredBy != nil && *r.DiscoveredBy == id {
			r.DiscoveredBy = nil
			s.restrooms[placeID] = r
		}
	}
	return nil
}

// SaveRestroom inserts the restroom if its place id is new.
func (s *Store) SaveRestroom(_ context.Context, restroom store.Restroom) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.restrooms[restroom.PlaceID]; exists {
		return false, nil
	}
	s.restrooms[restroom.PlaceID] = restroom
	return true, nil
}

// GetRestroom fetches a restroom by place id.
func (s *Store) GetRestroom(_ context.Context, placeID string) (store.Restroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restrooms[placeID]
	if !ok {
		return store.Restroom{}, store.ErrNotFound
	}
	return r, nil
}

// AddFavorite links the user to the restroom.
func (s *Store) AddFavorite(_ context.Context, fav store.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[fav.UserID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.restrooms[fav.PlaceID]; !ok {
		return store.ErrNotFound
	}
	favs := s.favorites[fav.UserID]
	if favs == nil {
		favs = make(map[string]store.Favorite)
		s.favorites[fav.UserID] = favs
	}
	if _, exists := favs[fav.PlaceID]; !exists {
		favs[fav.PlaceID] = fav
	}
	return nil
}

// RemoveFavorite unlinks the user from the restroom.
func (s *Store) RemoveFavorite(_ context.Context, userID uuid.UUID, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.favorites[userID], placeID)
	return nil
}

// ListFavorites returns up to limit favorite restrooms, newest first.
func (s *Store) ListFavorites(_ context.Context, userID uuid.UUID, limit int) ([]store.Restroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	favs := make([]store.Favorite, 0, len(s.favorites[userID]))
	for _, f := range s.favorites[userID] {
		favs = append(favs, f)
	}
	sort.Slice(favs, func(i, j int) bool {
		if favs[i].CreatedAt.Equal(favs[j].CreatedAt) {
			return favs[i].PlaceID < favs[j].PlaceID
		}
		return favs[i].CreatedAt.After(favs[j].CreatedAt)
	})
	limit = store.NormalizeLimit(limit)
	out := make([]store.Restroom, 0, min(limit, len(favs)))
	for _, f := range favs {
		if len(out) == limit {
			break
		}
		out = append(out, s.restrooms[f.PlaceID])
	}
	return out, nil
}

// BlacklistRestroom records the first report for a place.
func (s *Store) BlacklistRestroom(_ context.Context, entry store.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blacklist[entry.PlaceID]; !exists {
		s.blacklist[entry.PlaceID] = entry
	}
	return nil
}

// IsBlacklisted reports whether the place was blacklisted.
func (s *Store) IsBlacklisted(_ context.Context, placeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[placeID]
	return ok, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
