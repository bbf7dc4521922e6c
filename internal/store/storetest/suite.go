// Package storetest holds a behavioural test suite every store.Repository
// implementation is expected to pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) store.Repository

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, newRepo(t)) })
	t.Run("restrooms", func(t *testing.T) { testRestrooms(t, newRepo(t)) })
	t.Run("favorites", func(t *testing.T) { testFavorites(t, newRepo(t)) })
	t.Run("delete user", func(t *testing.T) { testDeleteUser(t, newRepo(t)) })
	t.Run("blacklist", func(t *testing.T) { testBlacklist(t, newRepo(t)) })
}

// NewUser builds a user with a fresh v7 id.
func NewUser(t *testing.T, name, email string) store.User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return store.User{ID: id, Name: name, Email: email, PasswordHash: "hash-" + name, CreatedAt: base}
}

// NewRestroom builds a restroom discovered by the given user.
func NewRestroom(placeID string, discoveredBy *uuid.UUID) store.Restroom {
	rating := 4.5
	return store.Restroom{
		PlaceID:      placeID,
		Name:         "Place " + placeID,
		Address:      placeID + " Main St",
		Latitude:     40.75,
		Longitude:    -73.99,
		Phone:        "(212) 555-0100",
		Rating:       &rating,
		DiscoveredBy: discoveredBy,
		CreatedAt:    base,
	}
}

func testUsers(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := NewUser(t, "alice", "alice@example.com")

	require.NoError(t, repo.CreateUser(ctx, alice))
	require.ErrorIs(t, repo.CreateUser(ctx, NewUser(t, "alice2", "alice@example.com")), store.ErrDuplicateEmail)

	got, err := repo.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Name, got.Name)
	require.Equal(t, alice.Email, got.Email)
	require.Equal(t, alice.PasswordHash, got.PasswordHash)

	got, err = repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)

	_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetUser(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	bob := NewUser(t, "bob", "bob@example.com")
	require.NoError(t, repo.CreateUser(ctx, bob))

	alice.Name = "Alice A."
	alice.Email = "alice.a@example.com"
	require.NoError(t, repo.UpdateUser(ctx, alice))
	got, err = repo.GetUserByEmail(ctx, "alice.a@example.com")
	require.NoError(t, err)
	require.Equal(t, "Alice A.", got.Name)
	_, err = repo.GetUserByEmail(ctx, "alice@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	alice.Email = bob.Email
	require.ErrorIs(t, repo.UpdateUser(ctx, alice), store.ErrDuplicateEmail)

	require.ErrorIs(t, repo.UpdateUser(ctx, NewUser(t, "ghost", "ghost@example.com")), store.ErrNotFound)
}

func testRestrooms(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := NewUser(t, "alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, alice))

	r := NewRestroom("p1", &alice.ID)
	inserted, err := repo.SaveRestroom(ctx, r)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := r
	dup.Name = "Renamed"
	inserted, err = repo.SaveRestroom(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted, "repeated saves must not duplicate or overwrite")

	got, err := repo.GetRestroom(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "Place p1", got.Name)
	require.Equal(t, r.Address, got.Address)
	require.InDelta(t, r.Latitude, got.Latitude, 1e-9)
	require.InDelta(t, r.Longitude, got.Longitude, 1e-9)
	require.Equal(t, r.Phone, got.Phone)
	require.NotNil(t, got.Rating)
	require.InDelta(t, 4.5, *got.Rating, 1e-9)
	require.NotNil(t, got.DiscoveredBy)
	require.Equal(t, alice.ID, *got.DiscoveredBy)

	bare := NewRestroom("p2", nil)
	bare.Rating = nil
	bare.Phone = ""
	_, err = repo.SaveRestroom(ctx, bare)
	require.NoError(t, err)
	got, err = repo.GetRestroom(ctx, "p2")
	require.NoError(t, err)
	require.Nil(t, got.Rating)
	require.Empty(t, got.Phone)
	require.Nil(t, got.DiscoveredBy)

	_, err = repo.GetRestroom(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testFavorites(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := NewUser(t, "alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, alice))
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := repo.SaveRestroom(ctx, NewRestroom(id, nil))
		require.NoError(t, err)
	}

	for i, id := range []string{"p1", "p2", "p3"} {
		fav := store.Favorite{UserID: alice.ID, PlaceID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.AddFavorite(ctx, fav))
	}
	require.NoError(t, repo.AddFavorite(ctx, store.Favorite{UserID: alice.ID, PlaceID: "p1", CreatedAt: base.Add(time.Hour)}))

	favs, err := repo.ListFavorites(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2", "p1"}, placeIDs(favs))

	favs, err = repo.ListFavorites(ctx, alice.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2"}, placeIDs(favs))

	require.ErrorIs(t, repo.AddFavorite(ctx, store.Favorite{UserID: alice.ID, PlaceID: "missing", CreatedAt: base}), store.ErrNotFound)
	require.ErrorIs(t, repo.AddFavorite(ctx, store.Favorite{UserID: uuid.New(), PlaceID: "p1", CreatedAt: base}), store.ErrNotFound)

	require.NoError(t, repo.RemoveFavorite(ctx, alice.ID, "p2"))
	require.NoError(t, repo.RemoveFavorite(ctx, alice.ID, "p2"))
	favs, err = repo.ListFavorites(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p1"}, placeIDs(favs))

	favs, err = repo.ListFavorites(ctx, uuid.New(), 0)
	require.NoError(t, err)
	require.Empty(t, favs)
}

func testDeleteUser(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := NewUser(t, "alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, alice))
	_, err := repo.SaveRestroom(ctx, NewRestroom("p1", &alice.ID))
	require.NoError(t, err)
	require.NoError(t, repo.AddFavorite(ctx, store.Favorite{UserID: alice.ID, PlaceID: "p1", CreatedAt: base}))

	require.NoError(t, repo.DeleteUser(ctx, alice.ID))
	require.ErrorIs(t, repo.DeleteUser(ctx, alice.ID), store.ErrNotFound)

	_, err = repo.GetUser(ctx, alice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	favs, err := repo.ListFavorites(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Empty(t, favs)

	r, err := repo.GetRestroom(ctx, "p1")
	require.NoError(t, err, "restrooms outlive their discoverer")
	require.Nil(t, r.DiscoveredBy)

	require.NoError(t, repo.CreateUser(ctx, NewUser(t, "alice", "alice@example.com")), "e-mail is free again")
}

func testBlacklist(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	alice := NewUser(t, "alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, alice))

	listed, err := repo.IsBlacklisted(ctx, "p1")
	require.NoError(t, err)
	require.False(t, listed)

	entry := store.BlacklistEntry{PlaceID: "p1", Name: "Cash Point", ReportedBy: &alice.ID, CreatedAt: base}
	require.NoError(t, repo.BlacklistRestroom(ctx, entry))
	require.NoError(t, repo.BlacklistRestroom(ctx, entry))

	listed, err = repo.IsBlacklisted(ctx, "p1")
	require.NoError(t, err)
	require.True(t, listed)
}

func placeIDs(rs []store.Restroom) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.PlaceID)
	}
	return out
}
