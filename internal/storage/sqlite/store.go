// Package sqlite provides a single-file store.Repository for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

const driverName = "sqlite3"

// Store implements store.Repository on SQLite through sqlx.
type Store struct {
	db *sqlx.DB
}

var _ store.Repository = (*Store)(nil)

// Open opens (creating if needed) the database file at path with foreign keys enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db.sqlite_path is required")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL COLLATE NOCASE UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS restrooms (
	place_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	phone TEXT,
	rating REAL,
	discovered_by TEXT REFERENCES users (id) ON DELETE SET NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS favorites (
	user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	place_id TEXT NOT NULL REFERENCES restrooms (place_id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, place_id)
);
CREATE TABLE IF NOT EXISTS blacklist (
	place_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	reported_by TEXT,
	created_at DATETIME NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toUser() (store.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return store.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return store.User{
		ID:           id,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}, nil
}

type restroomRow struct {
	PlaceID      string          `db:"place_id"`
	Name         string          `db:"name"`
	Address      string          `db:"address"`
	Latitude     float64         `db:"latitude"`
	Longitude    float64         `db:"longitude"`
	Phone        sql.NullString  `db:"phone"`
	Rating       sql.NullFloat64 `db:"rating"`
	DiscoveredBy sql.NullString  `db:"discovered_by"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r restroomRow) toRestroom() (store.Restroom, error) {
	out := store.Restroom{
		PlaceID:   r.PlaceID,
		Name:      r.Name,
		Address:   r.Address,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Phone:     r.Phone.String,
		CreatedAt: r.CreatedAt,
	}
	if r.Rating.Valid {
		rating := r.Rating.Float64
		out.Rating = &rating
	}
	if r.DiscoveredBy.Valid {
		id, err := uuid.Parse(r.DiscoveredBy.String)
		if err != nil {
			return store.Restroom{}, fmt.Errorf("parse discovered_by: %w", err)
		}
		out.DiscoveredBy = &id
	}
	return out, nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user store.User) error {
	query := `INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, user.ID.String(), user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id.String())
}

// GetUserByEmail loads a user by e-mail, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (store.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return row.toUser()
}

// UpdateUser replaces name, e-mail and password hash.
func (s *Store) UpdateUser(ctx context.Context, user store.User) error {
	query := `UPDATE users SET name = ?, email = ?, password_hash = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, user.Name, user.Email, user.PasswordHash, user.ID.String())
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

// DeleteUser removes the user; favorites cascade and discovered_by is nulled.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res)
}

// SaveRestroom inserts the restroom unless the place id exists.
func (s *Store) SaveRestroom(ctx context.Context, r store.Restroom) (bool, error) {
	query := `
		INSERT INTO restrooms (place_id, name, address, latitude, longitude, phone, rating, discovered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (place_id) DO NOTHING`
	res, err := s.db.ExecContext(
		ctx,
		query,
		r.PlaceID,
		r.Name,
		r.Address,
		r.Latitude,
		r.Longitude,
		sql.NullString{String: r.Phone, Valid: r.Phone != ""},
		nullFloat(r.Rating),
		nullUUID(r.DiscoveredBy),
		r.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert restroom: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert restroom: %w", err)
	}
	return n == 1, nil
}

const restroomColumns = `r.place_id, r.name, r.address, r.latitude, r.longitude, r.phone, r.rating, r.discovered_by, r.created_at`

// GetRestroom loads a restroom by place id.
func (s *Store) GetRestroom(ctx context.Context, placeID string) (store.Restroom, error) {
	var row restroomRow
	query := `SELECT ` + restroomColumns + ` FROM restrooms r WHERE r.place_id = ?`
	if err := s.db.GetContext(ctx, &row, query, placeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Restroom{}, store.ErrNotFound
		}
		return store.Restroom{}, fmt.Errorf("get restroom: %w", err)
	}
	return row.toRestroom()
}

// AddFavorite links a user to a restroom; repeated calls are no-ops.
func (s *Store) AddFavorite(ctx context.Context, fav store.Favorite) error {
	query := `INSERT INTO favorites (user_id, place_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, fav.UserID.String(), fav.PlaceID, fav.CreatedAt); err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// RemoveFavorite unlinks a user from a restroom.
func (s *Store) RemoveFavorite(ctx context.Context, userID uuid.UUID, placeID string) error {
	query := `DELETE FROM favorites WHERE user_id = ? AND place_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID.String(), placeID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// ListFavorites returns the user's favorite restrooms, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID, limit int) ([]store.Restroom, error) {
	query := `SELECT ` + restroomColumns + `
		FROM favorites f
		JOIN restrooms r ON r.place_id = f.place_id
		WHERE f.user_id = ?
		ORDER BY f.created_at DESC, f.place_id
		LIMIT ?`
	var rows []restroomRow
	if err := s.db.SelectContext(ctx, &rows, query, userID.String(), store.NormalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out := make([]store.Restroom, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRestroom()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// BlacklistRestroom records the first report for a place.
func (s *Store) BlacklistRestroom(ctx context.Context, entry store.BlacklistEntry) error {
	query := `INSERT INTO blacklist (place_id, name, reported_by, created_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, entry.PlaceID, entry.Name, nullUUID(entry.ReportedBy), entry.CreatedAt); err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether the place was blacklisted.
func (s *Store) IsBlacklisted(ctx context.Context, placeID string) (bool, error) {
	var listed bool
	if err := s.db.GetContext(ctx, &listed, `SELECT EXISTS (SELECT 1 FROM blacklist WHERE place_id = ?)`, placeID); err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return listed, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
