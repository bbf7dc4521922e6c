// Package postgres provides the Postgres-backed store.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

// Postgres error codes mapped onto store sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in tests.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements store.Repository on Postgres.
type Store struct {
	pool querier
}

var _ store.Repository = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS restrooms (
	place_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	phone TEXT,
	rating DOUBLE PRECISION,
	discovered_by UUID REFERENCES users (id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS favorites (
	user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	place_id TEXT NOT NULL REFERENCES restrooms (place_id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, place_id)
)`,
	`CREATE TABLE IF NOT EXISTS blacklist (
	place_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	reported_by UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user store.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE id = $1;
	`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail loads a user by e-mail, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1);
	`
	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) scanUser(row pgx.Row) (store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateUser replaces name, e-mail and password hash.
func (s *Store) UpdateUser(ctx context.Context, user store.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, password_hash = $3
		WHERE id = $4;
	`
	res, err := s.pool.Exec(ctx, query, user.Name, user.Email, user.PasswordHash, user.ID)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteUser removes the user; favorites cascade and discovered_by is nulled.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SaveRestroom inserts the restroom unless the place id exists.
func (s *Store) SaveRestroom(ctx context.Context, r store.Restroom) (bool, error) {
	query := `
		INSERT INTO restrooms (place_id, name, address, latitude, longitude, phone, rating, discovered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (place_id) DO NOTHING;
	`
	res, err := s.pool.Exec(
		ctx,
		query,
		r.PlaceID,
		r.Name,
		r.Address,
		r.Latitude,
		r.Longitude,
		nullString(r.Phone),
		r.Rating,
		r.DiscoveredBy,
		r.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert restroom: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

const restroomColumns = `r.place_id, r.name, r.address, r.latitude, r.longitude, r.phone, r.rating, r.discovered_by, r.created_at`

// GetRestroom loads a restroom by place id.
func (s *Store) GetRestroom(ctx context.Context, placeID string) (store.Restroom, error) {
	query := `SELECT ` + restroomColumns + `
		FROM restrooms r
		WHERE r.place_id = $1;
	`
	r, err := scanRestroom(s.pool.QueryRow(ctx, query, placeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Restroom{}, store.ErrNotFound
		}
		return store.Restroom{}, fmt.Errorf("get restroom: %w", err)
	}
	return r, nil
}

func scanRestroom(row pgx.Row) (store.Restroom, error) {
	var (
		r     store.Restroom
		phone *string
	)
	if err := row.Scan(
		&r.PlaceID,
		&r.Name,
		&r.Address,
		&r.Latitude,
		&r.Longitude,
		&phone,
		&r.Rating,
		&r.DiscoveredBy,
		&r.CreatedAt,
	); err != nil {
		return store.Restroom{}, err
	}
	if phone != nil {
		r.Phone = *phone
	}
	return r, nil
}

// AddFavorite links a user to a restroom; repeated calls are no-ops.
func (s *Store) AddFavorite(ctx context.Context, fav store.Favorite) error {
	query := `
		INSERT INTO favorites (user_id, place_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, place_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, fav.UserID, fav.PlaceID, fav.CreatedAt); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// RemoveFavorite unlinks a user from a restroom.
func (s *Store) RemoveFavorite(ctx context.Context, userID uuid.UUID, placeID string) error {
	query := `DELETE FROM favorites WHERE user_id = $1 AND place_id = $2;`
	if _, err := s.pool.Exec(ctx, query, userID, placeID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// ListFavorites returns the user's favorite restrooms, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID, limit int) ([]store.Restroom, error) {
	query := `SELECT ` + restroomColumns + `
		FROM favorites f
		JOIN restrooms r ON r.place_id = f.place_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC, f.place_id
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, userID, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	out := []store.Restroom{}
	for rows.Next() {
		r, err := scanRestroom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return out, nil
}

// BlacklistRestroom records the first report for a place.
func (s *Store) BlacklistRestroom(ctx context.Context, entry store.BlacklistEntry) error {
	query := `
		INSERT INTO blacklist (place_id, name, reported_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (place_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, entry.PlaceID, entry.Name, entry.ReportedBy, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether the place was blacklisted.
func (s *Store) IsBlacklisted(ctx context.Context, placeID string) (bool, error) {
	var listed bool
	query := `SELECT EXISTS (SELECT 1 FROM blacklist WHERE place_id = $1);`
	if err := s.pool.QueryRow(ctx, query, placeID).Scan(&listed); err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return listed, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
