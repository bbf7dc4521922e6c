package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

// DefaultCookieName names the session cookie when none is configured.
const DefaultCookieName = "buddy_session"

// UnauthorizedMessage is the body text for requests without a valid session.
const UnauthorizedMessage = "Access unauthorized."

// Principal is the authenticated user of a request.
type Principal struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserLoader loads the account behind a session.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (store.User, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Sessions resolves session tokens from cookies or bearer headers into principals.
type Sessions struct {
	tokens *Tokens
	users  UserLoader
	cookie CookieConfig
	logger *zap.Logger
}

// NewSessions constructs a Sessions.
func NewSessions(tokens *Tokens, users UserLoader, cookie CookieConfig, logger *zap.Logger) *Sessions {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{tokens: tokens, users: users, cookie: cookie, logger: logger}
}

// Login issues a token for user and sets it as the session cookie.
func (s *Sessions) Login(w http.ResponseWriter, user store.User) (string, time.Time, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, expires, nil
}

// Logout clears the session cookie.
func (s *Sessions) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFromRequest prefers the Authorization bearer token over the cookie.
func (s *Sessions) tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(s.cookie.Name); err == nil {
		return c.Value
	}
	return ""
}

// Middleware attaches the principal for a valid session. Requests without one
// pass through anonymously.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.tokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := s.tokens.Parse(token)
		if err != nil {
			s.logger.Debug("ignoring invalid session token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.users.GetUser(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Error("load session user failed", zap.String("user_id", userID.String()), zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{UserID: user.ID, Name: user.Name, Email: user.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests that carry no principal.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": UnauthorizedMessage})
			return
		}
		next.ServeHTTP(w, r)
	})
}
